package payments

import (
	"sync"
)

// Status is where a payment is in its lifecycle.
type Status uint8

const (
	Pending Status = iota
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Payment is the bookkeeping for one payment hash.
type Payment struct {
	Preimage *[32]byte
	Secret   *[32]byte
	Status   Status
	AmtMsat  *uint64
}

// Map is a mutex-guarded payment-hash -> Payment map.  The raw map
// never leaves the struct, so the lock discipline can't be bypassed;
// callers only get atomic get/put/update/remove.
type Map struct {
	mtx  sync.Mutex
	pmts map[[32]byte]Payment
}

func NewMap() *Map {
	return &Map{pmts: make(map[[32]byte]Payment)}
}

// Get returns a copy of the payment for hash, if there is one.
func (m *Map) Get(hash [32]byte) (Payment, bool) {
	m.mtx.Lock()
	p, ok := m.pmts[hash]
	m.mtx.Unlock()
	return p, ok
}

// Put inserts or replaces the payment for hash.
func (m *Map) Put(hash [32]byte, p Payment) {
	m.mtx.Lock()
	m.pmts[hash] = p
	m.mtx.Unlock()
}

// Update runs f on the payment for hash under the lock.  Returns false
// (without calling f) if the hash isn't tracked.
func (m *Map) Update(hash [32]byte, f func(*Payment)) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	p, ok := m.pmts[hash]
	if !ok {
		return false
	}
	f(&p)
	m.pmts[hash] = p
	return true
}

// Remove drops the payment for hash.  Removing an absent hash is a
// no-op, not an error.
func (m *Map) Remove(hash [32]byte) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.pmts[hash]
	if ok {
		delete(m.pmts, hash)
	}
	return ok
}

func (m *Map) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.pmts)
}

// Book is the three payment maps the node keeps: payments we received,
// payments we sent, and sends still in flight.
type Book struct {
	Inbound  *Map
	Outbound *Map
	Pending  *Map
}

func NewBook() *Book {
	return &Book{
		Inbound:  NewMap(),
		Outbound: NewMap(),
		Pending:  NewMap(),
	}
}
