package payments

import (
	"sync"
	"testing"
)

func TestUpsert(t *testing.T) {
	m := NewMap()
	var hash [32]byte
	hash[0] = 1

	if _, ok := m.Get(hash); ok {
		t.Fatal("empty map claims to have a payment")
	}

	amt := uint64(1000)
	m.Put(hash, Payment{Status: Pending, AmtMsat: &amt})

	ok := m.Update(hash, func(p *Payment) {
		p.Status = Succeeded
	})
	if !ok {
		t.Fatal("update on a present hash returned false")
	}

	p, ok := m.Get(hash)
	if !ok || p.Status != Succeeded || *p.AmtMsat != 1000 {
		t.Fatalf("got %+v", p)
	}
}

func TestUpdateAbsent(t *testing.T) {
	m := NewMap()
	var hash [32]byte

	called := false
	if m.Update(hash, func(*Payment) { called = true }) {
		t.Fatal("update on an absent hash returned true")
	}
	if called {
		t.Fatal("mutator ran for an absent hash")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	m := NewMap()
	var hash [32]byte
	m.Put(hash, Payment{Status: Pending})

	if !m.Remove(hash) {
		t.Fatal("first remove should report true")
	}
	if m.Remove(hash) {
		t.Fatal("second remove should be a no-op")
	}
	if m.Len() != 0 {
		t.Fatalf("map still has %d entries", m.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var hash [32]byte
			hash[0] = byte(i % 8)
			m.Put(hash, Payment{Status: Pending})
			m.Update(hash, func(p *Payment) { p.Status = Failed })
			m.Get(hash)
		}(i)
	}
	wg.Wait()

	if m.Len() != 8 {
		t.Fatalf("expected 8 entries, got %d", m.Len())
	}
}

func TestStatusString(t *testing.T) {
	if Pending.String() != "pending" || Succeeded.String() != "succeeded" ||
		Failed.String() != "failed" {
		t.Fatal("status strings are off")
	}
}
