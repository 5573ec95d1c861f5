package chanlog

import (
	"fmt"
	"sort"

	"github.com/boltdb/bolt"

	"github.com/lnchan/chand/chanutil"
)

/*
Channel state goes in the db here.

Updates
|
|-channelID (36 byte funding outpoint)
	|
	|- seqNo (8 bytes, big endian) : engine update payload

Snapshots
|
|-channelID : seqNo (8 bytes) || full serialized channel state

Ledger
|
|-"ledger" : serialized top-level channel ledger

The update log is the hot path: settling an HTLC persists one small
record instead of rewriting the whole channel state.  Snapshots are
replaced wholesale on checkpoint and supersede every update at or
below their sequence number.  Bolt fsyncs on commit, so a nil return
from an Update closure means the bytes are on disk -- acking the
engine before that would risk publishing a stale, penalty-exposed
state after a crash.
*/

var (
	BKTUpdates   = []byte("Updates")
	BKTSnapshots = []byte("Snapshots")
	BKTLedger    = []byte("Ledger")

	KEYLedger = []byte("ledger")
)

// Update is one persisted channel state advance.
type Update struct {
	Op      [36]byte
	Seq     uint64
	Payload []byte
}

// Snapshot is the last fully serialized state of one channel, plus the
// sequence number it includes.
type Snapshot struct {
	Op   [36]byte
	Seq  uint64
	Data []byte
}

// Store is the durable channel state store, shared by the recovery
// pass and the engine's persistence callback.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(btx *bolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(BKTUpdates)
		if err != nil {
			return err
		}
		_, err = btx.CreateBucketIfNotExists(BKTSnapshots)
		if err != nil {
			return err
		}
		_, err = btx.CreateBucketIfNotExists(BKTLedger)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AppendUpdate durably appends one update record.  A record is
// immutable once written; re-appending an existing sequence number is
// an error.  On a nil return the record is flushed.
func (s *Store) AppendUpdate(op [36]byte, seq uint64, payload []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		ubk := btx.Bucket(BKTUpdates)
		if ubk == nil {
			return fmt.Errorf("no updates bucket")
		}
		cbk, err := ubk.CreateBucketIfNotExists(op[:])
		if err != nil {
			return err
		}
		key := chanutil.U64tB(seq)
		if cbk.Get(key) != nil {
			return fmt.Errorf("update %d for channel %x already persisted", seq, op)
		}
		return cbk.Put(key, payload)
	})
}

// Updates returns every persisted update for a channel, ascending by
// sequence number.  The keys come back in byte order already, but
// replay correctness rides on the ordering so we sort anyway instead
// of trusting the medium.
func (s *Store) Updates(op [36]byte) ([]Update, error) {
	var updates []Update
	err := s.db.View(func(btx *bolt.Tx) error {
		ubk := btx.Bucket(BKTUpdates)
		if ubk == nil {
			return fmt.Errorf("no updates bucket")
		}
		cbk := ubk.Bucket(op[:])
		if cbk == nil {
			return nil // no updates yet for this channel
		}
		return cbk.ForEach(func(k, v []byte) error {
			u := Update{Op: op, Seq: chanutil.BtU64(k)}
			u.Payload = append(u.Payload, v...)
			updates = append(updates, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Seq < updates[j].Seq
	})
	return updates, nil
}

// PutSnapshot replaces the channel's snapshot wholesale.  seq is the
// last update sequence number the snapshot includes; replay starts
// after it.
func (s *Store) PutSnapshot(op [36]byte, seq uint64, data []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		sbk := btx.Bucket(BKTSnapshots)
		if sbk == nil {
			return fmt.Errorf("no snapshots bucket")
		}
		val := append(chanutil.U64tB(seq), data...)
		return sbk.Put(op[:], val)
	})
}

// Snapshots loads every channel snapshot.
func (s *Store) Snapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(btx *bolt.Tx) error {
		sbk := btx.Bucket(BKTSnapshots)
		if sbk == nil {
			return fmt.Errorf("no snapshots bucket")
		}
		return sbk.ForEach(func(k, v []byte) error {
			if len(k) != 36 {
				return fmt.Errorf("snapshot key %x isn't an outpoint", k)
			}
			if len(v) < 8 {
				return fmt.Errorf("snapshot for %x is truncated", k)
			}
			var snap Snapshot
			copy(snap.Op[:], k)
			snap.Seq = chanutil.BtU64(v[:8])
			snap.Data = append(snap.Data, v[8:]...)
			snaps = append(snaps, snap)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// PutLedger replaces the serialized top-level ledger.
func (s *Store) PutLedger(data []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		lbk := btx.Bucket(BKTLedger)
		if lbk == nil {
			return fmt.Errorf("no ledger bucket")
		}
		return lbk.Put(KEYLedger, data)
	})
}

// Ledger returns the serialized ledger, or nil if this node has never
// persisted one (fresh node).
func (s *Store) Ledger() ([]byte, error) {
	var data []byte
	err := s.db.View(func(btx *bolt.Tx) error {
		lbk := btx.Bucket(BKTLedger)
		if lbk == nil {
			return fmt.Errorf("no ledger bucket")
		}
		v := lbk.Get(KEYLedger)
		if v != nil {
			data = append(data, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
