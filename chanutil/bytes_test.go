package chanutil

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestU64tB(t *testing.T) {
	zero := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(U64tB(0), zero) {
		t.Fatalf("U64tB(0) gave %x", U64tB(0))
	}

	max := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	if !bytes.Equal(U64tB(0xffffffffffffffff), max) {
		t.Fatalf("U64tB(max) gave %x", U64tB(0xffffffffffffffff))
	}

	one := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(U64tB(1), one) {
		t.Fatalf("U64tB(1) gave %x", U64tB(1))
	}
}

func TestBtU64(t *testing.T) {
	for _, i := range []uint64{0, 1, 500, 0xffffffffffffffff} {
		if BtU64(U64tB(i)) != i {
			t.Fatalf("round trip of %d gave %d", i, BtU64(U64tB(i)))
		}
	}

	// wrong length gives the sentinel
	if BtU64([]byte{0x01}) != 0xffffffffffffffff {
		t.Fatalf("short slice should give sentinel")
	}
}

func TestOutPointRoundTrip(t *testing.T) {
	var h chainhash.Hash
	for i := range h {
		h[i] = byte(i)
	}
	op := wire.OutPoint{Hash: h, Index: 3}

	b := OutPointToBytes(op)
	op2 := OutPointFromBytes(b)

	if op2.Hash != op.Hash || op2.Index != op.Index {
		t.Fatalf("round trip gave %v, want %v", op2, op)
	}
}

func TestReadOrCreateSeed(t *testing.T) {
	path := t.TempDir() + "/seed.hex"

	seed1, err := ReadOrCreateSeed(path)
	if err != nil {
		t.Fatal(err)
	}

	// second read must hand back the same seed
	seed2, err := ReadOrCreateSeed(path)
	if err != nil {
		t.Fatal(err)
	}
	if *seed1 != *seed2 {
		t.Fatalf("seed changed between reads")
	}
}
