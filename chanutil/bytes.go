package chanutil

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/logging"
)

// uint64 to 8 bytes.  Always works.
func U64tB(i uint64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, i)
	return buf.Bytes()
}

// 8 bytes to uint64.  Returns ffff... if something doesn't work.
func BtU64(b []byte) uint64 {
	if len(b) != 8 {
		logging.Errorf("Got %x to BtU64 (%d bytes)\n", b, len(b))
		return 0xffffffffffffffff
	}
	var i uint64
	buf := bytes.NewBuffer(b)
	binary.Read(buf, binary.BigEndian, &i)
	return i
}

// OutPointToBytes turns a funding outpoint into the 36 byte key used
// everywhere in the channel db: 32 byte txid then 4 byte index.
func OutPointToBytes(op wire.OutPoint) (b [36]byte) {
	var buf bytes.Buffer
	_, err := buf.Write(op.Hash.CloneBytes())
	if err != nil {
		return
	}
	err = binary.Write(&buf, binary.BigEndian, op.Index)
	if err != nil {
		return
	}
	copy(b[:], buf.Bytes())
	return
}

// OutPointFromBytes is the inverse of OutPointToBytes.
func OutPointFromBytes(b [36]byte) *wire.OutPoint {
	op := new(wire.OutPoint)
	var h chainhash.Hash
	copy(h[:], b[:32])
	op.Hash = h
	op.Index = binary.BigEndian.Uint32(b[32:])
	return op
}
