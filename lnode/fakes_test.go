package lnode

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/chainrpc"
)

// fakeBackend is an in-memory chain backend: a deterministic block
// chain (index = height) plus canned wallet responses.
type fakeBackend struct {
	mtx sync.Mutex

	chainName string
	chain     []*wire.MsgBlock
	stale     map[chainhash.Hash]staleBlock

	address   string
	signedHex string

	createCalls    int
	fundCalls      int
	signCalls      int
	broadcastCalls int
	broadcasted    []*wire.MsgTx
}

type staleBlock struct {
	header wire.BlockHeader
	height int32
}

func newFakeBackend(nBlocks int) *fakeBackend {
	fb := &fakeBackend{
		chainName: "regtest",
		stale:     make(map[chainhash.Hash]staleBlock),
	}
	var prev chainhash.Hash
	for i := 0; i < nBlocks; i++ {
		b := &wire.MsgBlock{Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Bits:      0x207fffff,
			Nonce:     uint32(i),
			Timestamp: time.Unix(1700000000+int64(i)*600, 0),
		}}
		prev = b.Header.BlockHash()
		fb.chain = append(fb.chain, b)
	}
	return fb
}

func (f *fakeBackend) tip() (chainhash.Hash, int32) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	last := f.chain[len(f.chain)-1]
	return last.Header.BlockHash(), int32(len(f.chain) - 1)
}

func (f *fakeBackend) extend() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	i := len(f.chain)
	f.chain = append(f.chain, &wire.MsgBlock{Header: wire.BlockHeader{
		Version:   1,
		PrevBlock: f.chain[i-1].Header.BlockHash(),
		Bits:      0x207fffff,
		Nonce:     uint32(i),
		Timestamp: time.Unix(1700000000+int64(i)*600, 0),
	}})
}

func (f *fakeBackend) ChainInfo() (*chainrpc.ChainInfo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	h := f.chain[len(f.chain)-1].Header.BlockHash()
	return &chainrpc.ChainInfo{
		Chain:         f.chainName,
		Blocks:        int32(len(f.chain) - 1),
		BestBlockHash: h.String(),
	}, nil
}

func (f *fakeBackend) EstimateFee(chainrpc.FeeTarget) int64 { return 2500 }

func (f *fakeBackend) Broadcast(tx *wire.MsgTx) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.broadcastCalls++
	f.broadcasted = append(f.broadcasted, tx)
	return nil
}

func (f *fakeBackend) CreateRawTx(map[string]float64) (string, error) {
	f.createCalls++
	return "rawtx", nil
}

func (f *fakeBackend) FundRawTx(string) (*chainrpc.FundedTx, error) {
	f.fundCalls++
	return &chainrpc.FundedTx{Hex: "fundedtx", Fee: 0.0001, ChangePos: 1}, nil
}

func (f *fakeBackend) SignRawTxWithWallet(string) (string, error) {
	f.signCalls++
	return f.signedHex, nil
}

func (f *fakeBackend) NewAddress() (string, error) { return f.address, nil }

func (f *fakeBackend) BlockHash(height int32) (*chainhash.Hash, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if height < 0 || int(height) >= len(f.chain) {
		return nil, fmt.Errorf("block height %d out of range", height)
	}
	h := f.chain[height].Header.BlockHash()
	return &h, nil
}

func (f *fakeBackend) BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, int32, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for i, b := range f.chain {
		if b.Header.BlockHash() == *hash {
			hdr := b.Header
			return &hdr, int32(i), nil
		}
	}
	if sb, ok := f.stale[*hash]; ok {
		hdr := sb.header
		return &hdr, sb.height, nil
	}
	return nil, 0, fmt.Errorf("header %s not found", hash.String())
}

func (f *fakeBackend) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, b := range f.chain {
		if b.Header.BlockHash() == *hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("block %s not found", hash.String())
}

// fakeState is a restored channel that just records what happens to it.
type fakeState struct {
	op     [36]byte
	hash   chainhash.Hash
	height int32

	applied      []uint64
	payloads     [][]byte
	connected    []int32
	disconnected []int32
}

func (s *fakeState) ConnectBlock(h *wire.BlockHeader, height int32, _ []*wire.MsgTx) {
	s.connected = append(s.connected, height)
	s.hash = h.BlockHash()
	s.height = height
}

func (s *fakeState) DisconnectBlock(h *wire.BlockHeader, height int32) {
	s.disconnected = append(s.disconnected, height)
	s.hash = h.PrevBlock
	s.height = height - 1
}

func (s *fakeState) FundingOutPoint() [36]byte          { return s.op }
func (s *fakeState) BestBlock() (chainhash.Hash, int32) { return s.hash, s.height }

func (s *fakeState) ApplyUpdate(seq uint64, payload []byte) error {
	s.applied = append(s.applied, seq)
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

type fakeLedger struct {
	mtx    sync.Mutex
	hash   chainhash.Hash
	height int32

	connected    []int32
	disconnected []int32

	fundings   map[[32]byte]*wire.MsgTx
	fundingErr error

	claims      [][32]byte
	claimResult bool

	forwardCh chan struct{}

	spendTx      *wire.MsgTx
	spendErr     error
	spends       [][]SpendableOutput
	spendScripts [][]byte
	spendRates   []int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		fundings:  make(map[[32]byte]*wire.MsgTx),
		forwardCh: make(chan struct{}, 4),
	}
}

func (l *fakeLedger) ConnectBlock(h *wire.BlockHeader, height int32, _ []*wire.MsgTx) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.connected = append(l.connected, height)
	l.hash = h.BlockHash()
	l.height = height
}

func (l *fakeLedger) DisconnectBlock(h *wire.BlockHeader, height int32) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.disconnected = append(l.disconnected, height)
	l.hash = h.PrevBlock
	l.height = height - 1
}

func (l *fakeLedger) BestBlock() (chainhash.Hash, int32) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.hash, l.height
}

func (l *fakeLedger) Serialize() ([]byte, error) {
	return []byte("ledger-checkpoint"), nil
}

func (l *fakeLedger) FundingTxGenerated(tempChanID [32]byte, tx *wire.MsgTx) error {
	if l.fundingErr != nil {
		return l.fundingErr
	}
	l.fundings[tempChanID] = tx
	return nil
}

func (l *fakeLedger) ClaimFunds(preimage [32]byte) bool {
	l.claims = append(l.claims, preimage)
	return l.claimResult
}

func (l *fakeLedger) ProcessPendingForwards() {
	l.forwardCh <- struct{}{}
}

func (l *fakeLedger) SpendOutputs(outputs []SpendableOutput, destScript []byte,
	feeRateSatPerKW int64) (*wire.MsgTx, error) {

	l.spends = append(l.spends, outputs)
	l.spendScripts = append(l.spendScripts, destScript)
	l.spendRates = append(l.spendRates, feeRateSatPerKW)
	if l.spendErr != nil {
		return nil, l.spendErr
	}
	return l.spendTx, nil
}

// fakeEngine restores fakeStates from 36-byte snapshots (the snapshot
// data is the funding outpoint itself) at a preset chain position.
type fakeEngine struct {
	events chan Event
	ledger *fakeLedger

	restoreHash   chainhash.Hash
	restoreHeight int32

	restored       []*fakeState
	watched        []ChannelState
	newLedgerCalls int
	newLedgerAt    ChainParams
	ledgerData     []byte
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events: make(chan Event, 8),
		ledger: newFakeLedger(),
	}
}

func (e *fakeEngine) RestoreChannelState(snapshot []byte) (ChannelState, error) {
	if len(snapshot) != 36 {
		return nil, fmt.Errorf("snapshot is %d bytes, want 36", len(snapshot))
	}
	st := &fakeState{hash: e.restoreHash, height: e.restoreHeight}
	copy(st.op[:], snapshot)
	e.restored = append(e.restored, st)
	return st, nil
}

func (e *fakeEngine) RestoreLedger(data []byte, _ []ChannelState) (Ledger, error) {
	e.ledgerData = append([]byte(nil), data...)
	e.ledger.hash = e.restoreHash
	e.ledger.height = e.restoreHeight
	return e.ledger, nil
}

func (e *fakeEngine) NewLedger(params ChainParams) (Ledger, error) {
	e.newLedgerCalls++
	e.newLedgerAt = params
	e.ledger.hash = params.BestHash
	e.ledger.height = params.BestHeight
	return e.ledger, nil
}

func (e *fakeEngine) Events() <-chan Event { return e.events }

func (e *fakeEngine) WatchChannel(st ChannelState) error {
	e.watched = append(e.watched, st)
	return nil
}
