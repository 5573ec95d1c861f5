package lnode

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/chainrpc"
)

// This file is the seam between the node and the channel protocol
// engine.  The engine owns the cryptography: commitment transactions,
// HTLC rules, onion handling.  The node owns durability and chain
// synchronization, and only talks to the engine through the interfaces
// here.

// ChainListener receives block events in strict chain order, both
// during the startup sync pass and from the steady-state poller.
type ChainListener interface {
	ConnectBlock(header *wire.BlockHeader, height int32, txs []*wire.MsgTx)
	DisconnectBlock(header *wire.BlockHeader, height int32)
}

// ChannelState is one channel's state machine object, restored from a
// snapshot and advanced by replaying persisted updates.
type ChannelState interface {
	ChainListener

	// FundingOutPoint is the channel's identity: the on-chain anchor.
	FundingOutPoint() [36]byte

	// BestBlock is the last block this object has seen.
	BestBlock() (chainhash.Hash, int32)

	// ApplyUpdate replays one persisted update.  An error here means
	// the persisted record is structurally invalid, which is fatal for
	// startup; a half-replayed channel must never go live.
	ApplyUpdate(seq uint64, payload []byte) error
}

// ChainParams seeds a fresh ledger with the current chain tip.
type ChainParams struct {
	Chain      string
	BestHash   chainhash.Hash
	BestHeight int32
}

// SpendableOutput is a matured output the engine has handed back to
// the node to sweep.  The descriptor is engine-opaque.
type SpendableOutput struct {
	Outpoint   wire.OutPoint
	ValueSat   int64
	Descriptor []byte
}

// Ledger is the engine's top-level channel ledger: the object that
// tracks every open channel and accepts commands back from the node.
type Ledger interface {
	ChainListener

	BestBlock() (chainhash.Hash, int32)

	// Serialize flattens the ledger for checkpointing.
	Serialize() ([]byte, error)

	// FundingTxGenerated hands the signed funding transaction back for
	// the channel the engine asked us to fund.  Errors when the channel
	// is already gone (peer disconnected or refused) -- not fatal.
	FundingTxGenerated(tempChanID [32]byte, tx *wire.MsgTx) error

	// ClaimFunds claims an inbound payment by preimage.  False means
	// the engine wouldn't take it.
	ClaimFunds(preimage [32]byte) bool

	// ProcessPendingForwards releases queued HTLC forwards.
	ProcessPendingForwards()

	// SpendOutputs builds a transaction spending the given outputs to
	// destScript at the given feerate.
	SpendOutputs(outputs []SpendableOutput, destScript []byte,
		feeRateSatPerKW int64) (*wire.MsgTx, error)
}

// Watcher takes custody of a synchronized channel state object for the
// node's lifetime (the engine's chain monitor).
type Watcher interface {
	WatchChannel(st ChannelState) error
}

// UpdatePersister is the persistence callback handed into the engine:
// AppendUpdate must not return nil until the update is durable, and a
// non-nil error obliges the engine to stop advancing that channel.
// PutSnapshot lets the engine compact a channel's log when it has a
// fresh full serialization.  chanlog.Store implements both.
type UpdatePersister interface {
	AppendUpdate(op [36]byte, seq uint64, payload []byte) error
	PutSnapshot(op [36]byte, seq uint64, data []byte) error
}

// FeeEstimator and TxBroadcaster are the two chain capabilities the
// engine needs injected.  chainrpc.Client implements both.
type FeeEstimator interface {
	EstimateFee(target chainrpc.FeeTarget) int64
}

type TxBroadcaster interface {
	Broadcast(tx *wire.MsgTx) error
}

// Engine is the protocol engine itself.
type Engine interface {
	Watcher

	// RestoreChannelState deserializes one channel from its snapshot.
	RestoreChannelState(snapshot []byte) (ChannelState, error)

	// RestoreLedger deserializes the ledger against the already
	// restored channel states.
	RestoreLedger(data []byte, states []ChannelState) (Ledger, error)

	// NewLedger builds a fresh ledger at the current chain tip.
	NewLedger(params ChainParams) (Ledger, error)

	// Events is the engine's notification feed.  The node consumes it
	// one event at a time.
	Events() <-chan Event
}

// Reconnector is an optional engine surface for the periodic peer
// reconnection tick.
type Reconnector interface {
	ReconnectPeers()
}

// EngineDeps is everything the node injects into an engine at
// construction: the two chain capabilities, the persistence callback,
// and the node seed.
type EngineDeps struct {
	Fees      FeeEstimator
	Broadcast TxBroadcaster
	Persister UpdatePersister
	Seed      *[32]byte
}

// EngineConstructor builds an engine from its injected dependencies.
type EngineConstructor func(deps EngineDeps) (Engine, error)

var (
	engineMtx sync.Mutex
	engines   = make(map[string]EngineConstructor)
)

// RegisterEngine makes an engine backend available by name.  Engine
// packages call this from init, the way database/sql drivers do.
func RegisterEngine(name string, fn EngineConstructor) {
	engineMtx.Lock()
	defer engineMtx.Unlock()
	if _, dup := engines[name]; dup {
		panic("engine " + name + " registered twice")
	}
	engines[name] = fn
}

// OpenEngine constructs the named engine backend.
func OpenEngine(name string, deps EngineDeps) (Engine, error) {
	engineMtx.Lock()
	fn, ok := engines[name]
	var known []string
	for n := range engines {
		known = append(known, n)
	}
	engineMtx.Unlock()

	if !ok {
		sort.Strings(known)
		return nil, fmt.Errorf(
			"no channel engine %q linked into this binary (have %v)", name, known)
	}
	return fn(deps)
}
