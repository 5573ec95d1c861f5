// Package lnode is the orchestration core: it restores channel state
// from the durable store, keeps the protocol engine synchronized with
// the chain backend, and services the engine's event feed.
package lnode

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/chainrpc"
	"github.com/lnchan/chand/chanlog"
	"github.com/lnchan/chand/logging"
	"github.com/lnchan/chand/payments"
	"github.com/lnchan/chand/probe"
)

// ChainBackend is the slice of the chainrpc facade the node uses.
type ChainBackend interface {
	ChainInfo() (*chainrpc.ChainInfo, error)
	EstimateFee(target chainrpc.FeeTarget) int64
	Broadcast(tx *wire.MsgTx) error
	CreateRawTx(outputs map[string]float64) (string, error)
	FundRawTx(raw string) (*chainrpc.FundedTx, error)
	SignRawTxWithWallet(raw string) (string, error)
	NewAddress() (string, error)
	BlockHash(height int32) (*chainhash.Hash, error)
	BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, int32, error)
	Block(hash *chainhash.Hash) (*wire.MsgBlock, error)
}

// Options are the node's timing knobs.
type Options struct {
	PollInterval       time.Duration
	CheckpointInterval time.Duration
	ReconnectInterval  time.Duration
}

func (o *Options) fillDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = time.Second
	}
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = 10 * time.Minute
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = time.Minute
	}
}

// Node wires the store, the chain backend, and the engine together and
// runs the background loops.
type Node struct {
	Params *chaincfg.Params
	Store  *chanlog.Store
	Chain  ChainBackend
	Eng    Engine
	Pay    *payments.Book
	Probe  *probe.Log
	Ledger Ledger

	// Reconnect is optional; engines without a peer surface leave it nil.
	Reconnect Reconnector

	opts Options

	// lisMtx guards the listener set and the node's view of the tip.
	// Block events are delivered under it, one block at a time.
	lisMtx    sync.Mutex
	listeners []ChainListener
	tipHash   chainhash.Hash
	tipHeight int32

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewNode restores all persisted state, replays the update logs, syncs
// every restored object to the backend's tip, and hands the channels to
// the engine's watcher.  Any inconsistency in the persisted state is an
// error here; a node must never come up half restored.
func NewNode(params *chaincfg.Params, store *chanlog.Store, chain ChainBackend,
	eng Engine, pay *payments.Book, probeLog *probe.Log, opts Options) (*Node, error) {

	opts.fillDefaults()
	n := &Node{
		Params: params,
		Store:  store,
		Chain:  chain,
		Eng:    eng,
		Pay:    pay,
		Probe:  probeLog,
		opts:   opts,
		quit:   make(chan struct{}),
	}
	if r, ok := eng.(Reconnector); ok {
		n.Reconnect = r
	}
	err := n.restoreState()
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Start launches the background loops.  Call after NewNode returns;
// restoration is already done by then.
func (n *Node) Start() {
	n.wg.Add(4)
	go n.eventLoop()
	go n.pollLoop()
	go n.checkpointLoop()
	go n.reconnectLoop()
	logging.Infof("node up at height %d (%s)\n", n.tipHeight, n.tipHash.String())
}

// Stop shuts the loops down and writes a final ledger checkpoint.
func (n *Node) Stop() {
	close(n.quit)
	n.wg.Wait()
	err := n.checkpoint()
	if err != nil {
		logging.Errorf("final checkpoint failed: %s\n", err.Error())
	}
}

func (n *Node) checkpoint() error {
	data, err := n.Ledger.Serialize()
	if err != nil {
		return fmt.Errorf("ledger won't serialize: %s", err.Error())
	}
	return n.Store.PutLedger(data)
}

func (n *Node) checkpointLoop() {
	defer n.wg.Done()
	tick := time.NewTicker(n.opts.CheckpointInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			err := n.checkpoint()
			if err != nil {
				logging.Errorf("checkpoint failed: %s\n", err.Error())
			}
		case <-n.quit:
			return
		}
	}
}

func (n *Node) reconnectLoop() {
	defer n.wg.Done()
	if n.Reconnect == nil {
		return
	}
	tick := time.NewTicker(n.opts.ReconnectInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			n.Reconnect.ReconnectPeers()
		case <-n.quit:
			return
		}
	}
}
