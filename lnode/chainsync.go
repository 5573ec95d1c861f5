package lnode

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/logging"
)

// syncTarget is one listener plus the block it believes is the tip.
type syncTarget struct {
	listener ChainListener
	hash     chainhash.Hash
	height   int32
}

// fanout delivers one block event to every registered listener.  Used
// by the steady-state poller, where all listeners share the node's tip.
type fanout []ChainListener

func (f fanout) ConnectBlock(header *wire.BlockHeader, height int32, txs []*wire.MsgTx) {
	for _, l := range f {
		l.ConnectBlock(header, height, txs)
	}
}

func (f fanout) DisconnectBlock(header *wire.BlockHeader, height int32) {
	for _, l := range f {
		l.DisconnectBlock(header, height)
	}
}

// syncOne walks a listener from its remembered block to the backend's
// main chain at tipHeight.  If the remembered block was reorged out, the
// stale branch is disconnected first, newest block first, then the main
// chain is connected forward.  Events are strictly ordered; the listener
// sees exactly the disconnects and connects the chain actually took.
func (n *Node) syncOne(t syncTarget, tipHeight int32) error {
	hash, height := t.hash, t.height

	for {
		if height <= tipHeight {
			mainHash, err := n.Chain.BlockHash(height)
			if err != nil {
				return err
			}
			if *mainHash == hash {
				break // back on the main chain
			}
		}
		if height <= 0 {
			return fmt.Errorf("unwound to genesis without rejoining the chain")
		}
		header, hdrHeight, err := n.Chain.BlockHeader(&hash)
		if err != nil {
			return fmt.Errorf("stale header %s: %s", hash.String(), err.Error())
		}
		logging.Warnf("reorg: disconnecting block %s at %d\n", hash.String(), height)
		t.listener.DisconnectBlock(header, hdrHeight)
		hash = header.PrevBlock
		height--
	}

	for h := height + 1; h <= tipHeight; h++ {
		blockHash, err := n.Chain.BlockHash(h)
		if err != nil {
			return err
		}
		block, err := n.Chain.Block(blockHash)
		if err != nil {
			return err
		}
		t.listener.ConnectBlock(&block.Header, h, block.Transactions)
	}
	return nil
}

// pollLoop is the steady-state tip watcher.
func (n *Node) pollLoop() {
	defer n.wg.Done()
	tick := time.NewTicker(n.opts.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			err := n.pollTip()
			if err != nil {
				logging.Warnf("tip poll: %s\n", err.Error())
			}
		case <-n.quit:
			return
		}
	}
}

// pollTip checks the backend for a new best block and, when there is
// one, syncs every listener in lockstep from the node's shared tip.
func (n *Node) pollTip() error {
	info, err := n.Chain.ChainInfo()
	if err != nil {
		return err
	}

	n.lisMtx.Lock()
	defer n.lisMtx.Unlock()

	if info.BestBlockHash == n.tipHash.String() {
		return nil
	}
	err = n.syncOne(syncTarget{
		listener: fanout(n.listeners),
		hash:     n.tipHash,
		height:   n.tipHeight,
	}, info.Blocks)
	if err != nil {
		return err
	}
	tipHash, err := chainhash.NewHashFromStr(info.BestBlockHash)
	if err != nil {
		return err
	}
	n.tipHash = *tipHash
	n.tipHeight = info.Blocks
	logging.Debugf("tip now %s at %d\n", n.tipHash.String(), n.tipHeight)
	return nil
}
