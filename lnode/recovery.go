package lnode

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lnchan/chand/chainrpc"
	"github.com/lnchan/chand/logging"
)

// restoreState is the startup recovery pass:
//
//  1. sanity-check the backend is on the network we were configured for
//  2. restore every channel snapshot and replay its update log
//  3. restore (or freshly create) the top-level ledger
//  4. bring everything to the backend's tip, reorgs included
//  5. hand the channels to the engine's watcher and register the chain
//     listener set for the steady-state poller
//
// Every failure here is returned as an error and the node must not come
// up: a channel that missed a replayed update would hand the engine a
// stale state, and signing from a stale state is how funds get burned.
func (n *Node) restoreState() error {
	info, err := n.Chain.ChainInfo()
	if err != nil {
		return fmt.Errorf("can't reach chain backend: %s", err.Error())
	}
	want := chainrpc.ChainName(n.Params)
	if info.Chain != want {
		return fmt.Errorf(
			"chain backend is on %q but this node is configured for %q", info.Chain, want)
	}
	tipHash, err := chainhash.NewHashFromStr(info.BestBlockHash)
	if err != nil {
		return fmt.Errorf("backend tip hash %q: %s", info.BestBlockHash, err.Error())
	}

	snaps, err := n.Store.Snapshots()
	if err != nil {
		return err
	}
	var states []ChannelState
	for _, snap := range snaps {
		st, err := n.Eng.RestoreChannelState(snap.Data)
		if err != nil {
			return fmt.Errorf("channel %x snapshot won't restore: %s",
				snap.Op, err.Error())
		}
		if st.FundingOutPoint() != snap.Op {
			return fmt.Errorf("snapshot stored under %x restored as channel %x",
				snap.Op, st.FundingOutPoint())
		}

		// Replay updates past the snapshot.  The log must be contiguous
		// from the snapshot's sequence number; a hole means an update
		// was acked durable and then lost, and nothing downstream can
		// repair that.
		updates, err := n.Store.Updates(snap.Op)
		if err != nil {
			return err
		}
		prev := snap.Seq
		applied := 0
		for _, u := range updates {
			if u.Seq <= snap.Seq {
				continue // already folded into the snapshot
			}
			if u.Seq != prev+1 {
				return fmt.Errorf(
					"update log gap for channel %x: replayed through %d, next record is %d",
					snap.Op, prev, u.Seq)
			}
			err = st.ApplyUpdate(u.Seq, u.Payload)
			if err != nil {
				return fmt.Errorf("channel %x update %d won't apply: %s",
					snap.Op, u.Seq, err.Error())
			}
			prev = u.Seq
			applied++
		}
		logging.Infof("restored channel %x at seq %d (%d updates replayed)\n",
			snap.Op, prev, applied)
		states = append(states, st)
	}

	ledgerData, err := n.Store.Ledger()
	if err != nil {
		return err
	}
	if len(ledgerData) == 0 {
		logging.Infof("no persisted ledger, starting fresh on %s\n", info.Chain)
		n.Ledger, err = n.Eng.NewLedger(ChainParams{
			Chain:      info.Chain,
			BestHash:   *tipHash,
			BestHeight: info.Blocks,
		})
	} else {
		n.Ledger, err = n.Eng.RestoreLedger(ledgerData, states)
	}
	if err != nil {
		return fmt.Errorf("ledger won't restore: %s", err.Error())
	}

	// Each restored object last saw the chain at its own block; bring
	// them all to the current tip independently before any of them is
	// allowed to see live blocks.
	var targets []syncTarget
	for _, st := range states {
		hash, height := st.BestBlock()
		targets = append(targets, syncTarget{listener: st, hash: hash, height: height})
	}
	lHash, lHeight := n.Ledger.BestBlock()
	targets = append(targets, syncTarget{listener: n.Ledger, hash: lHash, height: lHeight})

	for _, t := range targets {
		err = n.syncOne(t, info.Blocks)
		if err != nil {
			return fmt.Errorf("chain sync: %s", err.Error())
		}
	}

	for _, st := range states {
		err = n.Eng.WatchChannel(st)
		if err != nil {
			return fmt.Errorf("engine rejected channel %x: %s",
				st.FundingOutPoint(), err.Error())
		}
		n.listeners = append(n.listeners, st)
	}
	n.listeners = append(n.listeners, n.Ledger)
	n.tipHash = *tipHash
	n.tipHeight = info.Blocks
	return nil
}
