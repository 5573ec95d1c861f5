package lnode

import (
	"bytes"
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnchan/chand/chainrpc"
	"github.com/lnchan/chand/logging"
	"github.com/lnchan/chand/payments"
	"github.com/lnchan/chand/probe"
)

// eventLoop services the engine's notification feed, one event at a
// time.  The engine blocks on the channel send, so a handler that
// hasn't returned holds the whole feed; handlers that need to wait
// (forward batching) schedule the wait and return.
func (n *Node) eventLoop() {
	defer n.wg.Done()
	events := n.Eng.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.handleEvent(ev)
		case <-n.quit:
			return
		}
	}
}

func (n *Node) handleEvent(ev Event) {
	logging.Debugf("event %s\n", ev.Name())
	switch e := ev.(type) {
	case FundingReadyEvent:
		n.handleFundingReady(e)
	case PaymentReceivedEvent:
		n.handlePaymentReceived(e)
	case PaymentSentEvent:
		n.handlePaymentSent(e)
	case PaymentPathFailedEvent:
		n.handlePathFailed(e)
	case PaymentFailedEvent:
		n.handlePaymentFailed(e)
	case PaymentForwardedEvent:
		n.handleForwarded(e)
	case PendingForwardsEvent:
		n.handlePendingForwards(e)
	case SpendableOutputsEvent:
		n.handleSpendableOutputs(e)
	case ChannelClosedEvent:
		logging.Infof("channel %x closed: %s\n", e.ChanID, e.Reason)
	case OpenChannelRequestEvent:
		// only fires with manual acceptance on, which we don't enable
	case DiscardFundingEvent:
		// The funding tx was never broadcast, so there's nothing on
		// chain to clean up.
		// TODO: unlock the wallet UTXOs fundrawtransaction reserved for
		// this channel so they're spendable again without a restart.
		logging.Infof("funding for channel %x discarded\n", e.ChanID)
	default:
		logging.Warnf("unhandled event %s\n", ev.Name())
	}
}

// handleFundingReady builds, funds, and signs the funding transaction
// for a freshly negotiated channel, then hands it back to the engine.
// The engine broadcasts it itself once the peer has countersigned;
// broadcasting here would commit funds before the channel is safe.
func (n *Node) handleFundingReady(ev FundingReadyEvent) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(ev.OutputScript, n.Params)
	if err != nil || len(addrs) == 0 {
		logging.Errorf("funding script for %x won't decode: %v\n", ev.TempChanID, err)
		return
	}
	outputs := map[string]float64{
		addrs[0].EncodeAddress(): btcutil.Amount(ev.ValueSat).ToBTC(),
	}

	raw, err := n.Chain.CreateRawTx(outputs)
	if err != nil {
		logging.Errorf("createrawtransaction for %x: %s\n", ev.TempChanID, err.Error())
		return
	}
	funded, err := n.Chain.FundRawTx(raw)
	if err != nil {
		logging.Errorf("fundrawtransaction for %x: %s\n", ev.TempChanID, err.Error())
		return
	}
	signedHex, err := n.Chain.SignRawTxWithWallet(funded.Hex)
	if err != nil {
		logging.Errorf("signing funding tx for %x: %s\n", ev.TempChanID, err.Error())
		return
	}

	rawTx, err := hex.DecodeString(signedHex)
	if err != nil {
		logging.Errorf("signed funding tx isn't hex: %s\n", err.Error())
		return
	}
	tx := new(wire.MsgTx)
	err = tx.Deserialize(bytes.NewReader(rawTx))
	if err != nil {
		logging.Errorf("signed funding tx won't deserialize: %s\n", err.Error())
		return
	}

	// A rejection here just means the peer went away mid-handshake.
	err = n.Ledger.FundingTxGenerated(ev.TempChanID, tx)
	if err != nil {
		logging.Warnf("engine refused funding tx for %x: %s\n",
			ev.TempChanID, err.Error())
	}
}

func (n *Node) handlePaymentReceived(ev PaymentReceivedEvent) {
	if ev.Purpose.Preimage == nil {
		// An invoice payment whose preimage we no longer know; can't
		// claim, and the HTLC will come back to the sender on timeout.
		logging.Warnf("payment %x received with no preimage, not claiming\n", ev.Hash)
		return
	}

	status := payments.Failed
	if n.Ledger.ClaimFunds(*ev.Purpose.Preimage) {
		status = payments.Succeeded
		logging.Infof("claimed payment %x for %d msat\n", ev.Hash, ev.AmtMsat)
	} else {
		logging.Warnf("engine wouldn't claim payment %x\n", ev.Hash)
	}

	amt := ev.AmtMsat
	n.Pay.Inbound.Put(ev.Hash, payments.Payment{
		Preimage: ev.Purpose.Preimage,
		Secret:   ev.Purpose.Secret,
		Status:   status,
		AmtMsat:  &amt,
	})
}

func (n *Node) handlePaymentSent(ev PaymentSentEvent) {
	preimage := ev.Preimage
	ok := n.Pay.Outbound.Update(ev.Hash, func(p *payments.Payment) {
		p.Preimage = &preimage
		p.Status = payments.Succeeded
	})
	if !ok {
		logging.Warnf("payment %x reported sent but isn't in the outbound book\n", ev.Hash)
		return
	}
	if ev.FeeMsat != nil {
		logging.Infof("payment %x settled, fee %d msat\n", ev.Hash, *ev.FeeMsat)
	} else {
		logging.Infof("payment %x settled\n", ev.Hash)
	}
}

// handlePathFailed records one failed attempt for offline analysis.
// The failing node isn't identified in the event, so we blame the last
// hop of the path and treat the hop before it as the probe target.
// Single-hop paths have no intermediate to blame, and a missing error
// code carries nothing worth classifying.
func (n *Node) handlePathFailed(ev PaymentPathFailedEvent) {
	if len(ev.Path) == 0 {
		logging.Warnf("path failure with an empty path\n")
		return
	}
	if len(ev.Path) == 1 || ev.ErrorCode == nil {
		return
	}

	guess := ev.Path[len(ev.Path)-1]
	target := ev.Path[len(ev.Path)-2]
	err := n.Probe.Record(&probe.Attempt{
		TargetPubkey: hex.EncodeToString(target.NodeID[:]),
		GuessPubkey:  hex.EncodeToString(guess.NodeID[:]),
		ChannelID:    strconv.FormatUint(guess.ChannelID, 10),
		Result:       probe.Classify(*ev.ErrorCode),
	})
	if err != nil {
		logging.Warnf("recording failed attempt: %s\n", err.Error())
	}
}

func (n *Node) handlePaymentFailed(ev PaymentFailedEvent) {
	n.Pay.Outbound.Update(ev.Hash, func(p *payments.Payment) {
		p.Status = payments.Failed
	})
	// Remove is a no-op if a prior failure already cleared it.
	n.Pay.Pending.Remove(ev.Hash)
	logging.Infof("payment %x failed, all retries exhausted\n", ev.Hash)
}

func (n *Node) handleForwarded(ev PaymentForwardedEvent) {
	if ev.FeeMsat != nil {
		logging.Infof("forwarded a payment, earned %d msat\n", *ev.FeeMsat)
	} else {
		// fee unknowable when the inbound channel was force closed
		logging.Infof("forwarded a payment from a closed channel, fee unknown\n")
	}
	if ev.FromOnchain {
		logging.Infof("forward fee came from an on-chain claim\n")
	}
}

func (n *Node) handlePendingForwards(ev PendingForwardsEvent) {
	afterJitter(ev.MinWait, func() {
		n.Ledger.ProcessPendingForwards()
	})
}

// handleSpendableOutputs sweeps engine-controlled outputs to a fresh
// wallet address.  Failures are logged and dropped; the engine hands
// the same outputs back again until they're actually spent.
func (n *Node) handleSpendableOutputs(ev SpendableOutputsEvent) {
	addrStr, err := n.Chain.NewAddress()
	if err != nil {
		logging.Errorf("getting sweep address: %s\n", err.Error())
		return
	}
	addr, err := btcutil.DecodeAddress(addrStr, n.Params)
	if err != nil {
		logging.Errorf("sweep address %q won't decode: %s\n", addrStr, err.Error())
		return
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		logging.Errorf("sweep script: %s\n", err.Error())
		return
	}

	feeRate := n.Chain.EstimateFee(chainrpc.FeeTargetNormal)
	tx, err := n.Ledger.SpendOutputs(ev.Outputs, script, feeRate)
	if err != nil {
		logging.Errorf("building sweep tx: %s\n", err.Error())
		return
	}
	err = n.Chain.Broadcast(tx)
	if err != nil {
		logging.Errorf("broadcasting sweep tx: %s\n", err.Error())
		return
	}
	logging.Infof("swept %d outputs to %s\n", len(ev.Outputs), addrStr)
}
