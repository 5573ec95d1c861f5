package lnode

import (
	"time"
)

// Event is one protocol engine notification.  The variant set is
// closed; the dispatcher matches on concrete type, so a new variant is
// a compile-visible change.
type Event interface {
	Name() string
}

// FundingReadyEvent: the engine negotiated a channel and needs the
// wallet to produce its funding transaction.
type FundingReadyEvent struct {
	TempChanID   [32]byte
	ValueSat     int64
	OutputScript []byte
}

func (FundingReadyEvent) Name() string { return "funding.ready" }

// PaymentPurpose carries the secrets needed to claim an inbound
// payment.  Invoice payments have a preimage and a secret; spontaneous
// payments only a preimage.
type PaymentPurpose struct {
	Preimage *[32]byte
	Secret   *[32]byte
}

type PaymentReceivedEvent struct {
	Hash    [32]byte
	Purpose PaymentPurpose
	AmtMsat uint64
}

func (PaymentReceivedEvent) Name() string { return "payment.received" }

type PaymentSentEvent struct {
	Hash     [32]byte
	Preimage [32]byte
	FeeMsat  *uint64
}

func (PaymentSentEvent) Name() string { return "payment.sent" }

// RouteHop is one hop of a payment path as reported back in a path
// failure.
type RouteHop struct {
	NodeID    [33]byte
	ChannelID uint64
}

type PaymentPathFailedEvent struct {
	Path      []RouteHop
	ErrorCode *uint16
}

func (PaymentPathFailedEvent) Name() string { return "payment.pathfailed" }

// PaymentFailedEvent is terminal: the engine exhausted its retries.
type PaymentFailedEvent struct {
	Hash [32]byte
}

func (PaymentFailedEvent) Name() string { return "payment.failed" }

type PaymentForwardedEvent struct {
	FeeMsat     *uint64
	FromOnchain bool
}

func (PaymentForwardedEvent) Name() string { return "payment.forwarded" }

// PendingForwardsEvent asks the node to release queued forwards no
// sooner than MinWait from now.
type PendingForwardsEvent struct {
	MinWait time.Duration
}

func (PendingForwardsEvent) Name() string { return "htlc.forwardable" }

type SpendableOutputsEvent struct {
	Outputs []SpendableOutput
}

func (SpendableOutputsEvent) Name() string { return "outputs.spendable" }

type ChannelClosedEvent struct {
	ChanID [32]byte
	Reason string
}

func (ChannelClosedEvent) Name() string { return "channel.closed" }

// OpenChannelRequestEvent only fires when manual channel acceptance is
// switched on in the engine; this node leaves it off.
type OpenChannelRequestEvent struct {
	TempChanID [32]byte
	PeerID     [33]byte
	ValueSat   int64
}

func (OpenChannelRequestEvent) Name() string { return "channel.openrequest" }

type DiscardFundingEvent struct {
	ChanID [32]byte
}

func (DiscardFundingEvent) Name() string { return "funding.discard" }
