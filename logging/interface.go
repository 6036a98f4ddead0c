// Package logging defines the structured per-run event interface used by
// the protocol state machines and the driver, modeled on quic-go's
// logging.ConnectionTracer: one method per notable protocol event, so a
// caller can plug in a recorder (for a qlog-style trace, a test
// assertion, or nothing at all) without the protocol code knowing which.
package logging

import "time"

// DropReason explains why a segment observed by the receiver, or an ACK
// observed by the sender, was discarded instead of acted on.
type DropReason uint8

const (
	DropReasonUnknown DropReason = iota
	DropReasonChecksum
	DropReasonOutOfWindow
	DropReasonStaleAck
	DropReasonChannelLoss
)

func (r DropReason) String() string {
	switch r {
	case DropReasonChecksum:
		return "checksum"
	case DropReasonOutOfWindow:
		return "out_of_window"
	case DropReasonStaleAck:
		return "stale_ack"
	case DropReasonChannelLoss:
		return "channel_loss"
	default:
		return "unknown"
	}
}

// RetransmitReason explains why the sender retransmitted a segment.
type RetransmitReason uint8

const (
	RetransmitReasonTimeout RetransmitReason = iota
	RetransmitReasonFastRetransmit
)

func (r RetransmitReason) String() string {
	if r == RetransmitReasonFastRetransmit {
		return "fast_retransmit"
	}
	return "timeout"
}

// RunTracer receives one call per notable event during a single transfer.
// Every method must return promptly; tracers that need to do I/O should
// buffer internally.
type RunTracer interface {
	// SegmentSent is called by the sender for every DATA segment it hands
	// to the channel, first transmission or retransmission alike. ACKs
	// sent by the receiver are not reported.
	SegmentSent(seq uint32, isAck bool, isRetransmit bool)
	// SegmentDelivered is called when the receiver accepts a DATA
	// segment: GBN only for the next in-order seq, SR and TCP-like for
	// any seq inside the receive window.
	SegmentDelivered(seq uint32, isAck bool)
	// SegmentDropped is called when receiver protocol logic discards a
	// DATA segment (out-of-window, or already delivered for GBN). Loss
	// and corruption inside the channel are not reported.
	SegmentDropped(seq uint32, reason DropReason)
	// Retransmit is called once per segment retransmission, alongside
	// SegmentSent, with the reason it was retransmitted.
	Retransmit(seq uint32, reason RetransmitReason)
	// RTTSampled is called on every RTT sample taken by the TCP-like
	// estimator (never for retransmitted segments, per Karn's rule).
	RTTSampled(sample, srtt, rttvar, rto time.Duration)
	// TransferComplete is called exactly once, when the receiver has
	// delivered every byte of the payload in order.
	TransferComplete(elapsed time.Duration, retransmissions uint64)
	// Close is called once, when the run ends (success, or safety
	// timeout).
	Close()
}
