// Package gbn implements the Go-Back-N sender and receiver state
// machines from spec §4.2: cumulative ACK, a single retransmission
// timer for the oldest unacked segment, and go-back retransmission of
// the whole in-flight window on timeout.
//
// ACK numbering convention: an ACK's Ack field carries the number of
// contiguous segments the receiver has accepted so far — equivalently,
// the receiver's "expected" sequence number. This is spec §4.2's
// "ACK(n) means all through n inclusive received" relabeled by one so
// that "nothing received yet" is Ack==0 instead of an undefined
// Ack==-1; the two conventions describe the same protocol, just with the
// ACK number shifted by one, and this shift removes the negative-number
// edge case at the very start of a transfer. See DESIGN.md.
package gbn

import (
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/rdt"
	"github.com/rdtlab/rdtsim/internal/segment"
	"github.com/rdtlab/rdtsim/logging"
)

// Sender is the GBN sender described in spec §4.2.
type Sender struct {
	segments [][]byte
	window   uint32
	timeout  time.Duration
	tracer   logging.RunTracer

	base, nextSeq uint32
	timerActive   bool
	timerDeadline time.Time
	retx          uint64
}

var _ rdt.Sender = (*Sender)(nil)

// NewSender builds a GBN sender for payload, chunked into mss-sized
// segments, with a fixed window and a fixed retransmission timeout
// (spec §4.2 suggests 2xRTT; the caller decides the exact value).
func NewSender(payload []byte, mss int, window uint32, timeout time.Duration, tracer logging.RunTracer) *Sender {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	return &Sender{
		segments: rdt.Segmentize(payload, mss),
		window:   window,
		timeout:  timeout,
		tracer:   tracer,
	}
}

// TotalSegments reports how many segments the payload was split into.
func (s *Sender) TotalSegments() int { return len(s.segments) }

func (s *Sender) FillWindow(now time.Time) []segment.Segment {
	var out []segment.Segment
	for s.nextSeq < s.base+s.window && int(s.nextSeq) < len(s.segments) {
		seg := segment.Segment{Type: segment.TypeData, Seq: s.nextSeq, Payload: s.segments[s.nextSeq]}
		out = append(out, seg)
		s.tracer.SegmentSent(uint32(s.nextSeq), false, false)
		s.nextSeq++
	}
	if !s.timerActive && s.base < s.nextSeq {
		s.armTimer(now)
	}
	return out
}

func (s *Sender) armTimer(now time.Time) {
	s.timerActive = true
	s.timerDeadline = now.Add(s.timeout)
}

func (s *Sender) OnAck(ack segment.Segment, now time.Time) []segment.Segment {
	if ack.Type != segment.TypeAck {
		return nil
	}
	a := ack.Ack
	if a <= s.base {
		return nil // stale or duplicate: no state change (idempotent by construction)
	}
	s.base = a
	if s.base == s.nextSeq {
		s.timerActive = false
	} else {
		s.armTimer(now)
	}
	return nil
}

func (s *Sender) NextTimerDeadline() (time.Time, bool) {
	if !s.timerActive {
		return time.Time{}, false
	}
	return s.timerDeadline, true
}

func (s *Sender) OnTimerExpiry(now time.Time) []segment.Segment {
	if !s.timerActive {
		return nil
	}
	out := make([]segment.Segment, 0, s.nextSeq-s.base)
	for seq := s.base; seq < s.nextSeq; seq++ {
		out = append(out, segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]})
		s.tracer.SegmentSent(seq, false, true)
		s.tracer.Retransmit(seq, logging.RetransmitReasonTimeout)
	}
	s.retx += uint64(len(out))
	s.armTimer(now)
	return out
}

func (s *Sender) Done() bool { return int(s.base) >= len(s.segments) }

func (s *Sender) Retransmissions() uint64 { return s.retx }

// Receiver is the GBN receiver described in spec §4.2.
type Receiver struct {
	total    int
	expected uint32
	buf      []byte
	tracer   logging.RunTracer
}

var _ rdt.Receiver = (*Receiver)(nil)

// NewReceiver builds a GBN receiver that expects totalSegments segments
// in total before the transfer is complete.
func NewReceiver(totalSegments int, tracer logging.RunTracer) *Receiver {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	return &Receiver{total: totalSegments, tracer: tracer}
}

func (r *Receiver) OnData(seg segment.Segment, now time.Time) (segment.Segment, bool) {
	if seg.Type != segment.TypeData {
		return segment.Segment{}, false
	}
	if seg.Seq == r.expected {
		r.tracer.SegmentDelivered(seg.Seq, false)
		r.buf = append(r.buf, seg.Payload...)
		r.expected++
	} else if seg.Seq < r.expected {
		r.tracer.SegmentDropped(seg.Seq, logging.DropReasonStaleAck)
	} else {
		r.tracer.SegmentDropped(seg.Seq, logging.DropReasonOutOfWindow)
	}
	return segment.Segment{Type: segment.TypeAck, Ack: r.expected}, true
}

func (r *Receiver) Done() bool { return int(r.expected) >= r.total }

func (r *Receiver) DeliveredBytes() uint64 { return uint64(len(r.buf)) }

func (r *Receiver) Payload() []byte { return r.buf }

// DefaultTimeout derives the GBN fixed timeout from a base RTT, per spec
// §4.2's "typically 2xRTT".
func DefaultTimeout(rtt time.Duration) time.Duration {
	return time.Duration(protocol.GBNTimeoutMultiplier) * rtt
}
