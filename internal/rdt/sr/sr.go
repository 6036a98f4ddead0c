// Package sr implements the Selective Repeat sender and receiver state
// machines from spec §4.3: per-segment ACK, a per-segment timer, and a
// receiver buffer for out-of-order arrivals. Unlike gbn, ACK(a)
// acknowledges exactly seq a — no relabeling is needed here since there
// is no "nothing received yet" ambiguity to resolve.
package sr

import (
	"time"

	"github.com/rdtlab/rdtsim/internal/rdt"
	"github.com/rdtlab/rdtsim/internal/rdt/timerheap"
	"github.com/rdtlab/rdtsim/internal/segment"
	"github.com/rdtlab/rdtsim/logging"
)

// Sender is the SR sender described in spec §4.3.
type Sender struct {
	segments [][]byte
	window   uint32
	timeout  time.Duration
	tracer   logging.RunTracer

	base, nextSeq uint32
	acked         map[uint32]bool
	timers        *timerheap.Heap
	retx          uint64
}

var _ rdt.Sender = (*Sender)(nil)

// NewSender builds an SR sender for payload, chunked into mss-sized
// segments, with a fixed window and a fixed per-segment timeout.
func NewSender(payload []byte, mss int, window uint32, timeout time.Duration, tracer logging.RunTracer) *Sender {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	return &Sender{
		segments: rdt.Segmentize(payload, mss),
		window:   window,
		timeout:  timeout,
		tracer:   tracer,
		acked:    make(map[uint32]bool),
		timers:   timerheap.New(),
	}
}

func (s *Sender) TotalSegments() int { return len(s.segments) }

func (s *Sender) FillWindow(now time.Time) []segment.Segment {
	var out []segment.Segment
	for s.nextSeq < s.base+s.window && int(s.nextSeq) < len(s.segments) {
		seq := s.nextSeq
		out = append(out, segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]})
		s.tracer.SegmentSent(seq, false, false)
		s.timers.Set(seq, now.Add(s.timeout))
		s.nextSeq++
	}
	return out
}

// OnAck marks seq as acked (SR's ACK(a) acknowledges exactly seq a, not
// cumulatively) and slides base past the resulting contiguous
// acknowledged prefix.
func (s *Sender) OnAck(ack segment.Segment, now time.Time) []segment.Segment {
	if ack.Type != segment.TypeAck {
		return nil
	}
	a := ack.Ack
	if a < s.base || a >= s.nextSeq {
		return nil // outside the outstanding window: stale or not yet sent
	}
	if s.acked[a] {
		return nil // duplicate: no state change
	}
	s.acked[a] = true
	s.timers.Cancel(a)

	for s.base < s.nextSeq && s.acked[s.base] {
		delete(s.acked, s.base)
		s.base++
	}
	return nil
}

func (s *Sender) NextTimerDeadline() (time.Time, bool) {
	_, deadline, ok := s.timers.Peek()
	return deadline, ok
}

func (s *Sender) OnTimerExpiry(now time.Time) []segment.Segment {
	expired := s.timers.PopExpired(now)
	out := make([]segment.Segment, 0, len(expired))
	for _, seq := range expired {
		out = append(out, segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]})
		s.tracer.SegmentSent(seq, false, true)
		s.tracer.Retransmit(seq, logging.RetransmitReasonTimeout)
		s.timers.Set(seq, now.Add(s.timeout))
	}
	s.retx += uint64(len(out))
	return out
}

func (s *Sender) Done() bool { return int(s.base) >= len(s.segments) }

func (s *Sender) Retransmissions() uint64 { return s.retx }

// Receiver is the SR receiver described in spec §4.3.
type Receiver struct {
	total    int
	window   uint32
	expected uint32
	buffered map[uint32][]byte
	buf      []byte
	tracer   logging.RunTracer
}

var _ rdt.Receiver = (*Receiver)(nil)

// NewReceiver builds an SR receiver expecting totalSegments segments,
// buffering out-of-order arrivals within window slots ahead of expected.
func NewReceiver(totalSegments int, window uint32, tracer logging.RunTracer) *Receiver {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	return &Receiver{
		total:    totalSegments,
		window:   window,
		buffered: make(map[uint32][]byte),
		tracer:   tracer,
	}
}

func (r *Receiver) OnData(seg segment.Segment, now time.Time) (segment.Segment, bool) {
	if seg.Type != segment.TypeData {
		return segment.Segment{}, false
	}
	switch {
	case seg.Seq < r.expected:
		// Already delivered: re-ACK so a lost ACK doesn't stall the
		// sender (spec §4.3's mandated re-ACK, resolving spec §9's open
		// question in favor of liveness). Not a fresh delivery, so no
		// SegmentDelivered trace.
		return segment.Segment{Type: segment.TypeAck, Ack: seg.Seq}, true

	case seg.Seq < r.expected+r.window:
		r.tracer.SegmentDelivered(seg.Seq, false)
		if _, have := r.buffered[seg.Seq]; !have {
			r.buffered[seg.Seq] = seg.Payload
		}
		r.slideDeliverable()
		return segment.Segment{Type: segment.TypeAck, Ack: seg.Seq}, true

	default:
		// Outside the receive window: drop silently, no ACK.
		r.tracer.SegmentDropped(seg.Seq, logging.DropReasonOutOfWindow)
		return segment.Segment{}, false
	}
}

func (r *Receiver) slideDeliverable() {
	for {
		payload, ok := r.buffered[r.expected]
		if !ok {
			return
		}
		r.buf = append(r.buf, payload...)
		delete(r.buffered, r.expected)
		r.expected++
	}
}

func (r *Receiver) Done() bool { return int(r.expected) >= r.total }

func (r *Receiver) DeliveredBytes() uint64 { return uint64(len(r.buf)) }

func (r *Receiver) Payload() []byte { return r.buf }

// BufferedCount reports how many out-of-order segments are currently
// buffered, for tests asserting the buffer never exceeds the window.
func (r *Receiver) BufferedCount() int { return len(r.buffered) }
