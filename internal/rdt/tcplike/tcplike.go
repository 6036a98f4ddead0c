// Package tcplike implements the TCP-like sender and receiver state
// machines from spec §4.4: a Selective Repeat base extended with
// Jacobson/Karn adaptive RTO, 3-duplicate-ACK fast retransmit, and an
// optional AIMD congestion window (feature-flagged off by default, per
// spec §9's resolved open question).
package tcplike

import (
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/rdt"
	"github.com/rdtlab/rdtsim/internal/rdt/timerheap"
	"github.com/rdtlab/rdtsim/internal/rttstats"
	"github.com/rdtlab/rdtsim/internal/segment"
	"github.com/rdtlab/rdtsim/logging"
)

// Sender is the TCP-like sender described in spec §4.4.
type Sender struct {
	segments [][]byte
	window   uint32
	tracer   logging.RunTracer
	rtt      rttstats.Estimator

	congestionControl bool
	cwnd, ssthresh    float64

	base, nextSeq uint32
	acked         map[uint32]bool
	sendTime      map[uint32]time.Time
	retransmitted map[uint32]bool
	timers        *timerheap.Heap

	dupAckCount uint32
	lastCumAck  uint32
	haveCumAck  bool

	timeouts        uint64
	fastRetransmits uint64
}

var _ rdt.Sender = (*Sender)(nil)
var _ rdt.RetransmitCauses = (*Sender)(nil)
var _ rdt.RTTSampleCounter = (*Sender)(nil)

// NewSender builds a TCP-like sender for payload, chunked into
// mss-sized segments, with an advertised window and Karn/Jacobson RTO
// estimation seeded to protocol.RTOInit. congestionControl toggles the
// optional AIMD window; spec §9 resolves the default to off.
func NewSender(payload []byte, mss int, window uint32, congestionControl bool, tracer logging.RunTracer) *Sender {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	s := &Sender{
		segments:          rdt.Segmentize(payload, mss),
		window:            window,
		tracer:            tracer,
		congestionControl: congestionControl,
		cwnd:              1,
		ssthresh:          1 << 30,
		acked:             make(map[uint32]bool),
		sendTime:          make(map[uint32]time.Time),
		retransmitted:     make(map[uint32]bool),
		timers:            timerheap.New(),
	}
	return s
}

func (s *Sender) TotalSegments() int { return len(s.segments) }

// effectiveWindow is min(advertised window, cwnd) when congestion control
// is enabled, per spec §4.4; otherwise it is the advertised window.
func (s *Sender) effectiveWindow() uint32 {
	if !s.congestionControl {
		return s.window
	}
	w := uint32(s.cwnd)
	if w < 1 {
		w = 1
	}
	if w > s.window {
		w = s.window
	}
	return w
}

func (s *Sender) FillWindow(now time.Time) []segment.Segment {
	var out []segment.Segment
	for s.nextSeq < s.base+s.effectiveWindow() && int(s.nextSeq) < len(s.segments) {
		seq := s.nextSeq
		out = append(out, segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]})
		s.tracer.SegmentSent(seq, false, false)
		s.sendTime[seq] = now
		s.timers.Set(seq, now.Add(s.rtt.RTO()))
		s.nextSeq++
	}
	return out
}

// OnAck processes an ACK segment. Its Ack field is the cumulative count
// of contiguously-delivered segments (spec §4.4's "ack_field"); its Seq
// field is the individual segment this particular ACK responds to. A
// third duplicate cumulative ACK triggers fast retransmit, whose
// segment (the one at last_ack+1, spec §4.4 and
// original_source/tcp_like.py:257) is returned for the caller to send
// immediately rather than waiting for its timer.
func (s *Sender) OnAck(ack segment.Segment, now time.Time) []segment.Segment {
	if ack.Type != segment.TypeAck {
		return nil
	}
	retx, retransmitted := s.trackDupAcks(ack.Ack, now)
	s.ackSegment(ack.Seq, now)

	for s.base < s.nextSeq && s.acked[s.base] {
		delete(s.acked, s.base)
		s.base++
	}
	if retransmitted {
		return []segment.Segment{retx}
	}
	return nil
}

func (s *Sender) trackDupAcks(cumAck uint32, now time.Time) (segment.Segment, bool) {
	if s.haveCumAck && cumAck == s.lastCumAck && cumAck < s.nextSeq {
		s.dupAckCount++
		if s.dupAckCount == protocol.FastRetransmitDupAcks {
			s.dupAckCount = 0
			return s.fastRetransmit(cumAck, now)
		}
		return segment.Segment{}, false
	}
	s.haveCumAck = true
	s.lastCumAck = cumAck
	s.dupAckCount = 0
	return segment.Segment{}, false
}

// fastRetransmit resends the segment at seq (last_ack+1) immediately,
// per spec §4.4, rather than merely rearming its timer and waiting: a
// rearm-only fast retransmit never puts the segment back on the wire,
// so its eventual timeout would double-count the same loss as both a
// fast retransmit and a timeout.
func (s *Sender) fastRetransmit(seq uint32, now time.Time) (segment.Segment, bool) {
	if seq >= s.nextSeq || s.acked[seq] {
		return segment.Segment{}, false
	}
	s.retransmitted[seq] = true
	s.timers.Set(seq, now.Add(s.rtt.RTO()))
	s.tracer.SegmentSent(seq, false, true)
	s.tracer.Retransmit(seq, logging.RetransmitReasonFastRetransmit)
	s.fastRetransmits++

	if s.congestionControl {
		s.ssthresh = s.cwnd / 2
		s.cwnd = s.ssthresh
	}
	return segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]}, true
}

func (s *Sender) ackSegment(seq uint32, now time.Time) {
	if seq < s.base || seq >= s.nextSeq || s.acked[seq] {
		return
	}
	if !s.retransmitted[seq] {
		// Karn's rule: only sample RTT for segments that were never
		// retransmitted.
		if sent, ok := s.sendTime[seq]; ok {
			sample := now.Sub(sent)
			s.rtt.UpdateRTT(sample)
			s.tracer.RTTSampled(sample, s.rtt.SmoothedRTT(), s.rtt.MeanDeviation(), s.rtt.RTO())
		}
	}
	s.acked[seq] = true
	s.timers.Cancel(seq)
	delete(s.sendTime, seq)
	delete(s.retransmitted, seq)
	s.growWindow()
}

// growWindow applies AIMD growth on every newly acknowledged segment,
// in order or not, per spec §4.4: cwnd+1 per ACK in slow start
// approximates doubling per RTT; cwnd += 1/cwnd per ACK approximates
// additive increase of one segment per RTT.
func (s *Sender) growWindow() {
	if !s.congestionControl {
		return
	}
	if s.cwnd < s.ssthresh {
		s.cwnd++
	} else {
		s.cwnd += 1 / s.cwnd
	}
}

func (s *Sender) NextTimerDeadline() (time.Time, bool) {
	_, deadline, ok := s.timers.Peek()
	return deadline, ok
}

func (s *Sender) OnTimerExpiry(now time.Time) []segment.Segment {
	expired := s.timers.PopExpired(now)
	if len(expired) == 0 {
		return nil
	}
	s.rtt.OnTimeout()
	if s.congestionControl {
		s.ssthresh = s.cwnd / 2
		if s.ssthresh < 2 {
			s.ssthresh = 2
		}
		s.cwnd = 1
	}

	out := make([]segment.Segment, 0, len(expired))
	for _, seq := range expired {
		out = append(out, segment.Segment{Type: segment.TypeData, Seq: seq, Payload: s.segments[seq]})
		s.retransmitted[seq] = true
		s.tracer.SegmentSent(seq, false, true)
		s.tracer.Retransmit(seq, logging.RetransmitReasonTimeout)
		s.timers.Set(seq, now.Add(s.rtt.RTO()))
	}
	s.timeouts += uint64(len(out))
	return out
}

func (s *Sender) Done() bool { return int(s.base) >= len(s.segments) }

// Retransmissions is the total of timeout- and fast-retransmit-driven
// retransmissions, spec §4.5's single reported figure.
func (s *Sender) Retransmissions() uint64 { return s.timeouts + s.fastRetransmits }

// Timeouts is the count of retransmissions caused by a timer expiring,
// grounded on original_source/tcp_like.py's self.timeouts.
func (s *Sender) Timeouts() uint64 { return s.timeouts }

// FastRetransmits is the count of retransmissions caused by three
// duplicate cumulative ACKs, grounded on original_source/tcp_like.py's
// self.fast_retransmits.
func (s *Sender) FastRetransmits() uint64 { return s.fastRetransmits }

// RTTSampleCount reports how many RTT samples the estimator has taken,
// grounded on original_source/tcp_like.py's len(self.rtt_samples).
func (s *Sender) RTTSampleCount() int { return s.rtt.SampleCount() }

// RTOEstimate exposes the current adaptive RTO, for tests and tracing.
func (s *Sender) RTOEstimate() time.Duration { return s.rtt.RTO() }

// HasRTTSample reports whether the RTT estimator has taken at least one
// sample, for tests exercising Karn's rule.
func (s *Sender) HasRTTSample() bool { return s.rtt.HasSample() }

// Cwnd exposes the current congestion window, for tests.
func (s *Sender) Cwnd() float64 { return s.cwnd }

// Receiver is the TCP-like receiver described in spec §4.4: identical
// buffering behavior to sr.Receiver, but every ACK also carries the
// individual segment seq it responds to so the sender can sample RTT
// and detect duplicate cumulative ACKs.
type Receiver struct {
	total    int
	window   uint32
	expected uint32
	buffered map[uint32][]byte
	buf      []byte
	tracer   logging.RunTracer
}

var _ rdt.Receiver = (*Receiver)(nil)

// NewReceiver builds a TCP-like receiver expecting totalSegments
// segments, buffering out-of-order arrivals within window slots ahead
// of expected.
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
		// Already delivered: re-ACK for liveness, no fresh delivery to trace.
		return segment.Segment{Type: segment.TypeAck, Ack: r.expected, Seq: seg.Seq}, true

	case seg.Seq < r.expected+r.window:
		r.tracer.SegmentDelivered(seg.Seq, false)
		if _, have := r.buffered[seg.Seq]; !have {
			r.buffered[seg.Seq] = seg.Payload
		}
		r.slideDeliverable()
		return segment.Segment{Type: segment.TypeAck, Ack: r.expected, Seq: seg.Seq}, true

	default:
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
// buffered.
func (r *Receiver) BufferedCount() int { return len(r.buffered) }
