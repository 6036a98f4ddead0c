// Package rttstats implements the Jacobson/Karn RTT estimator TCP-like
// uses to compute its adaptive RTO (spec §4.4). The API shape — separate
// LatestRTT/SmoothedRTT/MeanDeviation/RTO accessors updated by a single
// UpdateRTT call — mirrors the teacher's internal/utils.RTTStats, but the
// update formula and clamps follow spec §4.4 exactly rather than QUIC's
// RFC 9002 variant.
package rttstats

import (
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
)

// Estimator holds the smoothed RTT, mean deviation, and derived RTO.
// The zero value is ready to use; UpdateRTT initializes SRTT/RTTVAR on
// the first sample per spec §4.4.
type Estimator struct {
	latestRTT time.Duration
	srtt      time.Duration
	rttvar    time.Duration
	rto       time.Duration
	hasSample bool
	samples   int

	// backoffShift counts consecutive RTO doublings since the last
	// successful non-retransmitted sample (spec §4.4: "On timeout, RTO
	// doubles ... until the next successful non-retransmitted sample").
	backoffShift uint
}

// UpdateRTT records a fresh RTT sample. Per Karn's rule, callers must
// only invoke this for segments that were never retransmitted; a
// retransmitted segment's ACK carries no reliable timing information.
func (e *Estimator) UpdateRTT(sample time.Duration) {
	if sample <= 0 {
		return
	}
	e.latestRTT = sample
	e.backoffShift = 0
	e.samples++

	if !e.hasSample {
		e.srtt = sample
		e.rttvar = sample / 2
		e.hasSample = true
	} else {
		diff := e.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = time.Duration((1-protocol.RTTBeta)*float64(e.rttvar) + protocol.RTTBeta*float64(diff))
		e.srtt = time.Duration((1-protocol.RTTAlpha)*float64(e.srtt) + protocol.RTTAlpha*float64(sample))
	}
	e.recompute()
}

func (e *Estimator) recompute() {
	rto := e.srtt + 4*e.rttvar
	rto <<= e.backoffShift
	e.rto = clamp(rto, protocol.RTOMin, protocol.RTOMax)
}

// OnTimeout doubles the RTO (exponential backoff), per spec §4.4. The
// doubling persists across successive timeouts until UpdateRTT next
// succeeds.
func (e *Estimator) OnTimeout() {
	e.backoffShift++
	e.recompute()
}

// LatestRTT returns the most recent sample, or 0 if none has been taken.
func (e *Estimator) LatestRTT() time.Duration { return e.latestRTT }

// SmoothedRTT returns the current SRTT, or 0 before the first sample.
func (e *Estimator) SmoothedRTT() time.Duration { return e.srtt }

// MeanDeviation returns the current RTTVAR, or 0 before the first sample.
func (e *Estimator) MeanDeviation() time.Duration { return e.rttvar }

// RTO returns the current retransmission timeout, clamped to
// [protocol.RTOMin, protocol.RTOMax]. Before the first sample it returns
// protocol.RTOInit, spec §9's resolution of the unspecified initial RTO.
func (e *Estimator) RTO() time.Duration {
	if !e.hasSample {
		return clamp(protocol.RTOInit<<e.backoffShift, protocol.RTOMin, protocol.RTOMax)
	}
	return e.rto
}

// HasSample reports whether at least one RTT sample has been recorded.
func (e *Estimator) HasSample() bool { return e.hasSample }

// SampleCount reports how many RTT samples have been folded into the
// estimator, mirroring original_source/tcp_like.py's rtt_samples list
// length in get_statistics() (kept as a running count here since nothing
// downstream needs the individual sample values once they're folded
// into SRTT/RTTVAR).
func (e *Estimator) SampleCount() int { return e.samples }

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
