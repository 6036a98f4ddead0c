// Package driver runs a single reliable-transfer experiment end to end
// (spec §4.5): it wires a channel and a protocol's sender/receiver pair
// together in a single-threaded, deterministic event loop and reports
// the resulting timing and retransmission counts. Scenario validation
// follows the teacher's config.go: an explicit Validate method returning
// typed errors, plus an unexported populate* step for optional-field
// defaulting.
package driver

import (
	"fmt"
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/qerr"
)

// Scenario is the input to a single experiment: a protocol under test,
// channel impairment parameters, and a repetition count, per spec §4.5.
type Scenario struct {
	// Protocol names the RDT variant under test: "gbn", "sr", or "tcp".
	Protocol string

	PayloadBytes int
	MSS          int
	Window       uint32

	LossProb    float64
	RTT         time.Duration // base round-trip time; one-way delay is RTT/2
	JitterMax   time.Duration
	CorruptProb float64
	ReorderProb float64

	// CongestionControl enables the TCP-like sender's optional AIMD
	// window (spec §4.4). Ignored for gbn and sr.
	CongestionControl bool

	// Runs is how many independent repetitions to average over.
	Runs int
	// Seed is the base PRNG seed; run i uses Seed+i, so each run in a
	// batch is reproducible individually as well as as a batch.
	Seed int64

	// Timeout overrides the per-run safety bound (spec §4.5). Zero means
	// populateScenario derives a default from RTT and payload size.
	Timeout time.Duration
}

// Validate reports whether every field of s is within range, returning a
// qerr.ConfigInvalid error naming the first offending field.
func (s Scenario) Validate() error {
	if _, ok := protocol.ParseVariant(s.Protocol); !ok {
		return qerr.NewConfigInvalid("Protocol", fmt.Sprintf("unknown protocol %q", s.Protocol))
	}
	if s.PayloadBytes <= 0 {
		return qerr.NewConfigInvalid("PayloadBytes", fmt.Sprintf("must be positive, got %d", s.PayloadBytes))
	}
	if s.MSS <= 0 {
		return qerr.NewConfigInvalid("MSS", fmt.Sprintf("must be positive, got %d", s.MSS))
	}
	if s.Window == 0 {
		return qerr.NewConfigInvalid("Window", "must be positive")
	}
	if s.RTT < 0 {
		return qerr.NewConfigInvalid("RTT", fmt.Sprintf("must be non-negative, got %s", s.RTT))
	}
	if err := validateProbability("LossProb", s.LossProb); err != nil {
		return err
	}
	if err := validateProbability("CorruptProb", s.CorruptProb); err != nil {
		return err
	}
	if err := validateProbability("ReorderProb", s.ReorderProb); err != nil {
		return err
	}
	if s.Runs < 0 {
		return qerr.NewConfigInvalid("Runs", fmt.Sprintf("must be non-negative, got %d", s.Runs))
	}
	return nil
}

func validateProbability(field string, p float64) error {
	if p < 0 || p > 1 {
		return qerr.NewConfigInvalid(field, fmt.Sprintf("must be in [0,1], got %v", p))
	}
	return nil
}

// TotalSegments returns how many fixed-size segments PayloadBytes splits
// into under MSS, ceiling-rounded for a short final segment.
func (s Scenario) TotalSegments() int {
	return (s.PayloadBytes + s.MSS - 1) / s.MSS
}

// populateScenario fills in optional fields left at their zero value. It
// never touches fields Validate treats as required (Window, MSS,
// PayloadBytes, Protocol): those are the caller's responsibility, the
// same division of labor as the teacher's populateConfig versus
// validateConfig.
func populateScenario(s Scenario) Scenario {
	if s.Runs == 0 {
		s.Runs = 1
	}
	if s.Timeout == 0 {
		s.Timeout = defaultSafetyTimeout(s)
	}
	return s
}

// defaultSafetyTimeout implements spec §4.5's "10 minutes of simulated
// time or 100x the loss-free expected completion time", taking the
// tighter of the two bounds so a pathological small scenario aborts
// quickly rather than waiting a full 10 minutes.
func defaultSafetyTimeout(s Scenario) time.Duration {
	const absoluteCap = 10 * time.Minute
	if s.RTT <= 0 {
		return absoluteCap
	}
	// Rough loss-free estimate: one RTT per window's worth of segments in
	// flight, ignoring pipelining overlap; a heuristic upper bound is all
	// this safety valve needs.
	windows := (s.TotalSegments() + int(s.Window) - 1) / int(s.Window)
	if windows < 1 {
		windows = 1
	}
	lossFree := time.Duration(windows) * s.RTT
	bound := 100 * lossFree
	if bound > absoluteCap || bound <= 0 {
		return absoluteCap
	}
	return bound
}
