package driver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/qerr"
	"github.com/rdtlab/rdtsim/internal/rdt"
	"github.com/rdtlab/rdtsim/internal/rdt/gbn"
	"github.com/rdtlab/rdtsim/internal/rdt/sr"
	"github.com/rdtlab/rdtsim/internal/rdt/tcplike"
	"github.com/rdtlab/rdtsim/internal/simchannel"
	"github.com/rdtlab/rdtsim/internal/simclock"
	"github.com/rdtlab/rdtsim/internal/xlog"
	"github.com/rdtlab/rdtsim/logging"
	"github.com/rdtlab/rdtsim/metrics"
	"golang.org/x/sync/errgroup"
)

// RunResult is one run's outcome, per spec §4.5.
type RunResult struct {
	Protocol        string
	Seed            int64
	Success         bool
	ElapsedSim      time.Duration
	ThroughputBps   float64
	Retransmissions uint64

	// Timeouts, FastRetransmits, and RTTSamples break Retransmissions
	// down by cause, for protocols that distinguish one (TCP-like). GBN
	// and SR have only one retransmission cause each and leave these at
	// zero; see rdt.RetransmitCauses and rdt.RTTSampleCounter.
	Timeouts        uint64
	FastRetransmits uint64
	RTTSamples      int
}

// AggregateResult is the mean-of-runs summary for one scenario, per
// spec §4.5 and §6.
type AggregateResult struct {
	Row  metrics.Row
	Runs []RunResult
}

func newPayload(size int, seed int64) []byte {
	buf := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func buildEndpoints(sc Scenario, payload []byte, variant protocol.Variant, tracer logging.RunTracer) (rdt.Sender, rdt.Receiver) {
	total := sc.TotalSegments()
	switch variant {
	case protocol.GBN:
		timeout := gbn.DefaultTimeout(sc.RTT)
		return gbn.NewSender(payload, sc.MSS, sc.Window, timeout, tracer), gbn.NewReceiver(total, tracer)
	case protocol.SR:
		timeout := gbn.DefaultTimeout(sc.RTT)
		return sr.NewSender(payload, sc.MSS, sc.Window, timeout, tracer), sr.NewReceiver(total, sc.Window, tracer)
	default: // protocol.TCPLike
		return tcplike.NewSender(payload, sc.MSS, sc.Window, sc.CongestionControl, tracer),
			tcplike.NewReceiver(total, sc.Window, tracer)
	}
}

// RunOnce drives a single deterministic run of scenario sc with the
// given seed to completion (or to its safety timeout), per spec §4.5 and
// §9's single-event-loop design. A safety-bound timeout is reported as a
// (RunResult{Success:false}, qerr.RunTimeout) pair rather than an
// exceptional program error, matching spec §4.5's "record it as failed".
func RunOnce(ctx context.Context, sc Scenario, seed int64, tracer logging.RunTracer) (RunResult, error) {
	if tracer == nil {
		tracer = logging.NullTracer
	}
	sc = populateScenario(sc)
	if err := sc.Validate(); err != nil {
		return RunResult{}, err
	}
	variant, _ := protocol.ParseVariant(sc.Protocol)

	clock := simclock.NewVirtual(time.Unix(0, 0))
	ch := simchannel.New(clock, simchannel.Config{
		LossProb:    sc.LossProb,
		RTT:         sc.RTT,
		JitterMax:   sc.JitterMax,
		CorruptProb: sc.CorruptProb,
		ReorderProb: sc.ReorderProb,
		Seed:        seed,
	})
	payload := newPayload(sc.PayloadBytes, seed)
	sender, receiver := buildEndpoints(sc, payload, variant, tracer)
	defer tracer.Close()

	xlog.Debugf("driver: starting run protocol=%s seed=%d segments=%d window=%d loss=%.2f",
		sc.Protocol, seed, sc.TotalSegments(), sc.Window, sc.LossProb)

	start := clock.Now()
	deadline := start.Add(sc.Timeout)

	for {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		drainDeliveries(ch, receiver, sender, clock)
		for _, seg := range sender.FillWindow(clock.Now()) {
			ch.SendAtoB(seg)
		}

		if receiver.Done() {
			break
		}
		if clock.Now().After(deadline) {
			elapsed := clock.Now().Sub(start)
			xlog.Errorf("driver: run timed out protocol=%s seed=%d elapsed=%s", sc.Protocol, seed, elapsed)
			return RunResult{Protocol: sc.Protocol, Seed: seed, Success: false, ElapsedSim: elapsed},
				qerr.NewRunTimeout(elapsed.String())
		}

		if !advance(ch, sender, clock) {
			// Nothing left to wait for: the sender believes it is
			// finished, but the receiver never completed. This can only
			// happen if a protocol implementation has a bug, since every
			// outstanding segment always carries an active timer.
			return RunResult{}, fmt.Errorf("driver: run stalled with no pending timer or channel event, sender.Done=%v", sender.Done())
		}
	}

	elapsed := clock.Now().Sub(start)
	seconds := elapsed.Seconds()
	var throughput float64
	if seconds > 0 {
		throughput = 8 * float64(sc.PayloadBytes) / seconds
	}
	tracer.TransferComplete(elapsed, sender.Retransmissions())
	xlog.Debugf("driver: run complete protocol=%s seed=%d elapsed=%s retransmissions=%d",
		sc.Protocol, seed, elapsed, sender.Retransmissions())

	res := RunResult{
		Protocol:        sc.Protocol,
		Seed:            seed,
		Success:         true,
		ElapsedSim:      elapsed,
		ThroughputBps:   throughput,
		Retransmissions: sender.Retransmissions(),
	}
	if causes, ok := sender.(rdt.RetransmitCauses); ok {
		res.Timeouts = causes.Timeouts()
		res.FastRetransmits = causes.FastRetransmits()
	}
	if counter, ok := sender.(rdt.RTTSampleCounter); ok {
		res.RTTSamples = counter.RTTSampleCount()
	}
	return res, nil
}

// drainDeliveries processes every segment currently ready for delivery
// at either endpoint, without advancing the clock.
func drainDeliveries(ch *simchannel.Channel, receiver rdt.Receiver, sender rdt.Sender, clock *simclock.Virtual) {
	for {
		seg, ok := ch.RecvB(0)
		if !ok {
			break
		}
		if ack, ok := receiver.OnData(seg, clock.Now()); ok {
			ch.SendBtoA(ack)
		}
	}
	for {
		seg, ok := ch.RecvA(0)
		if !ok {
			break
		}
		for _, out := range sender.OnAck(seg, clock.Now()) {
			ch.SendAtoB(out)
		}
	}
}

// advance moves the virtual clock forward to the next thing that could
// possibly happen — a channel delivery or a sender timer — and fires
// whichever comes first. It reports false if there is nothing left to
// wait for.
func advance(ch *simchannel.Channel, sender rdt.Sender, clock *simclock.Virtual) bool {
	nextChannel, hasChannel := ch.NextDeadline()
	nextTimer, hasTimer := sender.NextTimerDeadline()

	switch {
	case hasTimer && (!hasChannel || !nextChannel.Before(nextTimer)):
		clock.SetIfLater(nextTimer)
		for _, seg := range sender.OnTimerExpiry(clock.Now()) {
			ch.SendAtoB(seg)
		}
		return true
	case hasChannel:
		clock.SetIfLater(nextChannel)
		return true
	default:
		return false
	}
}

// RunScenario repeats sc.Runs independent runs (seeded sc.Seed..sc.Seed+
// runs-1) in parallel and reduces them to a mean-of-runs summary, per
// spec §4.5. Runs execute concurrently via errgroup; each run's own
// internal event loop remains single-threaded, per spec §9's chosen
// concurrency model. collectors is optional (nil is fine, e.g. in
// tests); when supplied, every run's outcome is also fed to it so a CLI
// invocation can expose the same data over /metrics.
func RunScenario(ctx context.Context, sc Scenario, tracer logging.RunTracer, collectors *metrics.Collectors) (AggregateResult, error) {
	sc = populateScenario(sc)
	if err := sc.Validate(); err != nil {
		return AggregateResult{}, err
	}

	results := make([]RunResult, sc.Runs)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < sc.Runs; i++ {
		i := i
		g.Go(func() error {
			seed := sc.Seed + int64(i)
			res, err := RunOnce(ctx, sc, seed, tracer)
			if err != nil {
				if qerr.IsRunTimeout(err) {
					results[i] = res
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AggregateResult{}, err
	}

	agg := metrics.NewAggregator()
	for _, r := range results {
		sample := toSample(r)
		agg.Add(sample)
		if collectors != nil {
			collectors.Observe(sample)
		}
	}
	rows := agg.Rows()
	var row metrics.Row
	if len(rows) > 0 {
		row = rows[0]
	}
	return AggregateResult{Row: row, Runs: results}, nil
}

func toSample(r RunResult) metrics.Sample {
	return metrics.Sample{
		Protocol:        r.Protocol,
		Seconds:         r.ElapsedSim.Seconds(),
		ThroughputBps:   r.ThroughputBps,
		Retransmissions: r.Retransmissions,
		Success:         r.Success,
	}
}
