// Package simchannel implements the UnreliableChannel abstraction from
// spec §4.1: an in-process, bidirectional datagram pipe with independent
// loss, delay/jitter, corruption, and reordering, driven by a seeded
// PRNG so a scenario+seed is fully reproducible.
//
// The event queue is a time-ordered min-heap exactly like the teacher's
// testutils/simnet/queue.go, adapted from a real-timer-driven background
// dispatcher to a manually-advanced simclock.Virtual: because the
// simulator drives exactly one goroutine per run (see driver.RunOnce), the
// channel does not need its own goroutine or condition variable — Recv*
// advances the shared clock itself, which is equivalent to blocking
// without introducing concurrency.
package simchannel

import (
	"container/heap"
	"math/rand"
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/segment"
	"github.com/rdtlab/rdtsim/internal/simclock"
)

// Config holds the parameters enumerated in spec §4.1.
type Config struct {
	LossProb    float64
	RTT         time.Duration // base one-way delay = RTT/2
	JitterMax   time.Duration // uniform additive noise on each delivery, in [0, JitterMax]
	CorruptProb float64
	ReorderProb float64
	Seed        int64
}

// Stats accumulates the channel's internal loss/corruption/reorder
// counters (spec §4.1: "counted in internal loss counter").
type Stats struct {
	Sent      uint64
	Lost      uint64
	Corrupted uint64
	Reordered uint64
	Delivered uint64
}

// event is one scheduled delivery, ordered by deliverAt with insertion
// order breaking ties, per spec §3's ChannelEvent.
type event struct {
	deliverAt time.Time
	order     uint64
	dir       protocol.Direction
	wire      []byte
	index     int
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].deliverAt.Equal(h[j].deliverAt) {
		return h[i].order < h[j].order
	}
	return h[i].deliverAt.Before(h[j].deliverAt)
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *eventHeap) Push(x any) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Channel is the UnreliableChannel. One Channel serves exactly one run;
// it is not safe to share across runs.
type Channel struct {
	cfg   Config
	clock *simclock.Virtual
	h     eventHeap
	order uint64

	// Split PRNG streams per spec §9's design note, so tweaking one
	// dimension of a scenario (e.g. jitter) doesn't perturb the loss
	// decisions of an otherwise-identical seeded run.
	rngLoss    *rand.Rand
	rngDelay   *rand.Rand
	rngCorrupt *rand.Rand
	rngReorder *rand.Rand

	Stats Stats
}

// New constructs a Channel bound to clock, ready to carry traffic between
// two endpoints A and B.
func New(clock *simclock.Virtual, cfg Config) *Channel {
	seed := cfg.Seed
	return &Channel{
		cfg:        cfg,
		clock:      clock,
		rngLoss:    rand.New(rand.NewSource(seed + 1)),
		rngDelay:   rand.New(rand.NewSource(seed + 2)),
		rngCorrupt: rand.New(rand.NewSource(seed + 3)),
		rngReorder: rand.New(rand.NewSource(seed + 4)),
	}
}

// SendAtoB enqueues seg for delivery to endpoint B, or drops/corrupts it
// per the configured probabilities.
func (c *Channel) SendAtoB(seg segment.Segment) { c.send(protocol.AtoB, seg) }

// SendBtoA enqueues seg for delivery to endpoint A, or drops/corrupts it
// per the configured probabilities.
func (c *Channel) SendBtoA(seg segment.Segment) { c.send(protocol.BtoA, seg) }

func (c *Channel) send(dir protocol.Direction, seg segment.Segment) {
	c.Stats.Sent++
	if c.cfg.LossProb > 0 && c.rngLoss.Float64() < c.cfg.LossProb {
		c.Stats.Lost++
		return
	}

	wire := segment.Encode(seg)
	if c.cfg.CorruptProb > 0 && c.rngCorrupt.Float64() < c.cfg.CorruptProb {
		segment.FlipBit(wire, c.rngCorrupt.Intn(64))
		c.Stats.Corrupted++
	}

	delay := c.cfg.RTT / 2
	if c.cfg.JitterMax > 0 {
		delay += time.Duration(c.rngDelay.Int63n(int64(c.cfg.JitterMax) + 1))
	}
	deliverAt := c.clock.Now().Add(delay)

	c.order++
	ev := &event{deliverAt: deliverAt, order: c.order, dir: dir, wire: wire}
	heap.Push(&c.h, ev)

	if c.cfg.ReorderProb > 0 && len(c.h) > 1 && c.rngReorder.Float64() < c.cfg.ReorderProb {
		c.swapWithRandomPeer(ev)
	}
}

// swapWithRandomPeer exchanges ev's delivery time with another queued,
// same-direction event, per spec §4.1: "swap delivery time with a random
// already-queued event in the same direction." Reordering is applied
// after the new event is queued so it can trade places with anything
// already waiting, including events queued long before it.
func (c *Channel) swapWithRandomPeer(ev *event) {
	var candidates []*event
	for _, other := range c.h {
		if other != ev && other.dir == ev.dir {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return
	}
	peer := candidates[c.rngReorder.Intn(len(candidates))]
	ev.deliverAt, peer.deliverAt = peer.deliverAt, ev.deliverAt
	heap.Fix(&c.h, ev.index)
	heap.Fix(&c.h, peer.index)
	c.Stats.Reordered++
}

// NextDeadline reports the delivery time of the earliest queued event,
// across both directions.
func (c *Channel) NextDeadline() (time.Time, bool) {
	if len(c.h) == 0 {
		return time.Time{}, false
	}
	return c.h[0].deliverAt, true
}

// RecvA blocks (by advancing the shared virtual clock) until a segment
// destined for A is ready, or timeout elapses, per spec §4.1. It returns
// ok=false on timeout — the sentinel spec.md calls for — with no error,
// since a channel timeout is a routine, expected outcome, not a fault.
func (c *Channel) RecvA(timeout time.Duration) (seg segment.Segment, ok bool) {
	return c.recv(protocol.BtoA, timeout)
}

// RecvB is RecvA's mirror for endpoint B.
func (c *Channel) RecvB(timeout time.Duration) (seg segment.Segment, ok bool) {
	return c.recv(protocol.AtoB, timeout)
}

func (c *Channel) recv(dir protocol.Direction, timeout time.Duration) (segment.Segment, bool) {
	deadline := c.clock.Now().Add(timeout)
	for {
		if seg, ok := c.popReady(dir); ok {
			return seg, true
		}
		next, has := c.nextForDir(dir)
		if !has || next.After(deadline) {
			c.clock.SetIfLater(deadline)
			return segment.Segment{}, false
		}
		c.clock.SetIfLater(next)
	}
}

// popReady pops and decodes the earliest event for dir if it is due at
// or before the clock's current time. The heap is ordered across both
// directions, so the earliest event for dir is not necessarily at the
// heap's root; this scans for it and removes it with heap.Remove. A
// corrupted segment decodes to an error, which the caller must treat as
// a loss (spec §4.1); this method silently drops it and keeps looking,
// matching "the receiver must detect and treat corrupted segments
// exactly as losses."
func (c *Channel) popReady(dir protocol.Direction) (segment.Segment, bool) {
	now := c.clock.Now()
	for {
		idx := -1
		var earliest time.Time
		for i, ev := range c.h {
			if ev.dir != dir || ev.deliverAt.After(now) {
				continue
			}
			if idx == -1 || ev.deliverAt.Before(earliest) {
				idx, earliest = i, ev.deliverAt
			}
		}
		if idx == -1 {
			return segment.Segment{}, false
		}
		ev := heap.Remove(&c.h, idx).(*event)
		seg, err := segment.Decode(ev.wire)
		if err != nil {
			c.Stats.Lost++
			continue
		}
		c.Stats.Delivered++
		return seg, true
	}
}

func (c *Channel) nextForDir(dir protocol.Direction) (time.Time, bool) {
	best := time.Time{}
	found := false
	for _, ev := range c.h {
		if ev.dir != dir {
			continue
		}
		if !found || ev.deliverAt.Before(best) {
			best = ev.deliverAt
			found = true
		}
	}
	return best, found
}

// Pending reports the total number of in-flight events across both
// directions, for tests asserting the channel drains cleanly.
func (c *Channel) Pending() int { return len(c.h) }
