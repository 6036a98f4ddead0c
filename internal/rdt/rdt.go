// Package rdt defines the sender/receiver contract shared by the three
// protocol implementations (gbn, sr, tcplike). The driver is written
// once against this interface, per spec §9's design note that sender and
// receiver should be explicit state machines advanced by events (ACK
// received, DATA received, timer fired, new data to send) rather than
// blocking coroutines.
package rdt

import (
	"time"

	"github.com/rdtlab/rdtsim/internal/segment"
)

// Sender is the sending half of a protocol's state machine.
type Sender interface {
	// FillWindow emits any new segments the current window allows,
	// starting/refreshing timers as needed.
	FillWindow(now time.Time) []segment.Segment
	// OnAck processes an ACK segment delivered by the channel and
	// returns any segment(s) that must go out immediately as a result
	// (TCP-like's fast retransmit; GBN and SR never retransmit from
	// OnAck itself and return nil).
	OnAck(ack segment.Segment, now time.Time) []segment.Segment
	// NextTimerDeadline reports the next retransmission timer deadline,
	// if any timer is currently armed.
	NextTimerDeadline() (time.Time, bool)
	// OnTimerExpiry fires whichever timer(s) are due at now and returns
	// the segments that must be retransmitted as a result.
	OnTimerExpiry(now time.Time) []segment.Segment
	// Done reports whether every segment has been acknowledged.
	Done() bool
	// Retransmissions is the running count of retransmitted segments.
	Retransmissions() uint64
}

// RetransmitCauses is implemented by senders that distinguish *why* a
// segment was retransmitted. GBN and SR have exactly one cause each
// (timeout) and don't implement it; TCP-like has two (timeout and fast
// retransmit) and does, per original_source/tcp_like.py's separate
// timeouts/fast_retransmits counters.
type RetransmitCauses interface {
	Timeouts() uint64
	FastRetransmits() uint64
}

// RTTSampleCounter is implemented by senders that take RTT samples.
// Only TCP-like estimates RTT; GBN and SR use fixed timeouts and don't
// implement it.
type RTTSampleCounter interface {
	RTTSampleCount() int
}

// Receiver is the receiving half of a protocol's state machine.
type Receiver interface {
	// OnData processes a DATA segment delivered by the channel and
	// returns the ACK segment to send back, if any.
	OnData(seg segment.Segment, now time.Time) (ack segment.Segment, ok bool)
	// Done reports whether every byte of the transfer has been
	// delivered, in order, to the application.
	Done() bool
	// DeliveredBytes is the number of bytes delivered so far.
	DeliveredBytes() uint64
	// Payload returns the fully reassembled payload. Valid only once
	// Done() is true.
	Payload() []byte
}

// Segmentize splits payload into fixed-size chunks of at most mss bytes,
// per spec §3: "segmentation is fixed-size ... last segment may be
// short." It never returns a chunk for a zero-length payload tail.
func Segmentize(payload []byte, mss int) [][]byte {
	if mss <= 0 {
		panic("rdt: mss must be positive")
	}
	var chunks [][]byte
	for len(payload) > 0 {
		n := mss
		if n > len(payload) {
			n = len(payload)
		}
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}
	return chunks
}
