package logging

import "time"

// NullTracer is a RunTracer that does nothing. It is the driver's default
// so tracing is opt-in and free when unused. Don't modify this variable.
var NullTracer RunTracer = &nullTracer{}

type nullTracer struct{}

var _ RunTracer = &nullTracer{}

func (nullTracer) SegmentSent(seq uint32, isAck bool, isRetransmit bool) {}
func (nullTracer) SegmentDelivered(seq uint32, isAck bool)               {}
func (nullTracer) SegmentDropped(seq uint32, reason DropReason)          {}
func (nullTracer) Retransmit(seq uint32, reason RetransmitReason)        {}
func (nullTracer) RTTSampled(sample, srtt, rttvar, rto time.Duration)    {}
func (nullTracer) TransferComplete(elapsed time.Duration, retransmissions uint64) {
}
func (nullTracer) Close() {}
