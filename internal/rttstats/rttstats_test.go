package rttstats

import (
	"testing"
	"time"

	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestFirstSampleInitializesSRTTAndRTTVAR(t *testing.T) {
	var e Estimator
	e.UpdateRTT(300 * time.Millisecond)
	require.Equal(t, 300*time.Millisecond, e.LatestRTT())
	require.Equal(t, 300*time.Millisecond, e.SmoothedRTT())
	require.Equal(t, 150*time.Millisecond, e.MeanDeviation())
	require.Equal(t, 900*time.Millisecond, e.RTO())
}

func TestSubsequentSampleAppliesJacobsonFormula(t *testing.T) {
	var e Estimator
	e.UpdateRTT(300 * time.Millisecond)
	e.UpdateRTT(350 * time.Millisecond)

	require.Equal(t, 350*time.Millisecond, e.LatestRTT())
	require.Equal(t, 306250*time.Microsecond, e.SmoothedRTT())
	require.Equal(t, 125*time.Millisecond, e.MeanDeviation())
	require.Equal(t, 806250*time.Microsecond, e.RTO())
}

func TestRTOBeforeFirstSampleIsInit(t *testing.T) {
	var e Estimator
	require.False(t, e.HasSample())
	require.Equal(t, protocol.RTOInit, e.RTO())
}

func TestRTOClampedToMin(t *testing.T) {
	var e Estimator
	e.UpdateRTT(time.Microsecond)
	require.Equal(t, protocol.RTOMin, e.RTO())
}

func TestRTOClampedToMax(t *testing.T) {
	var e Estimator
	e.UpdateRTT(30 * time.Second)
	e.UpdateRTT(90 * time.Second)
	require.LessOrEqual(t, e.RTO(), protocol.RTOMax)
}

func TestTimeoutDoublesRTOUntilNextSample(t *testing.T) {
	var e Estimator
	e.UpdateRTT(300 * time.Millisecond)
	base := e.RTO()

	e.OnTimeout()
	require.Equal(t, 2*base, e.RTO())

	e.OnTimeout()
	require.Equal(t, 4*base, e.RTO())

	// A fresh (non-retransmitted) sample clears the backoff shift; the
	// RTO drops back to something derived purely from SRTT/RTTVAR again,
	// well below the backed-off value.
	e.UpdateRTT(300 * time.Millisecond)
	require.Less(t, e.RTO(), 2*base)
}

func TestNonPositiveSampleIgnored(t *testing.T) {
	var e Estimator
	e.UpdateRTT(10 * time.Millisecond)
	e.UpdateRTT(0)
	e.UpdateRTT(-time.Millisecond)
	require.Equal(t, 10*time.Millisecond, e.LatestRTT())
}

func TestSampleCountOnlyCountsAcceptedSamples(t *testing.T) {
	var e Estimator
	require.Equal(t, 0, e.SampleCount())

	e.UpdateRTT(10 * time.Millisecond)
	e.UpdateRTT(0) // ignored: non-positive
	e.UpdateRTT(20 * time.Millisecond)

	require.Equal(t, 2, e.SampleCount())
}
