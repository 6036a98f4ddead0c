package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatorComputesMeansAcrossSuccessfulRuns(t *testing.T) {
	a := NewAggregator()
	a.Add(Sample{Protocol: "gbn", Seconds: 1.0, ThroughputBps: 1000, Retransmissions: 2, Success: true})
	a.Add(Sample{Protocol: "gbn", Seconds: 3.0, ThroughputBps: 3000, Retransmissions: 4, Success: true})

	rows := a.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	require.Equal(t, "gbn", row.Protocol)
	require.Equal(t, 2.0, row.MeanTimeSeconds)
	require.Equal(t, 2000.0, row.MeanThroughputBps)
	require.Equal(t, 3.0, row.MeanRetransmissions)
	require.Equal(t, 2, row.Runs)
	require.Equal(t, 2, row.SuccessfulRuns)
}

func TestAggregatorExcludesFailedRunsFromMeansButCountsThem(t *testing.T) {
	a := NewAggregator()
	a.Add(Sample{Protocol: "sr", Seconds: 2.0, ThroughputBps: 5000, Retransmissions: 1, Success: true})
	a.Add(Sample{Protocol: "sr", Success: false})

	row := a.Rows()[0]
	require.Equal(t, 2, row.Runs)
	require.Equal(t, 1, row.SuccessfulRuns)
	require.Equal(t, 2.0, row.MeanTimeSeconds)
}

func TestAggregatorKeepsProtocolsSeparateInFirstSeenOrder(t *testing.T) {
	a := NewAggregator()
	a.Add(Sample{Protocol: "tcp", Seconds: 1, ThroughputBps: 1, Success: true})
	a.Add(Sample{Protocol: "gbn", Seconds: 1, ThroughputBps: 1, Success: true})
	a.Add(Sample{Protocol: "tcp", Seconds: 1, ThroughputBps: 1, Success: true})

	rows := a.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "tcp", rows[0].Protocol)
	require.Equal(t, "gbn", rows[1].Protocol)
}

func TestAggregatorAllRunsFailedYieldsZeroMeans(t *testing.T) {
	a := NewAggregator()
	a.Add(Sample{Protocol: "sr", Success: false})

	row := a.Rows()[0]
	require.Equal(t, 0, row.SuccessfulRuns)
	require.Equal(t, 0.0, row.MeanTimeSeconds)
}
