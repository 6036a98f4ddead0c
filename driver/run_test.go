package driver

import (
	"context"
	"testing"
	"time"

	"github.com/rdtlab/rdtsim/internal/qerr"
	"github.com/stretchr/testify/require"
)

func TestRunOnceNoLossCompletesWithZeroRetransmissions(t *testing.T) {
	for _, proto := range []string{"gbn", "sr", "tcp"} {
		t.Run(proto, func(t *testing.T) {
			sc := Scenario{
				Protocol:     proto,
				PayloadBytes: 100,
				MSS:          10,
				Window:       4,
				RTT:          20 * time.Millisecond,
				Runs:         1,
				Seed:         1,
			}
			res, err := RunOnce(context.Background(), sc, 1, nil)
			require.NoError(t, err)
			require.True(t, res.Success)
			require.Zero(t, res.Retransmissions)
			require.Greater(t, res.ThroughputBps, 0.0)
		})
	}
}

func TestRunOnceWithLossStillCompletesAndRetransmits(t *testing.T) {
	sc := Scenario{
		Protocol:     "sr",
		PayloadBytes: 200,
		MSS:          10,
		Window:       6,
		RTT:          20 * time.Millisecond,
		LossProb:     0.2,
		Runs:         1,
		Seed:         7,
	}
	res, err := RunOnce(context.Background(), sc, 7, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Greater(t, res.Retransmissions, uint64(0))
}

func TestRunOnceTotalLossHitsSafetyTimeout(t *testing.T) {
	sc := Scenario{
		Protocol:     "gbn",
		PayloadBytes: 50,
		MSS:          10,
		Window:       4,
		RTT:          time.Millisecond,
		LossProb:     1.0,
		Runs:         1,
		Seed:         1,
		Timeout:      50 * time.Millisecond,
	}
	res, err := RunOnce(context.Background(), sc, 1, nil)
	require.Error(t, err)
	require.True(t, qerr.IsRunTimeout(err))
	require.False(t, res.Success)
}

func TestRunOnceIsReproducibleWithSameSeed(t *testing.T) {
	sc := Scenario{
		Protocol:     "tcp",
		PayloadBytes: 300,
		MSS:          20,
		Window:       4,
		RTT:          15 * time.Millisecond,
		LossProb:     0.1,
		CorruptProb:  0.05,
		ReorderProb:  0.05,
		Runs:         1,
	}
	a, err := RunOnce(context.Background(), sc, 42, nil)
	require.NoError(t, err)
	b, err := RunOnce(context.Background(), sc, 42, nil)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRunScenarioAggregatesAcrossRuns(t *testing.T) {
	sc := Scenario{
		Protocol:     "gbn",
		PayloadBytes: 100,
		MSS:          10,
		Window:       4,
		RTT:          10 * time.Millisecond,
		Runs:         5,
		Seed:         1,
	}
	agg, err := RunScenario(context.Background(), sc, nil, nil)
	require.NoError(t, err)
	require.Len(t, agg.Runs, 5)
	require.Equal(t, 5, agg.Row.Runs)
	require.Equal(t, 5, agg.Row.SuccessfulRuns)
	require.Greater(t, agg.Row.MeanThroughputBps, 0.0)
}

func TestRunScenarioCountsButExcludesTimedOutRunsFromMeans(t *testing.T) {
	sc := Scenario{
		Protocol:     "sr",
		PayloadBytes: 50,
		MSS:          10,
		Window:       4,
		RTT:          time.Millisecond,
		LossProb:     1.0,
		Runs:         2,
		Seed:         1,
		Timeout:      20 * time.Millisecond,
	}
	agg, err := RunScenario(context.Background(), sc, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, agg.Row.Runs)
	require.Equal(t, 0, agg.Row.SuccessfulRuns)
	require.Zero(t, agg.Row.MeanTimeSeconds)
}

func TestRunScenarioRejectsInvalidScenario(t *testing.T) {
	sc := Scenario{Protocol: "nope"}
	_, err := RunScenario(context.Background(), sc, nil, nil)
	require.True(t, qerr.IsConfigInvalid(err))
}
