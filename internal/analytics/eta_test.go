package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-queue/deployqueue/internal/deployment"
)

func interval(t *testing.T, d time.Duration) deployment.Interval {
	t.Helper()

	iv, err := deployment.NewInterval(d)
	require.NoError(t, err)

	return iv
}

func TestSummarizeQueuedAndFinishedBlockers(t *testing.T) {
	avgAPI := interval(t, 2*time.Minute)
	zeroBuffer := interval(t, 0)
	finishedBuffer := interval(t, 3*time.Minute)
	finish := time.Now()

	blockers := []deployment.BlockingDeployment{
		{
			Deployment:  deployment.Deployment{Component: "api", BufferTime: zeroBuffer},
			AvgDuration: &avgAPI,
		},
		{
			Deployment: deployment.Deployment{
				Component:       "worker",
				FinishTimestamp: &finish,
				BufferTime:      finishedBuffer,
			},
		},
	}

	summary, err := Summarize(blockers)
	require.NoError(t, err)

	assert.InDelta(t, (2*time.Minute + 3*time.Minute).Seconds(), summary.Total.Seconds(), 2)
	assert.Contains(t, summary.PerComponent, "api")
	assert.Contains(t, summary.PerComponent, "worker")
}

func TestSummarizeUnknownETA(t *testing.T) {
	start := time.Now()

	blockers := []deployment.BlockingDeployment{
		{Deployment: deployment.Deployment{Component: "api", StartTimestamp: &start}},
	}

	summary, err := Summarize(blockers)
	require.NoError(t, err)
	assert.True(t, summary.HasUnknownETA)
	assert.Equal(t, time.Duration(0), summary.Total)
}

func TestSummarizePropagatesCancelledError(t *testing.T) {
	cancel := time.Now()

	blockers := []deployment.BlockingDeployment{
		{Deployment: deployment.Deployment{CancellationTimestamp: &cancel}},
	}

	_, err := Summarize(blockers)
	require.ErrorIs(t, err, deployment.ErrCancelledBlocking)
}

func TestComponentBreakdownSortedAndFiltersZero(t *testing.T) {
	summary := ETASummary{PerComponent: map[string]time.Duration{
		"zeta": time.Minute,
		"alfa": 2 * time.Minute,
		"nil":  0,
	}}

	breakdown := summary.ComponentBreakdown()
	require.Len(t, breakdown, 2)
	assert.Equal(t, "alfa", breakdown[0].Component)
	assert.Equal(t, "zeta", breakdown[1].Component)
}

// TestIsOutlier covers scenario 7 from spec.md §8: avg=120s stddev~15.8s,
// running 200s is an outlier, running 140s is not.
func TestIsOutlier(t *testing.T) {
	avg := 120 * time.Second
	stddev := time.Duration(15.8 * float64(time.Second))

	assert.True(t, IsOutlier(200*time.Second, avg, stddev))
	assert.False(t, IsOutlier(140*time.Second, avg, stddev))
}

func TestIsOutlierBoundary(t *testing.T) {
	avg := 100 * time.Second
	stddev := 10 * time.Second

	assert.False(t, IsOutlier(120*time.Second, avg, stddev)) // exactly avg+2*stddev, not greater
	assert.True(t, IsOutlier(121*time.Second, avg, stddev))
}
