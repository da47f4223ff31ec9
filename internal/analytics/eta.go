// Package analytics implements the pure ETA-aggregation and outlier-detection
// math layered on top of the rolling per-(component, cell) duration
// statistics (spec.md §4.4). It never talks to the store directly — it
// operates on rows already fetched by internal/store.
package analytics

import (
	"sort"
	"time"

	"github.com/deploy-queue/deployqueue/internal/deployment"
)

// outlierStddevMultiplier is the "k" in "avg + k*stddev" (spec.md §4.4).
const outlierStddevMultiplier = 2

// ETASummary is the aggregate ETA across a set of blockers: the total
// remaining wait, broken down per component, plus whether any blocker's
// contribution could not be computed (missing analytics data).
type ETASummary struct {
	Total         time.Duration
	PerComponent  map[string]time.Duration
	HasUnknownETA bool
}

// Summarize computes the total and per-component ETA across the given
// blockers, grounded on the aggregation loop in the original tool's
// `wait_for_blocking_deployments`. A blocker whose deployment-duration part
// is unknown and whose buffer contribution is zero counts toward
// HasUnknownETA rather than the total.
func Summarize(blockers []deployment.BlockingDeployment) (ETASummary, error) {
	summary := ETASummary{PerComponent: make(map[string]time.Duration)}

	for _, b := range blockers {
		deploymentTime, bufferTime, err := b.RemainingTime()
		if err != nil {
			return ETASummary{}, err
		}

		switch {
		case deploymentTime != nil:
			total := deploymentTime.ToDuration() + bufferTime.ToDuration()
			summary.Total += total
			summary.PerComponent[b.Deployment.Component] += total
		case bufferTime.ToDuration() > 0:
			summary.Total += bufferTime.ToDuration()
			summary.PerComponent[b.Deployment.Component] += bufferTime.ToDuration()
		default:
			summary.HasUnknownETA = true
		}
	}

	return summary, nil
}

// ComponentBreakdown returns the per-component ETA contributions sorted by
// component name, for stable log/report output.
func (s ETASummary) ComponentBreakdown() []ComponentETA {
	names := make([]string, 0, len(s.PerComponent))
	for name := range s.PerComponent {
		names = append(names, name)
	}

	sort.Strings(names)

	out := make([]ComponentETA, 0, len(names))

	for _, name := range names {
		d := s.PerComponent[name]
		if d > 0 {
			out = append(out, ComponentETA{Component: name, Duration: d})
		}
	}

	return out
}

// ComponentETA is one row of a per-component ETA breakdown.
type ComponentETA struct {
	Component string
	Duration  time.Duration
}

// IsOutlier reports whether a running deployment whose current elapsed
// duration is `current` is an outlier relative to historical `avg` and
// `stddev`, per spec.md §4.4: current > avg + 2*stddev.
func IsOutlier(current, avg, stddev time.Duration) bool {
	return current > avg+outlierStddevMultiplier*stddev
}
