// Package deployment holds the core data model for the deployment
// serialization queue: cells, deployments, derived state, and the
// duration/interval conversion layer shared by the store and analytics
// packages.
package deployment

import (
	"fmt"
	"time"
)

// Cell identifies a deployment target: an environment × cloud-provider ×
// region × cell-index tuple. Cells are never created explicitly; they are
// derived from distinct tuples observed in deployment history.
type Cell struct {
	Environment   string
	CloudProvider string
	Region        string
	CellIndex     int32
}

// String renders the cell as a compact human-readable label.
func (c Cell) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", c.Environment, c.CloudProvider, c.Region, c.CellIndex)
}

// Deployment is the central entity: an identity (immutable after insert,
// enforced by a store-side trigger) plus mutable lifecycle timestamps.
type Deployment struct {
	ID                     int64
	Cell                   Cell
	Component              string
	Version                *string
	URL                    *string
	Note                   *string
	ConcurrencyKey         *string
	CreatedAt              time.Time
	StartTimestamp         *time.Time
	FinishTimestamp        *time.Time
	CancellationTimestamp  *time.Time
	CancellationNote       *string
	HeartbeatTimestamp     *time.Time
	BufferTime             Interval
}

// State computes the deployment's derived lifecycle state from its
// timestamps, in the priority order mandated by spec.md §3:
// cancellation beats finish beats start beats queued.
func (d Deployment) State() State {
	return stateFromTimestamps(d.StartTimestamp, d.FinishTimestamp, d.CancellationTimestamp)
}

// Summary renders a compact one-line description of the deployment,
// mirroring the original tool's `Deployment::summary`.
func (d Deployment) Summary() string {
	version := "unknown"
	if d.Version != nil {
		version = *d.Version
	}

	summary := fmt.Sprintf("%d %s %s(@%s)", d.ID, d.State().Verb(), d.Component, version)

	if d.Note != nil {
		summary += fmt.Sprintf(": (%s)", *d.Note)
	}

	if d.URL != nil {
		summary += fmt.Sprintf(" (%s)", *d.URL)
	}

	return summary
}

// State is the derived, non-persisted lifecycle state of a Deployment.
type State int

const (
	// Queued means no start, finish, or cancellation timestamp is set.
	Queued State = iota
	// Running means start_timestamp is set but finish/cancellation are not.
	Running
	// Finished means finish_timestamp is set and cancellation_timestamp is not.
	Finished
	// Cancelled means cancellation_timestamp is set, regardless of the rest.
	Cancelled
)

// String implements fmt.Stringer with the lower-case noun form.
func (s State) String() string {
	switch s {
	case Cancelled:
		return "cancelled"
	case Finished:
		return "finished"
	case Running:
		return "running"
	default:
		return "queued"
	}
}

// Verb returns the state's verb form, used in human-readable summaries
// ("deploying" instead of "running", etc.), mirroring the original tool's
// `DeploymentState::state_verb`.
func (s State) Verb() string {
	switch s {
	case Cancelled:
		return "cancelled"
	case Finished:
		return "deployed"
	case Running:
		return "deploying"
	default:
		return "queued"
	}
}

// stateFromTimestamps is the total function from the three mutable
// lifecycle timestamps to a State, per spec.md §3's priority order.
func stateFromTimestamps(start, finish, cancel *time.Time) State {
	switch {
	case cancel != nil:
		return Cancelled
	case finish != nil:
		return Finished
	case start != nil:
		return Running
	default:
		return Queued
	}
}

// BlockingDeployment pairs a blocker's Deployment with the historical
// analytics (if any) for its (component, cell), used for ETA rendering by
// the queue coordinator.
type BlockingDeployment struct {
	Deployment     Deployment
	AvgDuration    *Interval
	StddevDuration *Interval
}

// Summary renders a compact one-line description including ETA,
// mirroring `BlockingDeployment::summary` in the original tool.
func (b BlockingDeployment) Summary() string {
	version := "unknown"
	if b.Deployment.Version != nil {
		version = *b.Deployment.Version
	}

	state := b.Deployment.State()
	summary := fmt.Sprintf("%d %s %s(@%s)", b.Deployment.ID, state.Verb(), b.Deployment.Component, version)

	deploymentTime, bufferTime, err := b.RemainingTime()
	if err == nil {
		switch {
		case deploymentTime != nil:
			total := deploymentTime.ToDuration() + bufferTime.ToDuration()
			if total > 0 {
				summary += fmt.Sprintf(": ~%s remaining", formatHuman(total))
				if bufferTime.ToDuration() > 0 {
					summary += fmt.Sprintf(" (includes ~%s buffer)", formatHuman(bufferTime.ToDuration()))
				}
			} else if state == Running {
				summary += ": overdue"
				if bufferTime.ToDuration() > 0 {
					summary += fmt.Sprintf(", ~%s buffer remaining", formatHuman(bufferTime.ToDuration()))
				}
			}
		case state == Finished:
			if bufferTime.ToDuration() > 0 {
				summary += fmt.Sprintf(": ~%s buffer remaining", formatHuman(bufferTime.ToDuration()))
			}
		case state == Queued || state == Running:
			summary += ": unknown deployment time"
			if bufferTime.ToDuration() > 0 {
				summary += fmt.Sprintf(", ~%s buffer", formatHuman(bufferTime.ToDuration()))
			}
		}
	}

	if b.Deployment.Note != nil {
		summary += fmt.Sprintf(" (%s)", *b.Deployment.Note)
	}

	if b.Deployment.URL != nil {
		summary += fmt.Sprintf(" (%s)", *b.Deployment.URL)
	}

	return summary
}

// OutlierDeployment is a currently-running deployment whose elapsed time
// exceeds its historical average by more than two standard deviations.
type OutlierDeployment struct {
	ID              int64
	Cell            Cell
	Component       string
	Version         *string
	URL             *string
	Note            *string
	CurrentDuration Interval
	AvgDuration     Interval
	StddevDuration  Interval
}
