package deployment

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelledBlocking is returned by RemainingTime when called on a
// BlockingDeployment whose underlying deployment is Cancelled — the
// blocking predicate (§4.3) must never surface a cancelled deployment as a
// blocker (I5), so reaching this case means the predicate itself is broken.
var ErrCancelledBlocking = errors.New("deployment: cancelled deployment is blocking")

// RemainingTime implements the ETA derivation of spec.md §4.4 for a single
// blocker: the deployment-duration part (nil if unknown or not applicable)
// and the buffer part, both as of now. Grounded on the original tool's
// `BlockingDeployment::remaining_time`.
func (b BlockingDeployment) RemainingTime() (*Interval, Interval, error) {
	switch b.Deployment.State() {
	case Queued:
		// Hasn't started yet: the full historical average is still ahead,
		// plus the buffer that will follow it.
		return b.AvgDuration, b.Deployment.BufferTime, nil

	case Running:
		if b.Deployment.StartTimestamp == nil || b.AvgDuration == nil {
			return nil, b.Deployment.BufferTime, nil
		}

		elapsed := time.Since(*b.Deployment.StartTimestamp)
		remaining := clampNonNegative(b.AvgDuration.ToDuration() - elapsed)
		out, _ := NewInterval(remaining)

		return &out, b.Deployment.BufferTime, nil

	case Finished:
		if b.Deployment.FinishTimestamp == nil {
			return nil, Interval{}, fmt.Errorf("deployment: finish timestamp required for finished deployment %d", b.Deployment.ID)
		}

		sinceFinish := time.Since(*b.Deployment.FinishTimestamp)
		remaining := clampNonNegative(b.Deployment.BufferTime.ToDuration() - sinceFinish)
		out, _ := NewInterval(remaining)

		return nil, out, nil

	default: // Cancelled
		return nil, Interval{}, fmt.Errorf("%w: deployment %d", ErrCancelledBlocking, b.Deployment.ID)
	}
}
