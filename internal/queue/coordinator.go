// Package queue implements the coordinator that drives a single deployment
// through enqueue, the blocking wait loop, start, and (via a later
// invocation) finish — the FIFO serialization protocol described in
// SPEC_FULL.md §4.6, grounded on the original tool's
// wait_for_blocking_deployments/enqueue_deployment/start_deployment.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/deploy-queue/deployqueue/internal/analytics"
	"github.com/deploy-queue/deployqueue/internal/config"
	"github.com/deploy-queue/deployqueue/internal/deployment"
	"github.com/deploy-queue/deployqueue/internal/ghoutput"
	"github.com/deploy-queue/deployqueue/internal/heartbeat"
	"github.com/deploy-queue/deployqueue/internal/store"
)

// Store is the subset of internal/store's operations the coordinator needs.
type Store interface {
	heartbeat.Store

	Enqueue(ctx context.Context, p store.EnqueueParams) (int64, error)
	Start(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64) error
	CancelByComponentVersion(ctx context.Context, component, version string, note *string) (int64, error)
	CancelByLocation(ctx context.Context, environment, cloudProvider, region string, cellIndex *int32, note *string) (int64, error)
	BlockingDeployments(ctx context.Context, candidateID int64, cell deployment.Cell, concurrencyKey *string) ([]deployment.BlockingDeployment, error)
}

// Coordinator orchestrates the queue protocol for one invocation.
type Coordinator struct {
	store  Store
	logger *slog.Logger
}

// New constructs a Coordinator backed by store, logging through logger.
func New(s Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: s, logger: logger}
}

// StartParams carries the identity fields supplied by the `start` verb.
type StartParams = store.EnqueueParams

// Start enqueues a deployment, waits for every blocking deployment to clear
// (sweeping stale heartbeats each iteration), then marks it as started.
// It blocks for as long as the wait loop runs; callers should pass a ctx
// that is cancelled on external signal, per spec.md §5's "Wait loop: no
// total deadline. Cancellation via external signal is the only bound."
func (c *Coordinator) Start(ctx context.Context, p StartParams) (int64, error) {
	id, err := c.store.Enqueue(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("coordinator: enqueue: %w", err)
	}

	if err := ghoutput.Write("deployment-id", strconv.FormatInt(id, 10)); err != nil {
		c.logger.Warn("failed to write deployment-id output", "deployment_id", id, "error", err)
	}

	writer := heartbeat.NewWriter(c.store, id, c.logger)
	writer.Start()
	defer writer.Stop()

	if err := c.waitForBlockers(ctx, id, p); err != nil {
		return id, fmt.Errorf("coordinator: wait loop: %w", err)
	}

	if err := c.store.Start(ctx, id); err != nil {
		return id, fmt.Errorf("coordinator: start: %w", err)
	}

	return id, nil
}

// waitForBlockers sweeps stale heartbeats and polls the blocking predicate
// until the candidate deployment has no blockers left.
func (c *Coordinator) waitForBlockers(ctx context.Context, id int64, p StartParams) error {
	for {
		if err := heartbeat.Sweep(ctx, c.store, id, c.logger); err != nil {
			return err
		}

		blockers, err := c.store.BlockingDeployments(ctx, id, p.Cell, p.ConcurrencyKey)
		if err != nil {
			return err
		}

		if len(blockers) == 0 {
			c.logger.Info("no conflicting deployments found, starting", "deployment_id", id)

			return nil
		}

		c.logBlockers(id, blockers)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.BusyRetry):
		}
	}
}

func (c *Coordinator) logBlockers(id int64, blockers []deployment.BlockingDeployment) {
	ids := make([]int64, len(blockers))
	for i, b := range blockers {
		ids[i] = b.Deployment.ID
	}

	summary, err := analytics.Summarize(blockers)
	if err != nil {
		c.logger.Warn("failed to summarize blocker ETA", "deployment_id", id, "error", err)
	} else if summary.Total > 0 {
		c.logger.Info("waiting on blocking deployments", "deployment_id", id, "blockers", ids, "eta", summary.Total)

		for _, comp := range summary.ComponentBreakdown() {
			c.logger.Info("  blocker component ETA", "component", comp.Component, "eta", comp.Duration)
		}
	} else if summary.HasUnknownETA {
		c.logger.Info("waiting on blocking deployments, ETA unknown", "deployment_id", id, "blockers", ids)
	}

	for _, b := range blockers {
		c.logger.Info(b.Summary())
	}
}

// Finish marks a running deployment as finished, triggering the store's
// analytics refresh trigger as a side effect.
func (c *Coordinator) Finish(ctx context.Context, id int64) error {
	if err := c.store.Finish(ctx, id); err != nil {
		return fmt.Errorf("coordinator: finish: %w", err)
	}

	return nil
}

// CancelByID cancels a single deployment.
func (c *Coordinator) CancelByID(ctx context.Context, id int64, note *string) (int64, error) {
	n, err := c.store.CancelByID(ctx, id, note)
	if err != nil {
		return 0, fmt.Errorf("coordinator: cancel by id: %w", err)
	}

	return n, nil
}

// CancelByComponentVersion cancels every deployment that is neither finished
// nor cancelled and matches both component and version, across all cells.
func (c *Coordinator) CancelByComponentVersion(ctx context.Context, component, version string, note *string) (int64, error) {
	n, err := c.store.CancelByComponentVersion(ctx, component, version, note)
	if err != nil {
		return 0, fmt.Errorf("coordinator: cancel by component/version: %w", err)
	}

	return n, nil
}

// CancelByLocation cancels every deployment that is neither finished nor
// cancelled and matches the given location, optionally scoped to a single
// cell_index.
func (c *Coordinator) CancelByLocation(ctx context.Context, environment, cloudProvider, region string, cellIndex *int32, note *string) (int64, error) {
	n, err := c.store.CancelByLocation(ctx, environment, cloudProvider, region, cellIndex, note)
	if err != nil {
		return 0, fmt.Errorf("coordinator: cancel by location: %w", err)
	}

	return n, nil
}
