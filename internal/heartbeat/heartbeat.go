// Package heartbeat implements the liveness protocol described in
// SPEC_FULL.md §4.5: a writer goroutine that periodically refreshes a
// running deployment's heartbeat_timestamp, and a sweeper that reclaims
// slots held by deployments whose heartbeat has gone stale.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deploy-queue/deployqueue/internal/config"
)

// Store is the subset of internal/store's operations the heartbeat engine
// needs, kept narrow so this package can be tested against a fake.
type Store interface {
	Heartbeat(ctx context.Context, id int64) error
	StaleHeartbeatDeployments(ctx context.Context, timeout time.Duration) ([]int64, error)
	CancelByID(ctx context.Context, id int64, note *string) (int64, error)
}

// ErrConsecutiveFailures is logged by the writer goroutine when it has
// failed HeartbeatMaxConsecutiveFailures times in a row and terminated
// itself. It is not reported to the coordinator, which continues: the
// deployment may still succeed, but it becomes vulnerable to the sweeper.
var ErrConsecutiveFailures = errors.New("heartbeat: too many consecutive failures")

// Writer periodically refreshes heartbeat_timestamp for one deployment
// until Stop is called or the writer gives up after too many failures.
// Grounded on internal/storage/lineage_store.go's cleanup-goroutine
// lifecycle: a cancellable context the owner tears down, a done channel the
// goroutine closes on exit, and sync.Once so Stop is safe to call more than
// once. The tick cadence itself comes from x/time/rate rather than a bare
// time.Ticker, since a rate.Limiter with burst 1 gives the same "one tick
// per interval, no catch-up" behavior while composing with ctx cancellation.
type Writer struct {
	store        Store
	deploymentID int64
	logger       *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWriter constructs a Writer for deploymentID. Call Start to launch the
// background goroutine.
func NewWriter(store Store, deploymentID int64, logger *slog.Logger) *Writer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		store:        store,
		deploymentID: deploymentID,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		doneCh:       make(chan struct{}),
	}
}

// Start launches the writer goroutine. It returns immediately; the
// coordinator is expected to call Stop after the deployment starts.
func (w *Writer) Start() {
	go w.run()
}

// Stop signals the writer to exit and blocks until it has, or until
// shutdownTimeout elapses. Safe to call more than once.
func (w *Writer) Stop() {
	w.closeOnce.Do(func() {
		w.cancel()

		select {
		case <-w.doneCh:
		case <-time.After(shutdownTimeout):
			w.logger.Warn("heartbeat writer did not stop within timeout",
				"deployment_id", w.deploymentID)
		}
	})
}

const shutdownTimeout = 5 * time.Second

// run is the goroutine body. A tick delayed by a slow update is never made
// up for — the limiter's burst of 1 means at most one heartbeat fires per
// HeartbeatInterval regardless of how long the previous one took — matching
// spec.md's "missed ticks do not pile up".
func (w *Writer) run() {
	defer close(w.doneCh)

	limiter := rate.NewLimiter(rate.Every(config.HeartbeatInterval), 1)

	var consecutiveFailures int

	for {
		if err := limiter.Wait(w.ctx); err != nil {
			return
		}

		if err := w.tick(); err != nil {
			consecutiveFailures++
			w.logger.Warn("heartbeat update failed",
				"deployment_id", w.deploymentID,
				"attempt", consecutiveFailures,
				"max_attempts", config.HeartbeatMaxConsecutiveFailures,
				"error", err)

			if consecutiveFailures >= config.HeartbeatMaxConsecutiveFailures {
				w.logger.Warn("heartbeat writer terminating after consecutive failures",
					"deployment_id", w.deploymentID, "failures", consecutiveFailures,
					"error", ErrConsecutiveFailures)

				return
			}

			continue
		}

		consecutiveFailures = 0
	}
}

func (w *Writer) tick() error {
	ctx, cancel := context.WithTimeout(w.ctx, config.HeartbeatUpdateTimeout)
	defer cancel()

	return w.store.Heartbeat(ctx, w.deploymentID)
}

// Sweep cancels every running deployment whose heartbeat has gone stale
// (now - heartbeat_timestamp > HeartbeatTimeout), attributing the
// cancellation to callerDeploymentID. It is safe to call repeatedly — a
// deployment cancelled by one sweep will not be returned by the next,
// because StaleHeartbeatDeployments only selects deployments still in the
// Running state.
func Sweep(ctx context.Context, store Store, callerDeploymentID int64, logger *slog.Logger) error {
	staleIDs, err := store.StaleHeartbeatDeployments(ctx, config.HeartbeatTimeout)
	if err != nil {
		return fmt.Errorf("heartbeat sweep: %w", err)
	}

	note := fmt.Sprintf("Cancelled by deployment %d due to stale heartbeat", callerDeploymentID)

	for _, id := range staleIDs {
		if _, err := store.CancelByID(ctx, id, &note); err != nil {
			return fmt.Errorf("heartbeat sweep: cancelling deployment %d: %w", id, err)
		}

		logger.Warn("cancelled deployment with stale heartbeat",
			"deployment_id", id, "cancelled_by", callerDeploymentID)
	}

	return nil
}
