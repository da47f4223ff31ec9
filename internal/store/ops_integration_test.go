//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-queue/deployqueue/internal/deployment"
)

func devCell() deployment.Cell {
	return deployment.Cell{Environment: "dev", CloudProvider: "aws", Region: "us-west-2", CellIndex: 1}
}

func prodCell() deployment.Cell {
	return deployment.Cell{Environment: "prod", CloudProvider: "aws", Region: "us-west-2", CellIndex: 1}
}

func enqueue(t *testing.T, s *Store, cell deployment.Cell, component string, concurrencyKey *string) int64 {
	t.Helper()

	id, err := s.Enqueue(context.Background(), EnqueueParams{
		Cell:           cell,
		Component:      component,
		ConcurrencyKey: concurrencyKey,
	})
	require.NoError(t, err)

	return id
}

// Seed scenario 1: a second deployment to the same cell blocks on a
// still-running earlier one.
func TestIntegration_SimpleBlocking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, devCell(), "api", nil)
	require.NoError(t, s.Start(ctx, first))

	second := enqueue(t, s, devCell(), "web", nil)

	blockers, err := s.BlockingDeployments(ctx, second, devCell(), nil)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, first, blockers[0].Deployment.ID)

	require.NoError(t, s.Finish(ctx, first))

	blockers, err = s.BlockingDeployments(ctx, second, devCell(), nil)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

// Seed scenario 2: a finished deployment still blocks within its
// environment's buffer window, and stops blocking once the buffer elapses.
func TestIntegration_BufferInclusionAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, prodCell(), "api", nil)
	require.NoError(t, s.Start(ctx, first))
	require.NoError(t, s.Finish(ctx, first))

	second := enqueue(t, s, prodCell(), "web", nil)

	blockers, err := s.BlockingDeployments(ctx, second, prodCell(), nil)
	require.NoError(t, err)
	require.Len(t, blockers, 1, "prod's 10m buffer should still be blocking")

	_, err = s.db.ExecContext(ctx,
		`UPDATE deployments SET start_timestamp = now() - INTERVAL '12 minutes', finish_timestamp = now() - INTERVAL '11 minutes' WHERE id = $1`, first)
	require.NoError(t, err)

	blockers, err = s.BlockingDeployments(ctx, second, prodCell(), nil)
	require.NoError(t, err)
	assert.Empty(t, blockers, "buffer should have expired")
}

// Seed scenario 3: a shared, non-null concurrency key bypasses blocking
// between two deployments in the same cell.
func TestIntegration_ConcurrencyKeyBypass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := "shared-rollout"

	first := enqueue(t, s, devCell(), "api", &key)
	require.NoError(t, s.Start(ctx, first))

	second := enqueue(t, s, devCell(), "web", &key)

	blockers, err := s.BlockingDeployments(ctx, second, devCell(), &key)
	require.NoError(t, err)
	assert.Empty(t, blockers, "shared concurrency key should bypass blocking")
}

// Seed scenario 4: a FIFO chain of three deployments in the same cell each
// blocks on the one before it until it finishes.
func TestIntegration_FIFOChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, devCell(), "api", nil)
	require.NoError(t, s.Start(ctx, first))

	second := enqueue(t, s, devCell(), "api", nil)
	third := enqueue(t, s, devCell(), "api", nil)

	blockers, err := s.BlockingDeployments(ctx, third, devCell(), nil)
	require.NoError(t, err)
	assert.Len(t, blockers, 2)

	require.NoError(t, s.Finish(ctx, first))
	require.NoError(t, s.Start(ctx, second))

	blockers, err = s.BlockingDeployments(ctx, third, devCell(), nil)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, second, blockers[0].Deployment.ID)
}

// Seed scenario 5: a running deployment whose heartbeat has gone stale is
// reclaimed by the sweeper (cancelled), unblocking the next candidate.
func TestIntegration_StaleHeartbeatReclamation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stuck := enqueue(t, s, devCell(), "api", nil)
	require.NoError(t, s.Start(ctx, stuck))

	_, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET heartbeat_timestamp = now() - INTERVAL '20 minutes' WHERE id = $1`, stuck)
	require.NoError(t, err)

	staleIDs, err := s.StaleHeartbeatDeployments(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []int64{stuck}, staleIDs)

	note := "stale heartbeat"
	n, err := s.CancelByID(ctx, stuck, &note)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	second := enqueue(t, s, devCell(), "web", nil)

	blockers, err := s.BlockingDeployments(ctx, second, devCell(), nil)
	require.NoError(t, err)
	assert.Empty(t, blockers, "cancelled deployment must not block")
}

// Seed scenario 6/7: a running deployment whose elapsed time exceeds its
// historical avg+2*stddev surfaces as an outlier once analytics exist.
func TestIntegration_OutlierDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := enqueue(t, s, devCell(), "api", nil)
		_, err := s.db.ExecContext(ctx,
			`UPDATE deployments SET start_timestamp = now() - INTERVAL '10 minutes' WHERE id = $1`, id)
		require.NoError(t, err)
		require.NoError(t, s.Finish(ctx, id))
	}

	running := enqueue(t, s, devCell(), "api", nil)
	_, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET start_timestamp = now() - INTERVAL '1 hour' WHERE id = $1`, running)
	require.NoError(t, err)

	outliers, err := s.OutlierDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, outliers, 1)
	assert.Equal(t, running, outliers[0].ID)
}

func TestIntegration_Cells(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueue(t, s, devCell(), "api", nil)
	enqueue(t, s, prodCell(), "api", nil)

	cells, err := s.Cells(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, devCell(), cells[0])
}

// P1/I2: identity fields cannot be mutated after insert, enforced by the
// schema trigger rather than application code.
func TestIntegration_IdentityFieldsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := enqueue(t, s, devCell(), "api", nil)

	_, err := s.db.ExecContext(ctx, `UPDATE deployments SET component = 'web' WHERE id = $1`, id)
	require.Error(t, err)
}

// R2: re-cancelling an already-cancelled deployment is a no-op, not an error.
func TestIntegration_CancelIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := enqueue(t, s, devCell(), "api", nil)

	n, err := s.CancelByID(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.CancelByID(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second cancel affects no rows")
}

// I4: a finished deployment is terminal and cannot be cancelled, through any
// of the three cancellation paths.
func TestIntegration_CancelRejectsFinishedDeployment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	version := "v1.2.3"

	id, err := s.Enqueue(ctx, EnqueueParams{Cell: devCell(), Component: "api", Version: &version})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, id))
	require.NoError(t, s.Finish(ctx, id))

	n, err := s.CancelByID(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "cancel by id must not affect a finished deployment")

	n, err = s.CancelByComponentVersion(ctx, "api", version, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "cancel by component/version must not affect a finished deployment")

	n, err = s.CancelByLocation(ctx, devCell().Environment, devCell().CloudProvider, devCell().Region, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "cancel by location must not affect a finished deployment")
}
