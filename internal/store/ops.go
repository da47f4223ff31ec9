package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/deploy-queue/deployqueue/internal/deployment"
)

var (
	blockingDeploymentsQuery = mustQuery("blocking_deployments.sql")
	activeOutliersQuery      = mustQuery("active_outliers.sql")
)

// EnqueueParams carries the identity fields supplied by the `start` verb.
type EnqueueParams struct {
	Cell           deployment.Cell
	Component      string
	Version        *string
	URL            *string
	Note           *string
	ConcurrencyKey *string
}

// Enqueue inserts a new deployment row and returns its assigned id.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (int64, error) {
	start := time.Now()

	const q = `
		INSERT INTO deployments (environment, cloud_provider, region, cell_index, component, version, url, note, concurrency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64

	err := s.db.QueryRowContext(ctx, q,
		p.Cell.Environment, p.Cell.CloudProvider, p.Cell.Region, p.Cell.CellIndex,
		p.Component, p.Version, p.URL, p.Note, p.ConcurrencyKey,
	).Scan(&id)

	s.logSlowQuery("Enqueue", start, "component", p.Component)

	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: unknown environment %q", ErrInvalidTransition, p.Cell.Environment)
		}

		return 0, fmt.Errorf("%w: enqueue: %w", ErrTransient, err)
	}

	return id, nil
}

// GetDeployment fetches a single deployment by id, including its
// environment's buffer_time.
func (s *Store) GetDeployment(ctx context.Context, id int64) (deployment.Deployment, error) {
	start := time.Now()

	const q = `
		SELECT d.id, d.environment, d.cloud_provider, d.region, d.cell_index, d.component,
		       d.version, d.url, d.note, d.concurrency_key, d.created_at,
		       d.start_timestamp, d.finish_timestamp, d.cancellation_timestamp,
		       d.cancellation_note, d.heartbeat_timestamp, e.buffer_time
		FROM deployments d
		JOIN environments e ON e.environment = d.environment
		WHERE d.id = $1`

	dep, err := scanDeployment(s.db.QueryRowContext(ctx, q, id))

	s.logSlowQuery("GetDeployment", start, "id", id)

	if errors.Is(err, sql.ErrNoRows) {
		return deployment.Deployment{}, fmt.Errorf("%w: deployment %d", ErrNotFound, id)
	}

	if err != nil {
		return deployment.Deployment{}, fmt.Errorf("%w: get deployment %d: %w", ErrTransient, id, err)
	}

	return dep, nil
}

// DeploymentIDByURL resolves the most recently created deployment with the
// given URL, supplementing `heartbeat url` per the original tool's
// deployment_id_by_url lookup.
func (s *Store) DeploymentIDByURL(ctx context.Context, url string) (int64, error) {
	start := time.Now()

	const q = `SELECT id FROM deployments WHERE url = $1 ORDER BY id DESC LIMIT 1`

	var id int64

	err := s.db.QueryRowContext(ctx, q, url).Scan(&id)

	s.logSlowQuery("DeploymentIDByURL", start, "url", url)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: no deployment with url %q", ErrNotFound, url)
	}

	if err != nil {
		return 0, fmt.Errorf("%w: deployment id by url: %w", ErrTransient, err)
	}

	return id, nil
}

// Start sets start_timestamp = now for a queued deployment. Fails with
// ErrNotFound if the deployment does not exist, and with
// ErrInvalidTransition if it exists but is not queued.
func (s *Store) Start(ctx context.Context, id int64) error {
	start := time.Now()

	const q = `
		UPDATE deployments SET start_timestamp = now()
		WHERE id = $1 AND start_timestamp IS NULL AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, id)

	s.logSlowQuery("Start", start, "id", id)

	if err != nil {
		return fmt.Errorf("%w: start deployment %d: %w", ErrTransient, id, err)
	}

	return s.requireSingleRowAffected(ctx, id, res)
}

// Finish sets finish_timestamp = now for a running deployment. The store
// trigger refreshes deployment_analytics as a side effect of this write.
func (s *Store) Finish(ctx context.Context, id int64) error {
	start := time.Now()

	const q = `
		UPDATE deployments SET finish_timestamp = now()
		WHERE id = $1 AND start_timestamp IS NOT NULL
		  AND finish_timestamp IS NULL AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, id)

	s.logSlowQuery("Finish", start, "id", id)

	if err != nil {
		return fmt.Errorf("%w: finish deployment %d: %w", ErrTransient, id, err)
	}

	return s.requireSingleRowAffected(ctx, id, res)
}

// Heartbeat sets heartbeat_timestamp = now for a deployment. No state guard
// beyond "not cancelled": the writer starts ticking as soon as a deployment
// is enqueued, before start_timestamp is set, so requiring a running state
// here would reject every tick during the queued wait. Matches the
// original's unconditional update_heartbeat.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	start := time.Now()

	const q = `
		UPDATE deployments SET heartbeat_timestamp = now()
		WHERE id = $1 AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, id)

	s.logSlowQuery("Heartbeat", start, "id", id)

	if err != nil {
		return fmt.Errorf("%w: heartbeat deployment %d: %w", ErrTransient, id, err)
	}

	return s.requireSingleRowAffected(ctx, id, res)
}

// CancelByID cancels a single deployment by id. Idempotent: re-cancelling
// an already-cancelled row is a no-op write, satisfying R2.
func (s *Store) CancelByID(ctx context.Context, id int64, note *string) (int64, error) {
	start := time.Now()

	const q = `
		UPDATE deployments SET cancellation_timestamp = now(), cancellation_note = $2
		WHERE id = $1 AND finish_timestamp IS NULL AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, id, note)

	s.logSlowQuery("CancelByID", start, "id", id)

	if err != nil {
		return 0, fmt.Errorf("%w: cancel deployment %d: %w", ErrTransient, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: cancel deployment %d: %w", ErrTransient, id, err)
	}

	return n, nil
}

// CancelByComponentVersion cancels every deployment that is neither finished
// nor cancelled and matches both component and version, across all cells.
func (s *Store) CancelByComponentVersion(ctx context.Context, component, version string, note *string) (int64, error) {
	start := time.Now()

	const q = `
		UPDATE deployments SET cancellation_timestamp = now(), cancellation_note = $3
		WHERE component = $1 AND version = $2
		  AND finish_timestamp IS NULL AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, component, version, note)

	s.logSlowQuery("CancelByComponentVersion", start, "component", component, "version", version)

	if err != nil {
		return 0, fmt.Errorf("%w: cancel by component/version: %w", ErrTransient, err)
	}

	return rowsAffected(res)
}

// CancelByLocation cancels every deployment that is neither finished nor
// cancelled and matches the given environment/cloud_provider/region, and
// optionally a specific cell_index.
func (s *Store) CancelByLocation(ctx context.Context, environment, cloudProvider, region string, cellIndex *int32, note *string) (int64, error) {
	start := time.Now()

	const q = `
		UPDATE deployments SET cancellation_timestamp = now(), cancellation_note = $5
		WHERE environment = $1 AND cloud_provider = $2 AND region = $3
		  AND ($4::int IS NULL OR cell_index = $4)
		  AND finish_timestamp IS NULL AND cancellation_timestamp IS NULL`

	res, err := s.db.ExecContext(ctx, q, environment, cloudProvider, region, cellIndex, note)

	s.logSlowQuery("CancelByLocation", start, "environment", environment, "region", region)

	if err != nil {
		return 0, fmt.Errorf("%w: cancel by location: %w", ErrTransient, err)
	}

	return rowsAffected(res)
}

// StaleHeartbeatDeployments returns the ids of running deployments whose
// heartbeat has not been refreshed within HEARTBEAT_TIMEOUT, for the sweeper
// to cancel (P5).
func (s *Store) StaleHeartbeatDeployments(ctx context.Context, timeout time.Duration) ([]int64, error) {
	start := time.Now()

	const q = `
		SELECT id FROM deployments
		WHERE start_timestamp IS NOT NULL AND finish_timestamp IS NULL
		  AND cancellation_timestamp IS NULL
		  AND heartbeat_timestamp IS NOT NULL
		  AND now() - heartbeat_timestamp > ($1 || ' microseconds')::interval
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, timeout.Microseconds())

	s.logSlowQuery("StaleHeartbeatDeployments", start)

	if err != nil {
		return nil, fmt.Errorf("%w: stale heartbeat scan: %w", ErrTransient, err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: stale heartbeat scan: %w", ErrTransient, err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: stale heartbeat scan: %w", ErrTransient, err)
	}

	return ids, nil
}

// BlockingDeployments returns every deployment blocking the candidate, per
// the predicate in C3, ordered by id ascending.
func (s *Store) BlockingDeployments(ctx context.Context, candidateID int64, cell deployment.Cell, concurrencyKey *string) ([]deployment.BlockingDeployment, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, blockingDeploymentsQuery,
		cell.Environment, cell.CloudProvider, cell.Region, cell.CellIndex, candidateID, concurrencyKey)

	s.logSlowQuery("BlockingDeployments", start, "candidate_id", candidateID)

	if err != nil {
		return nil, fmt.Errorf("%w: blocking deployments: %w", ErrTransient, err)
	}
	defer rows.Close()

	var blockers []deployment.BlockingDeployment

	for rows.Next() {
		b, err := scanBlockingDeployment(rows, cell)
		if err != nil {
			return nil, fmt.Errorf("%w: blocking deployments: %w", ErrDataCorruption, err)
		}

		if b.Deployment.State() == deployment.Cancelled {
			return nil, fmt.Errorf("%w: cancelled deployment %d appeared as a blocker", ErrDataCorruption, b.Deployment.ID)
		}

		blockers = append(blockers, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: blocking deployments: %w", ErrTransient, err)
	}

	return blockers, nil
}

// OutlierDeployments returns every currently-running deployment whose
// elapsed time exceeds avg+2*stddev of its historical sibling set.
func (s *Store) OutlierDeployments(ctx context.Context) ([]deployment.OutlierDeployment, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, activeOutliersQuery)

	s.logSlowQuery("OutlierDeployments", start)

	if err != nil {
		return nil, fmt.Errorf("%w: active outliers: %w", ErrTransient, err)
	}
	defer rows.Close()

	var outliers []deployment.OutlierDeployment

	for rows.Next() {
		o, err := scanOutlierDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: active outliers: %w", ErrDataCorruption, err)
		}

		outliers = append(outliers, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: active outliers: %w", ErrTransient, err)
	}

	return outliers, nil
}

// Cells returns the distinct cells observed for an environment.
func (s *Store) Cells(ctx context.Context, environment string) ([]deployment.Cell, error) {
	start := time.Now()

	const q = `
		SELECT environment, cloud_provider, region, cell_index FROM cells
		WHERE environment = $1
		ORDER BY cloud_provider, region, cell_index`

	rows, err := s.db.QueryContext(ctx, q, environment)

	s.logSlowQuery("Cells", start, "environment", environment)

	if err != nil {
		return nil, fmt.Errorf("%w: cells: %w", ErrTransient, err)
	}
	defer rows.Close()

	var cells []deployment.Cell

	for rows.Next() {
		var c deployment.Cell
		if err := rows.Scan(&c.Environment, &c.CloudProvider, &c.Region, &c.CellIndex); err != nil {
			return nil, fmt.Errorf("%w: cells: %w", ErrDataCorruption, err)
		}

		cells = append(cells, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: cells: %w", ErrTransient, err)
	}

	return cells, nil
}

// requireSingleRowAffected distinguishes ErrNotFound (no such id) from
// ErrInvalidTransition (the id exists but was not in the expected state),
// since a zero-row UPDATE result is ambiguous between the two on its own.
func (s *Store) requireSingleRowAffected(ctx context.Context, id int64, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: deployment %d: %w", ErrTransient, id, err)
	}

	if n == 1 {
		return nil
	}

	const existsQ = `SELECT 1 FROM deployments WHERE id = $1`

	var exists int

	err = s.db.QueryRowContext(ctx, existsQ, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: deployment %d", ErrNotFound, id)
	}

	if err != nil {
		return fmt.Errorf("%w: deployment %d: %w", ErrTransient, id, err)
	}

	return fmt.Errorf("%w: deployment %d is not in the required state", ErrInvalidTransition, id)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	return n, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}

	return false
}
