package store

import (
	"database/sql"
	"fmt"

	"github.com/deploy-queue/deployqueue/internal/deployment"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanDeployment serve single-row lookups and multi-row listings alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (deployment.Deployment, error) {
	var d deployment.Deployment

	err := row.Scan(
		&d.ID, &d.Cell.Environment, &d.Cell.CloudProvider, &d.Cell.Region, &d.Cell.CellIndex,
		&d.Component, &d.Version, &d.URL, &d.Note, &d.ConcurrencyKey, &d.CreatedAt,
		&d.StartTimestamp, &d.FinishTimestamp, &d.CancellationTimestamp,
		&d.CancellationNote, &d.HeartbeatTimestamp, &d.BufferTime,
	)
	if err != nil {
		return deployment.Deployment{}, err
	}

	return d, nil
}

func scanBlockingDeployment(row rowScanner, _ deployment.Cell) (deployment.BlockingDeployment, error) {
	var (
		d              deployment.Deployment
		avgDuration    sql.Null[deployment.Interval]
		stddevDuration sql.Null[deployment.Interval]
	)

	err := row.Scan(
		&d.ID, &d.Cell.Environment, &d.Cell.CloudProvider, &d.Cell.Region, &d.Cell.CellIndex,
		&d.Component, &d.Version, &d.URL, &d.Note, &d.ConcurrencyKey, &d.CreatedAt,
		&d.StartTimestamp, &d.FinishTimestamp, &d.CancellationTimestamp,
		&d.CancellationNote, &d.HeartbeatTimestamp, &d.BufferTime,
		&avgDuration, &stddevDuration,
	)
	if err != nil {
		return deployment.BlockingDeployment{}, fmt.Errorf("scan blocking deployment: %w", err)
	}

	b := deployment.BlockingDeployment{Deployment: d}

	if avgDuration.Valid {
		b.AvgDuration = &avgDuration.V
	}

	if stddevDuration.Valid {
		b.StddevDuration = &stddevDuration.V
	}

	return b, nil
}

func scanOutlierDeployment(row rowScanner) (deployment.OutlierDeployment, error) {
	var o deployment.OutlierDeployment

	err := row.Scan(
		&o.ID, &o.Cell.Environment, &o.Cell.CloudProvider, &o.Cell.Region, &o.Cell.CellIndex,
		&o.Component, &o.Version, &o.URL, &o.Note,
		&o.CurrentDuration, &o.AvgDuration, &o.StddevDuration,
	)
	if err != nil {
		return deployment.OutlierDeployment{}, fmt.Errorf("scan outlier deployment: %w", err)
	}

	return o, nil
}
