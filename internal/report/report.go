// Package report formats deployments, outliers, and cells for the `info`,
// `list outliers`, and `list cells` verbs: `info` writes a colorized
// one-line summary to stdout; `list outliers` and `list cells` write to
// stdout plus a JSON blob to the CI output sink. Grounded on
// original_source/deploy-queue/src/handler/list.rs and the teacher's
// slog-based structured logging conventions.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/deploy-queue/deployqueue/internal/deployment"
	"github.com/deploy-queue/deployqueue/internal/ghoutput"
)

var (
	styleQueued    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleFinished  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleCancelled = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func stateStyle(s deployment.State) lipgloss.Style {
	switch s {
	case deployment.Running:
		return styleRunning
	case deployment.Finished:
		return styleFinished
	case deployment.Cancelled:
		return styleCancelled
	default:
		return styleQueued
	}
}

// Info writes a deployment's one-line colorized summary to w. Mirrors
// show_deployment_info's println! in the original tool.
func Info(w io.Writer, d deployment.Deployment) {
	fmt.Fprintln(w, stateStyle(d.State()).Render(d.Summary()))
}

// outlierJSON is the wire shape for one outlier row, matching spec.md §4.4's
// "current_duration, avg_duration, stddev_duration" fields.
type outlierJSON struct {
	ID              int64  `json:"id"`
	Environment     string `json:"environment"`
	CloudProvider   string `json:"cloud_provider"`
	Region          string `json:"region"`
	CellIndex       int32  `json:"cell_index"`
	Component       string `json:"component"`
	Version         string `json:"version,omitempty"`
	URL             string `json:"url,omitempty"`
	Note            string `json:"note,omitempty"`
	CurrentDuration string `json:"current_duration"`
	AvgDuration     string `json:"avg_duration"`
	StddevDuration  string `json:"stddev_duration"`
}

func toOutlierJSON(o deployment.OutlierDeployment) outlierJSON {
	j := outlierJSON{
		ID:              o.ID,
		Environment:     o.Cell.Environment,
		CloudProvider:   o.Cell.CloudProvider,
		Region:          o.Cell.Region,
		CellIndex:       o.Cell.CellIndex,
		Component:       o.Component,
		CurrentDuration: o.CurrentDuration.ToDuration().String(),
		AvgDuration:     o.AvgDuration.ToDuration().String(),
		StddevDuration:  o.StddevDuration.ToDuration().String(),
	}

	if o.Version != nil {
		j.Version = *o.Version
	}

	if o.URL != nil {
		j.URL = *o.URL
	}

	if o.Note != nil {
		j.Note = *o.Note
	}

	return j
}

// Outliers writes the compact outlier JSON to stdout and a pretty copy to
// the CI output sink under "active-outliers". Per spec.md §4.8 this is the
// reverse of which form goes where compared to the original tool.
func Outliers(w io.Writer, outliers []deployment.OutlierDeployment) error {
	rows := make([]outlierJSON, len(outliers))
	for i, o := range outliers {
		rows[i] = toOutlierJSON(o)
	}

	compact, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("report: marshal outliers: %w", err)
	}

	fmt.Fprintln(w, string(compact))

	pretty, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal outliers: %w", err)
	}

	if err := ghoutput.Write("active-outliers", string(pretty)); err != nil {
		return fmt.Errorf("report: write active-outliers output: %w", err)
	}

	return nil
}

type cellJSON struct {
	Environment   string `json:"environment"`
	CloudProvider string `json:"cloud_provider"`
	Region        string `json:"region"`
	CellIndex     int32  `json:"cell_index"`
}

// Cells writes a human-readable cell list to stdout and the JSON form to
// the CI output sink under "cells".
func Cells(w io.Writer, environment string, cells []deployment.Cell) error {
	for _, c := range cells {
		fmt.Fprintln(w, c.String())
	}

	rows := make([]cellJSON, len(cells))
	for i, c := range cells {
		rows[i] = cellJSON{
			Environment:   c.Environment,
			CloudProvider: c.CloudProvider,
			Region:        c.Region,
			CellIndex:     c.CellIndex,
		}
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("report: marshal cells: %w", err)
	}

	if err := ghoutput.Write("cells", string(encoded)); err != nil {
		return fmt.Errorf("report: write cells output: %w", err)
	}

	return nil
}
