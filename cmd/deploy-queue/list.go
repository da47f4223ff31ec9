package main

import (
	"github.com/spf13/cobra"

	"github.com/deploy-queue/deployqueue/internal/report"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List outlier deployments or known cells",
}

var listOutliersCmd = &cobra.Command{
	Use:   "outliers",
	Short: "List currently-running deployments exceeding avg+2*stddev duration",
	RunE:  runListOutliers,
}

var listCellsEnvironment string

var listCellsCmd = &cobra.Command{
	Use:   "cells",
	Short: "List the distinct cells observed for an environment",
	RunE:  runListCells,
}

func init() {
	listCellsCmd.Flags().StringVar(&listCellsEnvironment, "environment", "", "environment (required)")

	if err := listCellsCmd.MarkFlagRequired("environment"); err != nil {
		panic(err)
	}

	listCmd.AddCommand(listOutliersCmd, listCellsCmd)
	rootCmd.AddCommand(listCmd)
}

func runListOutliers(cmd *cobra.Command, _ []string) error {
	outliers, err := appStore.OutlierDeployments(cmd.Context())
	if err != nil {
		return err
	}

	return report.Outliers(cmd.OutOrStdout(), outliers)
}

func runListCells(cmd *cobra.Command, _ []string) error {
	cells, err := appStore.Cells(cmd.Context(), listCellsEnvironment)
	if err != nil {
		return err
	}

	return report.Cells(cmd.OutOrStdout(), listCellsEnvironment, cells)
}
