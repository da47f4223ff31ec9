package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploy-queue/deployqueue/internal/deployment"
	"github.com/deploy-queue/deployqueue/internal/queue"
)

var (
	startEnvironment    string
	startCloudProvider  string
	startRegion         string
	startCellIndex      int32
	startComponent      string
	startVersion        string
	startURL            string
	startNote           string
	startConcurrencyKey string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Enqueue a deployment and block until it may safely run",
	Long: "Enqueues a deployment, writes deployment-id to GITHUB_OUTPUT, then blocks\n" +
		"until every conflicting deployment in the same cell has cleared, sweeping\n" +
		"stale heartbeats as it waits.",
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startEnvironment, "environment", "", "target environment (required)")
	startCmd.Flags().StringVar(&startCloudProvider, "cloud-provider", "", "target cloud provider (required)")
	startCmd.Flags().StringVar(&startRegion, "region", "", "target region (required)")
	startCmd.Flags().Int32Var(&startCellIndex, "cell-index", 0, "target cell index (required)")
	startCmd.Flags().StringVar(&startComponent, "component", "", "component being deployed (required)")
	startCmd.Flags().StringVar(&startVersion, "version", "", "version being deployed")
	startCmd.Flags().StringVar(&startURL, "url", "", "CI run URL, for heartbeat url lookups")
	startCmd.Flags().StringVar(&startNote, "note", "", "free-form note")
	startCmd.Flags().StringVar(&startConcurrencyKey, "concurrency-key", "", "bypasses blocking against deployments sharing this key")

	for _, name := range []string{"environment", "cloud-provider", "region", "cell-index", "component"} {
		if err := startCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	// An explicitly passed empty key is still a key, distinct from no key.
	var concurrencyKey *string
	if cmd.Flags().Changed("concurrency-key") {
		concurrencyKey = &startConcurrencyKey
	}

	params := queue.StartParams{
		Cell: deployment.Cell{
			Environment:   startEnvironment,
			CloudProvider: startCloudProvider,
			Region:        startRegion,
			CellIndex:     startCellIndex,
		},
		Component:      startComponent,
		Version:        optionalString(startVersion),
		URL:            optionalString(startURL),
		Note:           optionalString(startNote),
		ConcurrencyKey: concurrencyKey,
	}

	id, err := appCoordinator.Start(cmd.Context(), params)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deployment %d enqueued and started\n", id)

	return nil
}

// optionalString converts a flag's zero-value-means-unset string into the
// *string shape the store layer expects for nullable columns.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
