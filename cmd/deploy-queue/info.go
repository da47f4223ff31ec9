package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deploy-queue/deployqueue/internal/report"
)

var infoCmd = &cobra.Command{
	Use:   "info <deployment-id>",
	Short: "Print a one-line colorized summary of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deployment id %q: %w", args[0], err)
	}

	d, err := appStore.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}

	report.Info(cmd.OutOrStdout(), d)

	return nil
}
