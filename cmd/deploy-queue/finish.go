package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var finishCmd = &cobra.Command{
	Use:   "finish <deployment-id>",
	Short: "Mark a running deployment as finished",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinish,
}

func init() {
	rootCmd.AddCommand(finishCmd)
}

func runFinish(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deployment id %q: %w", args[0], err)
	}

	if err := appCoordinator.Finish(cmd.Context(), id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deployment %d finished\n", id)

	return nil
}
