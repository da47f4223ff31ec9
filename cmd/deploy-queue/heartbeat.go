package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploy-queue/deployqueue/internal/config"
	"github.com/deploy-queue/deployqueue/internal/store"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Record a single heartbeat for a running deployment",
}

var heartbeatDeploymentCmd = &cobra.Command{
	Use:   "deployment <deployment-id>",
	Short: "Heartbeat by deployment id",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeatDeployment,
}

var heartbeatURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Heartbeat by CI run URL, resolving the deployment id first",
	Long: "Resolves the deployment id for the given URL, retrying up to\n" +
		"DeploymentIDLookupTimeout since the enqueueing `start` invocation may not\n" +
		"have committed its row yet.",
	Args: cobra.ExactArgs(1),
	RunE: runHeartbeatURL,
}

func init() {
	heartbeatCmd.AddCommand(heartbeatDeploymentCmd, heartbeatURLCmd)
	rootCmd.AddCommand(heartbeatCmd)
}

func runHeartbeatDeployment(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deployment id %q: %w", args[0], err)
	}

	return heartbeatOnce(cmd, id)
}

func runHeartbeatURL(cmd *cobra.Command, args []string) error {
	id, err := deploymentIDByURLWithRetry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return heartbeatOnce(cmd, id)
}

func heartbeatOnce(cmd *cobra.Command, id int64) error {
	if err := appStore.Heartbeat(cmd.Context(), id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "heartbeat recorded for deployment %d\n", id)

	return nil
}

// deploymentIDByURLWithRetry polls DeploymentIDByURL until it resolves or
// DeploymentIDLookupTimeout elapses, since the row written by `start` may
// not be visible yet when the first heartbeat for a URL arrives.
func deploymentIDByURLWithRetry(ctx context.Context, url string) (int64, error) {
	deadline := time.Now().Add(config.DeploymentIDLookupTimeout)

	for {
		id, err := appStore.DeploymentIDByURL(ctx, url)
		if err == nil {
			return id, nil
		}

		if !errorIsNotFound(err) || time.Now().After(deadline) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(config.DeploymentIDLookupRetry):
		}
	}
}

func errorIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
