package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cancelNote string

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel one or more deployments",
}

var cancelDeploymentCmd = &cobra.Command{
	Use:   "deployment <deployment-id>",
	Short: "Cancel a single deployment by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelDeployment,
}

var (
	cancelComponent string
	cancelVersion   string
)

var cancelVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Cancel every deployment matching a component and version",
	RunE:  runCancelVersion,
}

var (
	cancelEnvironment   string
	cancelCloudProvider string
	cancelRegion        string
	cancelCellIndex     int32
)

var cancelLocationCmd = &cobra.Command{
	Use:   "location",
	Short: "Cancel every deployment matching a location, optionally scoped to one cell",
	RunE:  runCancelLocation,
}

func init() {
	cancelCmd.PersistentFlags().StringVar(&cancelNote, "note", "", "cancellation note")

	cancelVersionCmd.Flags().StringVar(&cancelComponent, "component", "", "component (required)")
	cancelVersionCmd.Flags().StringVar(&cancelVersion, "version", "", "version (required)")

	for _, name := range []string{"component", "version"} {
		if err := cancelVersionCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	cancelLocationCmd.Flags().StringVar(&cancelEnvironment, "environment", "", "environment (required)")
	cancelLocationCmd.Flags().StringVar(&cancelCloudProvider, "cloud-provider", "", "cloud provider (required)")
	cancelLocationCmd.Flags().StringVar(&cancelRegion, "region", "", "region (required)")
	cancelLocationCmd.Flags().Int32Var(&cancelCellIndex, "cell-index", 0, "restrict to a single cell index")

	for _, name := range []string{"environment", "cloud-provider", "region"} {
		if err := cancelLocationCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	cancelCmd.AddCommand(cancelDeploymentCmd, cancelVersionCmd, cancelLocationCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runCancelDeployment(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deployment id %q: %w", args[0], err)
	}

	n, err := appCoordinator.CancelByID(cmd.Context(), id, optionalString(cancelNote))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d deployment(s) cancelled\n", n)

	return nil
}

func runCancelVersion(cmd *cobra.Command, _ []string) error {
	n, err := appCoordinator.CancelByComponentVersion(cmd.Context(), cancelComponent, cancelVersion, optionalString(cancelNote))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d deployment(s) cancelled\n", n)

	return nil
}

func runCancelLocation(cmd *cobra.Command, _ []string) error {
	var cellIndex *int32
	if cmd.Flags().Changed("cell-index") {
		cellIndex = &cancelCellIndex
	}

	n, err := appCoordinator.CancelByLocation(cmd.Context(), cancelEnvironment, cancelCloudProvider, cancelRegion, cellIndex, optionalString(cancelNote))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d deployment(s) cancelled\n", n)

	return nil
}
