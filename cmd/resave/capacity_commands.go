package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newCapacityCommand(ctx *commandContext) *cobra.Command {
	capacityCmd := &cobra.Command{
		Use:   "capacity",
		Short: "Inspect and reclaim managed storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				view, err := svc.Capacity(runCtx)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Used", formatBytes(view.UsedBytes)},
					{"Free", formatBytes(view.FreeBytes)},
					{"Total", formatBytes(view.TotalBytes)},
					{"Utilization", fmt.Sprintf("%.1f%%", view.UsedPercent)},
				}
				table := renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	capacityCmd.AddCommand(newCapacityCleanupCommand(ctx))
	return capacityCmd
}

func newCapacityCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run a manual capacity check and cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				ran, err := svc.CleanupNow(runCtx)
				if err != nil {
					return err
				}
				if !ran {
					fmt.Fprintln(cmd.OutOrStdout(), "Usage is under the threshold; nothing to clean")
					return nil
				}
				view, err := svc.Capacity(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleaned managed directory; %s free now\n", formatBytes(view.FreeBytes))
				return nil
			})
		},
	}
}
