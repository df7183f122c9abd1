package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List transfers parked for remote review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				views, err := svc.ListPending(runCtx)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending transfers")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						fmt.Sprintf("%d", view.ID),
						view.SourceRef,
						view.Status,
						fmt.Sprintf("%d", view.Attempts),
						view.LastCheck,
					})
				}
				table := renderTable(
					[]string{"ID", "Source", "Status", "Checks", "Last check"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}
