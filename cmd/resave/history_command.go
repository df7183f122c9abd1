package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the link-reuse history",
	}

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget all previously published links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				removed, err := svc.ClearHistory(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history record(s)\n", removed)
				return nil
			})
		},
	})

	return historyCmd
}
