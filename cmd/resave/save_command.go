package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newSaveCommand(ctx *commandContext) *cobra.Command {
	var accessCode string
	var title string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "save <share-url>",
		Short: "Re-save a single share and print its durable links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				result, err := svc.SaveShare(runCtx, api.ShareInput{
					URL:        args[0],
					AccessCode: accessCode,
					Title:      title,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}

				out := cmd.OutOrStdout()
				if result.Pending {
					fmt.Fprintf(out, "Share parked (%s); it will be re-checked in the background\n", result.PendingStatus)
					return nil
				}
				if result.Reused {
					fmt.Fprintln(out, "Links reused from history:")
				}
				for _, link := range result.Links {
					fmt.Fprintln(out, link)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&accessCode, "access-code", "a", "", "Share access code (overrides one embedded in the URL)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Folder title for the saved content")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
