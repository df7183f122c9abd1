package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage batch re-save jobs",
	}

	jobsCmd.AddCommand(newJobsCreateCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsStartCommand(ctx))
	jobsCmd.AddCommand(newJobsPauseCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))

	return jobsCmd
}

func newJobsCreateCommand(ctx *commandContext) *cobra.Command {
	var name string
	var fromFile string
	var minDelay, maxDelay int
	var start bool

	cmd := &cobra.Command{
		Use:   "create [share-url...]",
		Short: "Create a batch job from share links",
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := collectShares(args, fromFile)
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				jobName := strings.TrimSpace(name)
				if jobName == "" {
					jobName = fmt.Sprintf("batch of %d", len(shares))
				}
				view, err := svc.CreateJob(runCtx, jobName, minDelay, maxDelay, shares)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s) with %d items\n", view.ID, view.Name, view.TotalCount)
				if !start {
					return nil
				}
				if _, err := svc.StartJob(runCtx, view.ID, 0); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d queued; run the daemon to process it\n", view.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "File with one share link per line")
	cmd.Flags().IntVar(&minDelay, "min-delay", 0, "Minimum seconds between items (0 = config default)")
	cmd.Flags().IntVar(&maxDelay, "max-delay", 0, "Maximum seconds between items (0 = config default)")
	cmd.Flags().BoolVar(&start, "start", false, "Queue the job immediately")
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				views, err := svc.ListJobs(runCtx)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						fmt.Sprintf("%d", view.ID),
						view.Name,
						view.Status,
						formatProgress(view),
						view.CreatedAt,
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Done", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				detail, err := svc.DescribeJob(runCtx, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d: %s (%s)\n", detail.Job.ID, detail.Job.Name, detail.Job.Status)
				fmt.Fprintf(out, "Progress: %s  Delays: %d-%ds  Waiting: %s\n",
					formatProgress(detail.Job), detail.Job.MinDelay, detail.Job.MaxDelay, yesNo(detail.Job.Waiting))

				rows := make([][]string, 0, len(detail.Items))
				for _, item := range detail.Items {
					links := ""
					if len(item.Links) > 0 {
						links = strings.Join(item.Links, " ")
					}
					detailCol := links
					if item.ErrorMessage != "" {
						detailCol = item.ErrorMessage
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", item.Position),
						item.Title,
						item.Status,
						detailCol,
					})
				}
				table := renderTable(
					[]string{"#", "Title", "Status", "Links / Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newJobsStartCommand(ctx *commandContext) *cobra.Command {
	var skip int

	cmd := &cobra.Command{
		Use:   "start <job-id>",
		Short: "Queue a waiting or paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				view, err := svc.StartJob(runCtx, id, skip)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d is %s\n", view.ID, view.Status)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "Mark the first N items skipped before starting")
	return cmd
}

func newJobsPauseCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "pause <job-id>",
		Short: "Pause a job after its in-flight item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				view, err := svc.PauseJob(runCtx, id, wait)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d is %s\n", view.ID, view.Status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job has actually paused")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Permanently stop a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				view, err := svc.CancelJob(runCtx, id, wait)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d is %s\n", view.ID, view.Status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job has actually cancelled")
	return cmd
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete an inactive job and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				if err := svc.DeleteJob(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d deleted\n", id)
				return nil
			})
		},
	}
}
