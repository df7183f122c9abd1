package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"resave/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			daemonStatus := fetchDaemonStatus(cmd.Context(), cfg.API.Bind, cfg.API.AuthToken)
			if daemonStatus != nil && daemonStatus.Running {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", daemonStatus.PID), colorize))
				if daemonStatus.Throttle.Active {
					fmt.Fprintln(out, renderStatusLine("Throttle", statusWarn,
						fmt.Sprintf("cooling down, %ds left", daemonStatus.Throttle.RemainingSeconds), colorize))
				}
				if daemonStatus.ActiveJob != nil {
					fmt.Fprintln(out, renderStatusLine("Active job", statusInfo,
						fmt.Sprintf("%d %s (%s)", daemonStatus.ActiveJob.ID, daemonStatus.ActiveJob.Name, formatProgress(*daemonStatus.ActiveJob)), colorize))
				}
				if daemonStatus.Capacity != nil {
					fmt.Fprintln(out, renderStatusLine("Storage", statusInfo,
						fmt.Sprintf("%s / %s (%.1f%%)", formatBytes(daemonStatus.Capacity.UsedBytes), formatBytes(daemonStatus.Capacity.TotalBytes), daemonStatus.Capacity.UsedPercent), colorize))
				}
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not reachable", colorize))
			}

			return ctx.withService(cmd.Context(), func(runCtx context.Context, svc *api.TransferService) error {
				views, err := svc.ListJobs(runCtx)
				if err != nil {
					return err
				}
				counts := map[string]int{}
				for _, view := range views {
					counts[view.Status]++
				}
				if len(views) == 0 {
					fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, "none", colorize))
				} else {
					parts := make([]string, 0, len(counts))
					for _, status := range []string{"wait", "queued", "running", "pausing", "paused", "cancelling", "cancelled", "completed"} {
						if counts[status] > 0 {
							parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
						}
					}
					fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, strings.Join(parts, ", "), colorize))
				}

				parked, err := svc.ListPending(runCtx)
				if err != nil {
					return err
				}
				kind := statusInfo
				if len(parked) > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Pending", kind, fmt.Sprintf("%d parked", len(parked)), colorize))
				return nil
			})
		},
	}
}

// fetchDaemonStatus queries the daemon's local HTTP endpoint when one is
// configured. A nil result means no daemon could be reached.
func fetchDaemonStatus(ctx context.Context, bind, token string) *api.DaemonStatus {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return nil
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var payload api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}
	return &payload
}
