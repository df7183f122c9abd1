package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"resave/internal/api"
)

// parseJobID converts a positional argument into a job id.
func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

// collectShares merges positional URLs with lines read from an optional
// file. Blank lines and #-comments in the file are skipped.
func collectShares(args []string, fromFile string) ([]api.ShareInput, error) {
	shares := make([]api.ShareInput, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			shares = append(shares, api.ShareInput{URL: trimmed})
		}
	}

	if fromFile != "" {
		file, err := os.Open(fromFile)
		if err != nil {
			return nil, fmt.Errorf("open share list: %w", err)
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// Optional "url<TAB>title" form.
			url, title, _ := strings.Cut(line, "\t")
			shares = append(shares, api.ShareInput{URL: strings.TrimSpace(url), Title: strings.TrimSpace(title)})
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read share list: %w", err)
		}
	}
	return shares, nil
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatProgress renders "succeeded+failed/total".
func formatProgress(view api.JobView) string {
	return fmt.Sprintf("%d+%d/%d", view.SuccessCount, view.FailCount, view.TotalCount)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
