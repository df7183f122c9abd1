package api

import (
	"sort"
	"time"

	"resave/internal/drive"
	"resave/internal/store"
	"resave/internal/transfer"
)

// FromJob converts a job record to its API representation.
func FromJob(job *store.TransferJob) JobView {
	if job == nil {
		return JobView{}
	}
	dto := JobView{
		ID:           job.ID,
		Name:         job.Name,
		Status:       string(job.Status),
		TotalCount:   job.TotalCount,
		SuccessCount: job.SuccessCount,
		FailCount:    job.FailCount,
		Position:     job.Position,
		MinDelay:     job.MinDelay,
		MaxDelay:     job.MaxDelay,
		Waiting:      job.Waiting,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*store.TransferJob) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromItem converts a job row to its API representation.
func FromItem(item *store.TransferItem) ItemView {
	if item == nil {
		return ItemView{}
	}
	dto := ItemView{
		ID:           item.ID,
		Position:     item.Position,
		SourceRef:    item.SourceRef,
		Title:        item.Title,
		Status:       string(item.Status),
		Links:        item.Links,
		ErrorMessage: item.ErrorMessage,
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromItems converts a slice of job rows into API DTOs.
func FromItems(items []*store.TransferItem) []ItemView {
	if len(items) == 0 {
		return nil
	}
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromSpace normalizes a raw space report.
func FromSpace(info drive.SpaceInfo) CapacityView {
	view := CapacityView{
		UsedBytes:  info.UsedBytes,
		TotalBytes: info.TotalBytes,
		FreeBytes:  info.TotalBytes - info.UsedBytes,
	}
	if view.FreeBytes < 0 {
		view.FreeBytes = 0
	}
	if info.TotalBytes > 0 {
		view.UsedPercent = float64(info.UsedBytes) / float64(info.TotalBytes) * 100
	}
	return view
}

// FromPending converts a parked transfer record.
func FromPending(p *store.PendingTransfer) PendingView {
	if p == nil {
		return PendingView{}
	}
	dto := PendingView{
		ID:        p.ID,
		SourceRef: p.SourceRef,
		Status:    string(p.Status),
		Attempts:  p.Attempts,
	}
	if p.LastCheck != nil && !p.LastCheck.IsZero() {
		dto.LastCheck = p.LastCheck.UTC().Format(dateTimeFormat)
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromPendings converts a slice of parked transfers.
func FromPendings(records []*store.PendingTransfer) []PendingView {
	if len(records) == 0 {
		return nil
	}
	out := make([]PendingView, 0, len(records))
	for _, p := range records {
		out = append(out, FromPending(p))
	}
	return out
}

// FromOutcome converts a processor outcome into a save result.
func FromOutcome(outcome *transfer.Outcome) SaveResult {
	if outcome == nil {
		return SaveResult{}
	}
	return SaveResult{
		Links:         outcome.Links,
		Reused:        outcome.Reused,
		Pending:       outcome.Pending,
		PendingStatus: string(outcome.PendingStatus),
	}
}

// FromThrottle snapshots the shared cooldown state.
func FromThrottle(t *transfer.Throttle) ThrottleView {
	if t == nil || !t.Active() {
		return ThrottleView{}
	}
	return ThrottleView{
		Active:           true,
		RemainingSeconds: int64(t.Remaining().Seconds()),
	}
}

// SortJobsNewestFirst orders jobs by CreatedAt descending, breaking ties by
// ID descending.
func SortJobsNewestFirst(jobs []JobView) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	sorted := make([]JobView, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		ti := ParseTime(sorted[i].CreatedAt)
		tj := ParseTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

// ParseTime parses an API timestamp for display formatting. Unparseable
// values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
