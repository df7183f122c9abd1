package store

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a transfer job.
type JobStatus string

const (
	JobWait       JobStatus = "wait"
	JobQueued     JobStatus = "queued"
	JobRunning    JobStatus = "running"
	JobPausing    JobStatus = "pausing"
	JobPaused     JobStatus = "paused"
	JobCancelling JobStatus = "cancelling"
	JobCancelled  JobStatus = "cancelled"
	JobCompleted  JobStatus = "completed"
)

var allJobStatuses = []JobStatus{
	JobWait,
	JobQueued,
	JobRunning,
	JobPausing,
	JobPaused,
	JobCancelling,
	JobCancelled,
	JobCompleted,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// interruptedJobStatuses are the statuses forced back to paused after an
// unclean shutdown.
var interruptedJobStatuses = []JobStatus{JobRunning, JobPausing, JobCancelling, JobQueued}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTransitional reports whether the status is a two-phase stop in progress.
func (s JobStatus) IsTransitional() bool {
	return s == JobPausing || s == JobCancelling
}

// IsTerminal reports whether the job can make no further progress.
func (s JobStatus) IsTerminal() bool {
	return s == JobCancelled || s == JobCompleted
}

// ItemStatus represents the lifecycle of a single transfer item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// PendingStatus classifies why a transfer is parked.
type PendingStatus string

const (
	PendingAuditing     PendingStatus = "auditing"
	PendingSnapshotting PendingStatus = "snapshotting"
	PendingRestricted   PendingStatus = "restricted"
	PendingUnlisted     PendingStatus = "unlisted"
)

// TransferJob is one batch run over an ordered list of items.
type TransferJob struct {
	ID           int64
	Name         string
	Status       JobStatus
	TotalCount   int
	SuccessCount int
	FailCount    int
	MinDelay     int
	MaxDelay     int
	SkipCount    int
	Position     int
	Waiting      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransferItem is one row of a job.
type TransferItem struct {
	ID           int64
	JobID        int64
	Position     int
	SourceRef    string
	Title        string
	AccessCode   string
	Status       ItemStatus
	Links        []string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ItemSeed is the caller-supplied description of a job row at creation time.
type ItemSeed struct {
	SourceRef  string
	Title      string
	AccessCode string
}

// PendingTransfer is a share operation parked while the remote audits,
// snapshots, or throttles.
type PendingTransfer struct {
	ID        int64
	SourceRef string
	Metadata  string
	Status    PendingStatus
	Attempts  int
	LastCheck *time.Time
	CreatedAt time.Time
}

// LinkHistoryRecord memoizes sourceRef -> produced link(s).
type LinkHistoryRecord struct {
	ID        int64
	SourceRef string
	Links     []string
	CreatedAt time.Time
}

// ItemCounts aggregates per-status item totals for a job.
type ItemCounts struct {
	Pending    int
	Processing int
	Success    int
	Failed     int
	Skipped    int
}

// Total sums all buckets. For a consistent job this equals the job's
// total_count at every instant.
func (c ItemCounts) Total() int {
	return c.Pending + c.Processing + c.Success + c.Failed + c.Skipped
}
