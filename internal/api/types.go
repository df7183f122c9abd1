package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a transfer job in a transport-friendly format.
type JobView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	TotalCount   int    `json:"totalCount"`
	SuccessCount int    `json:"successCount"`
	FailCount    int    `json:"failCount"`
	Position     int    `json:"position"`
	MinDelay     int    `json:"minDelaySeconds"`
	MaxDelay     int    `json:"maxDelaySeconds"`
	Waiting      bool   `json:"waiting"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// ItemView describes one job row.
type ItemView struct {
	ID           int64    `json:"id"`
	Position     int      `json:"position"`
	SourceRef    string   `json:"sourceRef"`
	Title        string   `json:"title,omitempty"`
	Status       string   `json:"status"`
	Links        []string `json:"links,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// JobDetail pairs a job with its per-item breakdown.
type JobDetail struct {
	Job   JobView    `json:"job"`
	Items []ItemView `json:"items"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// CapacityView summarizes managed-storage usage.
type CapacityView struct {
	UsedBytes   int64   `json:"usedBytes"`
	TotalBytes  int64   `json:"totalBytes"`
	FreeBytes   int64   `json:"freeBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// PendingView describes a parked transfer awaiting remote readiness.
type PendingView struct {
	ID        int64  `json:"id"`
	SourceRef string `json:"sourceRef"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastCheck string `json:"lastCheck,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// SaveResult is the outcome of an ad-hoc share save.
type SaveResult struct {
	Links         []string `json:"links,omitempty"`
	Reused        bool     `json:"reused"`
	Pending       bool     `json:"pending"`
	PendingStatus string   `json:"pendingStatus,omitempty"`
}

// ThrottleView reports the shared cooldown state.
type ThrottleView struct {
	Active           bool  `json:"active"`
	RemainingSeconds int64 `json:"remainingSeconds,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	DBPath       string        `json:"dbPath"`
	LockFilePath string        `json:"lockFilePath"`
	Throttle     ThrottleView  `json:"throttle"`
	Capacity     *CapacityView `json:"capacity,omitempty"`
	ActiveJob    *JobView      `json:"activeJob,omitempty"`
	PendingCount int           `json:"pendingCount"`
}
