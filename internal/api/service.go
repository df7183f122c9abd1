package api

import (
	"context"
	"fmt"
	"strings"

	"resave/internal/capacity"
	"resave/internal/drive"
	"resave/internal/jobs"
	"resave/internal/store"
	"resave/internal/transfer"
)

// ShareInput is one caller-supplied share reference.
type ShareInput struct {
	URL        string
	AccessCode string
	Title      string
}

// TransferService is the facade behind the CLI and IPC surfaces. All methods
// are safe on a nil receiver and return views, never store models.
type TransferService struct {
	st         *store.Store
	controller *jobs.Controller
	processor  *transfer.Processor
	monitor    *capacity.Monitor
	throttle   *transfer.Throttle
}

// NewTransferService wires the facade over the running engine.
func NewTransferService(
	st *store.Store,
	controller *jobs.Controller,
	processor *transfer.Processor,
	monitor *capacity.Monitor,
	throttle *transfer.Throttle,
) *TransferService {
	return &TransferService{
		st:         st,
		controller: controller,
		processor:  processor,
		monitor:    monitor,
		throttle:   throttle,
	}
}

// CreateJob validates the share inputs and registers a batch job in the wait
// state.
func (s *TransferService) CreateJob(ctx context.Context, name string, minDelay, maxDelay int, shares []ShareInput) (JobView, error) {
	if s == nil || s.controller == nil {
		return JobView{}, fmt.Errorf("job service unavailable")
	}
	if len(shares) == 0 {
		return JobView{}, fmt.Errorf("job needs at least one share")
	}

	seeds := make([]store.ItemSeed, 0, len(shares))
	for i, share := range shares {
		ref, err := drive.ParseRef(share.URL, share.AccessCode)
		if err != nil {
			return JobView{}, fmt.Errorf("share %d: %w", i+1, err)
		}
		title := strings.TrimSpace(share.Title)
		if title == "" {
			title = ref.ShareCode
		}
		seeds = append(seeds, store.ItemSeed{
			SourceRef:  share.URL,
			Title:      title,
			AccessCode: ref.ReceiveCode,
		})
	}

	job, err := s.controller.Create(ctx, name, minDelay, maxDelay, seeds)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// StartJob queues a waiting or paused job. The skip offset marks leading
// items skipped and only applies to a fresh start.
func (s *TransferService) StartJob(ctx context.Context, id int64, skip int) (JobView, error) {
	if s == nil || s.controller == nil {
		return JobView{}, fmt.Errorf("job service unavailable")
	}
	job, err := s.controller.Start(ctx, id, skip)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// PauseJob stops a job after its in-flight item.
func (s *TransferService) PauseJob(ctx context.Context, id int64, wait bool) (JobView, error) {
	if s == nil || s.controller == nil {
		return JobView{}, fmt.Errorf("job service unavailable")
	}
	job, err := s.controller.Pause(ctx, id, wait)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// CancelJob permanently stops a job.
func (s *TransferService) CancelJob(ctx context.Context, id int64, wait bool) (JobView, error) {
	if s == nil || s.controller == nil {
		return JobView{}, fmt.Errorf("job service unavailable")
	}
	job, err := s.controller.Cancel(ctx, id, wait)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// DeleteJob removes an inactive job and its items.
func (s *TransferService) DeleteJob(ctx context.Context, id int64) error {
	if s == nil || s.controller == nil {
		return fmt.Errorf("job service unavailable")
	}
	return s.controller.Delete(ctx, id)
}

// DescribeJob fetches a job with its per-item breakdown.
func (s *TransferService) DescribeJob(ctx context.Context, id int64) (*JobDetail, error) {
	if s == nil || s.controller == nil {
		return nil, fmt.Errorf("job service unavailable")
	}
	job, items, err := s.controller.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: FromJob(job), Items: FromItems(items)}, nil
}

// ListJobs returns all jobs, newest first.
func (s *TransferService) ListJobs(ctx context.Context) ([]JobView, error) {
	if s == nil || s.controller == nil {
		return nil, nil
	}
	all, err := s.controller.List(ctx)
	if err != nil {
		return nil, err
	}
	return SortJobsNewestFirst(FromJobs(all)), nil
}

// SaveShare runs the full pipeline for a single share outside any job.
func (s *TransferService) SaveShare(ctx context.Context, input ShareInput) (SaveResult, error) {
	if s == nil || s.processor == nil {
		return SaveResult{}, fmt.Errorf("transfer service unavailable")
	}
	if _, err := drive.ParseRef(input.URL, input.AccessCode); err != nil {
		return SaveResult{}, err
	}
	outcome, err := s.processor.Process(ctx, transfer.Request{
		SourceRef:  input.URL,
		AccessCode: input.AccessCode,
		Title:      input.Title,
	})
	if err != nil {
		return SaveResult{}, err
	}
	return FromOutcome(outcome), nil
}

// Capacity reports managed-storage usage.
func (s *TransferService) Capacity(ctx context.Context) (CapacityView, error) {
	if s == nil || s.monitor == nil {
		return CapacityView{}, fmt.Errorf("capacity monitor unavailable")
	}
	info, err := s.monitor.Stats(ctx)
	if err != nil {
		return CapacityView{}, err
	}
	return FromSpace(info), nil
}

// CleanupNow runs a manual capacity check and reports whether a cleanup
// actually ran.
func (s *TransferService) CleanupNow(ctx context.Context) (bool, error) {
	if s == nil || s.monitor == nil {
		return false, fmt.Errorf("capacity monitor unavailable")
	}
	return s.monitor.CheckAndCleanup(ctx, capacity.TriggerManual)
}

// ListPending returns the parked transfers awaiting remote readiness.
func (s *TransferService) ListPending(ctx context.Context) ([]PendingView, error) {
	if s == nil || s.st == nil {
		return nil, nil
	}
	records, err := s.st.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return FromPendings(records), nil
}

// ClearHistory drops the link-reuse memo and returns the removed row count.
func (s *TransferService) ClearHistory(ctx context.Context) (int64, error) {
	if s == nil || s.st == nil {
		return 0, fmt.Errorf("store unavailable")
	}
	return s.st.ClearHistory(ctx)
}

// ThrottleStatus snapshots the shared cooldown.
func (s *TransferService) ThrottleStatus() ThrottleView {
	if s == nil {
		return ThrottleView{}
	}
	return FromThrottle(s.throttle)
}
