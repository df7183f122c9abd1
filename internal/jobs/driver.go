package jobs

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/logging"
	"resave/internal/notify"
	"resave/internal/store"
	"resave/internal/transfer"
)

// Driver executes batch jobs in the background. It promotes the oldest
// queued job when nothing is running, processes its items in position order
// through the transfer pipeline, and settles two-phase pause and cancel
// requests between items. Only one job runs at a time.
type Driver struct {
	cfg       *config.Config
	st        *store.Store
	processor *transfer.Processor
	monitor   *capacity.Monitor
	throttle  *transfer.Throttle
	notifier  notify.Service
	logger    *slog.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDriver wires a driver over the shared store and pipeline.
func NewDriver(cfg *config.Config, st *store.Store, processor *transfer.Processor, monitor *capacity.Monitor, throttle *transfer.Throttle, notifier notify.Service, logger *slog.Logger) *Driver {
	if notifier == nil {
		notifier = notify.NewNop()
	}
	pollInterval := time.Duration(cfg.Jobs.DriverPollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Driver{
		cfg:          cfg,
		st:           st,
		processor:    processor,
		monitor:      monitor,
		throttle:     throttle,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "driver"),
		pollInterval: pollInterval,
	}
}

// Start begins background processing.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("driver already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(runCtx)
	}()
	return nil
}

// Stop terminates background processing, waiting up to the configured
// shutdown bound for the in-flight item to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()

	wait := time.Duration(d.cfg.Jobs.ShutdownWait) * time.Second
	if wait <= 0 {
		wait = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(wait):
		d.logger.Warn("shutdown wait elapsed with work still in flight")
	}
}

func (d *Driver) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.st.JobByStatus(ctx, store.JobRunning, store.JobPausing, store.JobCancelling)
		if err != nil {
			d.logger.Warn("job lookup failed", logging.Error(err))
			d.sleep(ctx, d.pollInterval)
			continue
		}
		if job == nil {
			promoted, err := d.promote(ctx)
			if err != nil {
				d.logger.Warn("job promotion failed", logging.Error(err))
			}
			if !promoted {
				d.sleep(ctx, d.pollInterval)
			}
			continue
		}

		d.step(ctx, job)
	}
}

// promote moves the oldest queued job to running. Reports whether a job was
// promoted.
func (d *Driver) promote(ctx context.Context) (bool, error) {
	queued, err := d.st.JobByStatus(ctx, store.JobQueued)
	if err != nil || queued == nil {
		return false, err
	}
	ok, err := d.st.TransitionJob(ctx, queued.ID, []store.JobStatus{store.JobQueued}, store.JobRunning)
	if err != nil || !ok {
		return false, err
	}

	d.logger.Info("job running",
		logging.Int64(logging.FieldJobID, queued.ID),
		logging.String("name", queued.Name),
		logging.Int("items", queued.TotalCount),
	)
	if queued.SuccessCount == 0 && queued.FailCount == 0 {
		if err := d.notifier.NotifyJobStarted(ctx, queued.Name, queued.TotalCount); err != nil {
			d.logger.Warn("job start notification failed", logging.Error(err))
		}
	}
	return true, nil
}

// step advances a job by at most one item, settling stop requests first.
func (d *Driver) step(ctx context.Context, job *store.TransferJob) {
	logger := d.logger.With(logging.Int64(logging.FieldJobID, job.ID))

	switch job.Status {
	case store.JobPausing:
		d.settle(ctx, job, store.JobPausing, store.JobPaused, logger)
		return
	case store.JobCancelling:
		d.settle(ctx, job, store.JobCancelling, store.JobCancelled, logger)
		return
	case store.JobRunning:
	default:
		return
	}

	if d.throttle != nil && d.throttle.Active() {
		logger.Warn("cooldown active, pausing job",
			logging.Duration("remaining", d.throttle.Remaining()),
		)
		if _, err := d.st.TransitionJob(ctx, job.ID, []store.JobStatus{store.JobRunning}, store.JobPaused); err != nil {
			logger.Warn("pause on throttle failed", logging.Error(err))
		}
		return
	}

	item, err := d.st.NextPendingItem(ctx, job.ID)
	if err != nil {
		logger.Warn("next item lookup failed", logging.Error(err))
		d.sleep(ctx, d.pollInterval)
		return
	}
	if item == nil {
		d.complete(ctx, job, logger)
		return
	}

	claimed, err := d.st.ClaimItem(ctx, item.ID)
	if err != nil {
		logger.Warn("item claim failed", logging.Error(err))
		return
	}
	if !claimed {
		return
	}

	d.processItem(ctx, job, item, logger)
	d.pauseBetweenItems(ctx, job, logger)
}

// processItem runs one item through the pipeline and persists the result.
func (d *Driver) processItem(ctx context.Context, job *store.TransferJob, item *store.TransferItem, logger *slog.Logger) {
	itemLogger := logger.With(
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldSourceRef, item.SourceRef),
	)

	outcome, err := d.processor.Process(ctx, transfer.Request{
		SourceRef:  item.SourceRef,
		AccessCode: item.AccessCode,
		Title:      item.Title,
	})

	switch {
	case err == nil && outcome.Pending:
		item.Status = store.ItemSkipped
		item.ErrorMessage = "parked: share pending remote review"
		itemLogger.Info("item parked as pending transfer")
	case err == nil:
		item.Status = store.ItemSuccess
		item.Links = outcome.Links
		item.ErrorMessage = ""
		itemLogger.Info("item re-published",
			logging.Int("links", len(outcome.Links)),
			logging.Bool("reused", outcome.Reused),
		)
	case ctx.Err() != nil:
		// Shutdown mid-item: release the claim for the next run.
		item.Status = store.ItemPending
		itemLogger.Info("item released on shutdown")
	case errors.Is(err, transfer.ErrThrottled):
		item.Status = store.ItemPending
		itemLogger.Warn("item released, remote throttled", logging.Error(err))
		if _, terr := d.st.TransitionJob(ctx, job.ID, []store.JobStatus{store.JobRunning}, store.JobPaused); terr != nil {
			itemLogger.Warn("pause on throttle failed", logging.Error(terr))
		}
	default:
		item.Status = store.ItemFailed
		item.ErrorMessage = err.Error()
		itemLogger.Warn("item failed", logging.Error(err))
		if nerr := d.notifier.NotifyError(ctx, err, item.SourceRef); nerr != nil {
			itemLogger.Warn("error notification failed", logging.Error(nerr))
		}
	}

	if uerr := d.st.UpdateItem(ctx, item); uerr != nil {
		itemLogger.Warn("item update failed", logging.Error(uerr))
	}
	if rerr := d.st.RecomputeJobCounters(ctx, job.ID); rerr != nil {
		itemLogger.Warn("counter refresh failed", logging.Error(rerr))
	}
	if refreshed, gerr := d.st.GetJob(ctx, job.ID); gerr == nil && refreshed != nil {
		refreshed.Position = item.Position
		if uerr := d.st.UpdateJob(ctx, refreshed); uerr != nil {
			itemLogger.Warn("position update failed", logging.Error(uerr))
		}
	}
}

// pauseBetweenItems sleeps a jittered delay so batch items do not hit the
// remote back to back. The waiting flag is visible in job status output.
// The batch capacity check runs inside the window, with the sleep shortened
// by however long the check took.
func (d *Driver) pauseBetweenItems(ctx context.Context, job *store.TransferJob, logger *slog.Logger) {
	minDelay := time.Duration(job.MinDelay) * time.Second
	maxDelay := time.Duration(job.MaxDelay) * time.Second
	delay := minDelay
	if spread := maxDelay - minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	if delay < 0 {
		delay = 0
	}

	if delay > 0 {
		d.setWaiting(ctx, job.ID, true, logger)
		defer d.setWaiting(ctx, job.ID, false, logger)
	}

	start := time.Now()
	if d.monitor != nil {
		if _, err := d.monitor.CheckAndCleanup(ctx, capacity.TriggerBatch); err != nil {
			logger.Warn("batch capacity check failed", logging.Error(err))
		}
	}
	if remaining := delay - time.Since(start); remaining > 0 {
		d.sleep(ctx, remaining)
	}
}

func (d *Driver) setWaiting(ctx context.Context, jobID int64, waiting bool, logger *slog.Logger) {
	job, err := d.st.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	job.Waiting = waiting
	if err := d.st.UpdateJob(ctx, job); err != nil {
		logger.Warn("waiting flag update failed", logging.Error(err))
	}
}

// settle finishes a two-phase stop once no item is in flight.
func (d *Driver) settle(ctx context.Context, job *store.TransferJob, from, to store.JobStatus, logger *slog.Logger) {
	ok, err := d.st.TransitionJob(ctx, job.ID, []store.JobStatus{from}, to)
	if err != nil {
		logger.Warn("settle failed", logging.Error(err))
		return
	}
	if ok {
		logger.Info("job settled", logging.String("status", string(to)))
	}
}

// complete finishes a job whose pending items are exhausted.
func (d *Driver) complete(ctx context.Context, job *store.TransferJob, logger *slog.Logger) {
	if err := d.st.RecomputeJobCounters(ctx, job.ID); err != nil {
		logger.Warn("final counter refresh failed", logging.Error(err))
	}
	ok, err := d.st.TransitionJob(ctx, job.ID, []store.JobStatus{store.JobRunning}, store.JobCompleted)
	if err != nil {
		logger.Warn("completion failed", logging.Error(err))
		return
	}
	if !ok {
		return
	}

	final, err := d.st.GetJob(ctx, job.ID)
	if err != nil || final == nil {
		return
	}
	logger.Info("job completed",
		logging.Int("succeeded", final.SuccessCount),
		logging.Int("failed", final.FailCount),
	)
	duration := final.UpdatedAt.Sub(final.CreatedAt)
	if err := d.notifier.NotifyJobCompleted(ctx, final.Name, final.SuccessCount, final.FailCount, duration); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (d *Driver) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
