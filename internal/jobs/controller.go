package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"resave/internal/config"
	"resave/internal/logging"
	"resave/internal/store"
)

// ErrJobNotFound is returned for operations on unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a job's current status does not
// allow the requested operation.
var ErrInvalidTransition = errors.New("invalid job transition")

// Controller exposes the job control surface: create, start, pause, cancel,
// delete. It only writes statuses to the store; the Driver picks them up.
type Controller struct {
	cfg    *config.Config
	st     *store.Store
	logger *slog.Logger
}

// NewController builds a controller over the shared store.
func NewController(cfg *config.Config, st *store.Store, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		st:     st,
		logger: logging.NewComponentLogger(logger, "jobs"),
	}
}

// Create registers a job in the wait state. Non-positive delays fall back
// to the configured defaults.
func (c *Controller) Create(ctx context.Context, name string, minDelay, maxDelay int, seeds []store.ItemSeed) (*store.TransferJob, error) {
	if minDelay <= 0 {
		minDelay = c.cfg.Jobs.DefaultMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = c.cfg.Jobs.DefaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	job, err := c.st.CreateJob(ctx, name, minDelay, maxDelay, seeds)
	if err != nil {
		return nil, err
	}
	c.logger.Info("job created",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("name", job.Name),
		logging.Int("items", job.TotalCount),
	)
	return job, nil
}

// Start queues a waiting or paused job for the driver. The skip offset only
// applies to a fresh start; resuming a paused job keeps its item states.
func (c *Controller) Start(ctx context.Context, id int64, skip int) (*store.TransferJob, error) {
	job, err := c.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case store.JobWait:
		if skip > 0 {
			if err := c.st.ApplySkipCount(ctx, id, skip); err != nil {
				return nil, fmt.Errorf("apply skip: %w", err)
			}
		}
	case store.JobPaused:
		// Resume keeps progress; an explicit skip on resume is ignored.
	default:
		return nil, fmt.Errorf("%w: cannot start %s job", ErrInvalidTransition, job.Status)
	}

	ok, err := c.st.TransitionJob(ctx, id, []store.JobStatus{store.JobWait, store.JobPaused}, store.JobQueued)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job changed state concurrently", ErrInvalidTransition)
	}
	c.logger.Info("job queued", logging.Int64(logging.FieldJobID, id), logging.Int("skip", skip))
	return c.getJob(ctx, id)
}

// Pause stops a job after its in-flight item. A running job enters pausing
// until the driver settles it; a queued job pauses immediately. With wait
// set, Pause blocks until the job is actually paused, bounded by the
// configured settle timeout.
func (c *Controller) Pause(ctx context.Context, id int64, wait bool) (*store.TransferJob, error) {
	job, err := c.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case store.JobQueued:
		if _, err := c.st.TransitionJob(ctx, id, []store.JobStatus{store.JobQueued}, store.JobPaused); err != nil {
			return nil, err
		}
		return c.getJob(ctx, id)
	case store.JobRunning:
		ok, err := c.st.TransitionJob(ctx, id, []store.JobStatus{store.JobRunning}, store.JobPausing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: job left running state", ErrInvalidTransition)
		}
	case store.JobPausing, store.JobPaused:
		// Already stopping or stopped.
	default:
		return nil, fmt.Errorf("%w: cannot pause %s job", ErrInvalidTransition, job.Status)
	}

	c.logger.Info("job pausing", logging.Int64(logging.FieldJobID, id))
	if wait {
		return c.waitForSettle(ctx, id, store.JobPaused)
	}
	return c.getJob(ctx, id)
}

// Cancel permanently stops a job. Running jobs settle through cancelling;
// idle jobs cancel immediately.
func (c *Controller) Cancel(ctx context.Context, id int64, wait bool) (*store.TransferJob, error) {
	job, err := c.getJob(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case store.JobWait, store.JobQueued, store.JobPaused:
		if _, err := c.st.TransitionJob(ctx, id, []store.JobStatus{store.JobWait, store.JobQueued, store.JobPaused}, store.JobCancelled); err != nil {
			return nil, err
		}
		return c.getJob(ctx, id)
	case store.JobRunning, store.JobPausing:
		ok, err := c.st.TransitionJob(ctx, id, []store.JobStatus{store.JobRunning, store.JobPausing}, store.JobCancelling)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: job changed state concurrently", ErrInvalidTransition)
		}
	case store.JobCancelling, store.JobCancelled:
		// Already stopping or stopped.
	case store.JobCompleted:
		return nil, fmt.Errorf("%w: job already completed", ErrInvalidTransition)
	}

	c.logger.Info("job cancelling", logging.Int64(logging.FieldJobID, id))
	if wait {
		return c.waitForSettle(ctx, id, store.JobCancelled)
	}
	return c.getJob(ctx, id)
}

// Delete removes an inactive job and its items.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	job, err := c.getJob(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case store.JobWait, store.JobPaused, store.JobCancelled, store.JobCompleted:
	default:
		return fmt.Errorf("%w: cannot delete %s job, stop it first", ErrInvalidTransition, job.Status)
	}

	ok, err := c.st.DeleteJob(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotFound
	}
	c.logger.Info("job deleted", logging.Int64(logging.FieldJobID, id))
	return nil
}

// Status fetches a job together with its per-item breakdown.
func (c *Controller) Status(ctx context.Context, id int64) (*store.TransferJob, []*store.TransferItem, error) {
	job, err := c.getJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := c.st.ItemsForJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return job, items, nil
}

// List returns all jobs.
func (c *Controller) List(ctx context.Context) ([]*store.TransferJob, error) {
	return c.st.ListJobs(ctx)
}

func (c *Controller) getJob(ctx context.Context, id int64) (*store.TransferJob, error) {
	job, err := c.st.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	return job, nil
}

// waitForSettle polls until the job reaches the target status or the settle
// timeout lapses. The driver finishes the in-flight item first, so this can
// legitimately take as long as one transfer.
func (c *Controller) waitForSettle(ctx context.Context, id int64, target store.JobStatus) (*store.TransferJob, error) {
	timeout := time.Duration(c.cfg.Jobs.PauseSettleTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := c.getJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == target || job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-deadline.C:
			return job, fmt.Errorf("job %d did not settle to %s within %s", id, target, timeout)
		case <-ticker.C:
		}
	}
}
