package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"resave/internal/api"
	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/jobs"
	"resave/internal/logging"
	"resave/internal/notify"
	"resave/internal/opqueue"
	"resave/internal/store"
	"resave/internal/transfer"
)

// Daemon owns the background transfer engine and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	st       *store.Store
	remote   drive.Service
	queue    *opqueue.Queue
	monitor  *capacity.Monitor
	throttle *transfer.Throttle
	notifier notify.Service
	driver   *jobs.Driver
	pending  *transfer.PendingWorker
	service  *api.TransferService
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the daemon and its engine. A nil remote selects the real HTTP
// client; tests inject a fake.
func New(cfg *config.Config, logger *slog.Logger, remote drive.Service) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if remote == nil {
		remote = drive.NewHTTPService(cfg, nil)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	queue := opqueue.New(logger)
	monitor := capacity.NewMonitor(cfg, remote, queue, logger)
	throttle := transfer.NewThrottle(time.Duration(cfg.Transfer.ThrottleCooldown) * time.Second)
	notifier := notify.NewService(cfg)
	retrier := drive.NewRetrier(
		time.Duration(cfg.Provider.RequestTimeout)*time.Second,
		cfg.Provider.RetryAttempts,
		time.Duration(cfg.Provider.RetryDelay)*time.Second,
		logger,
	)
	processor := transfer.NewProcessor(cfg, st, remote, retrier, queue, monitor, throttle, notifier, logger)
	controller := jobs.NewController(cfg, st, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		st:       st,
		remote:   remote,
		queue:    queue,
		monitor:  monitor,
		throttle: throttle,
		notifier: notifier,
		driver:   jobs.NewDriver(cfg, st, processor, monitor, throttle, notifier, logger),
		pending:  transfer.NewPendingWorker(cfg, st, remote, retrier, processor, notifier, logger),
		service:  api.NewTransferService(st, controller, processor, monitor, throttle),
		lockPath: filepath.Join(cfg.LogDir, "resaved.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}

// Service exposes the facade the CLI and HTTP layers consume.
func (d *Daemon) Service() *api.TransferService {
	return d.service
}

// APIAddr returns the bound status-endpoint address, or empty when the
// server is disabled or not yet listening.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Start acquires the instance lock, recovers interrupted work, and launches
// the engine goroutines.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another resave daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	jobsReset, itemsReset, err := d.st.RecoverInterrupted(runCtx)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted work: %w", err)
	}
	if jobsReset > 0 || itemsReset > 0 {
		d.logger.Info("recovered interrupted work",
			logging.Int64("jobs_reset", jobsReset),
			logging.Int64("items_reset", itemsReset),
		)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.queue.Run(runCtx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.pending.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("pending worker stopped", logging.Error(err))
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.cleanupLoop(runCtx)
	}()

	if err := d.driver.Start(runCtx); err != nil {
		cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return fmt.Errorf("start job driver: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.driver.Stop()
		cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("resave daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts the engine down and releases the instance lock. The driver
// finishes its in-flight item within the configured shutdown wait.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.driver.Stop()

	// The driver persists jobs as running while they execute. Park them
	// now rather than leaving stale state for the next startup recovery.
	jobsReset, itemsReset, err := d.st.RecoverInterrupted(context.Background())
	if err != nil {
		d.logger.Warn("failed to park interrupted work", logging.Error(err))
	} else if jobsReset > 0 || itemsReset > 0 {
		d.logger.Info("parked interrupted work on shutdown",
			logging.Int64("jobs_reset", jobsReset),
			logging.Int64("items_reset", itemsReset),
		)
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("resave daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.st != nil {
		return d.st.Close()
	}
	return nil
}

// Status reports daemon runtime information. Capacity is omitted when the
// remote cannot be reached.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.st.Path(),
		LockFilePath: d.lockPath,
		Throttle:     api.FromThrottle(d.throttle),
	}
	if job, err := d.st.JobByStatus(ctx, store.JobRunning, store.JobPausing, store.JobCancelling); err == nil && job != nil {
		view := api.FromJob(job)
		status.ActiveJob = &view
	}
	if parked, err := d.st.ListPending(ctx); err == nil {
		status.PendingCount = len(parked)
	}
	if status.Running {
		if info, err := d.monitor.Stats(ctx); err == nil {
			view := api.FromSpace(info)
			status.Capacity = &view
		}
	}
	return status
}

// cleanupLoop runs the scheduled managed-directory and trash cleanups. A
// non-positive interval disables the corresponding ticker. Both cleanups
// sit out an active throttle cooldown.
func (d *Daemon) cleanupLoop(ctx context.Context) {
	dirTick, trashTick := tickerChannel(d.cfg.Capacity.DirCleanupInterval), tickerChannel(d.cfg.Capacity.TrashCleanupInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirTick:
			if d.throttle.Active() {
				continue
			}
			ran, err := d.monitor.CheckAndCleanup(ctx, capacity.TriggerScheduled)
			if err != nil && ctx.Err() == nil {
				d.logger.Warn("scheduled cleanup failed", logging.Error(err))
			} else if ran {
				d.logger.Info("scheduled cleanup reclaimed managed directory")
			}
		case <-trashTick:
			if d.queue.Busy() || d.throttle.Active() {
				continue
			}
			if err := d.monitor.EmptyTrash(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("scheduled trash purge failed", logging.Error(err))
			}
		}
	}
}

// tickerChannel returns a ticking channel, or a never-firing one for
// disabled intervals. The ticker is intentionally never stopped: it lives
// for the daemon's lifetime.
func tickerChannel(intervalSeconds int) <-chan time.Time {
	if intervalSeconds <= 0 {
		return nil
	}
	return time.NewTicker(time.Duration(intervalSeconds) * time.Second).C
}
