package transfer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/logging"
	"resave/internal/notify"
	"resave/internal/store"
)

// PendingWorker re-probes parked transfers until the remote finishes
// auditing or snapshotting them, then runs the full pipeline. A share that
// stays pending past the attempt budget is abandoned.
type PendingWorker struct {
	cfg         *config.Config
	st          *store.Store
	remote      drive.Service
	retrier     *drive.Retrier
	processor   *Processor
	notifier    notify.Service
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewPendingWorker wires the worker from the processor's collaborators.
func NewPendingWorker(cfg *config.Config, st *store.Store, remote drive.Service, retrier *drive.Retrier, processor *Processor, notifier notify.Service, logger *slog.Logger) *PendingWorker {
	if notifier == nil {
		notifier = notify.NewNop()
	}
	interval := time.Duration(cfg.Transfer.PendingPollInterval) * time.Second
	maxAttempts := cfg.Transfer.PendingPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = 36
	}
	return &PendingWorker{
		cfg:         cfg,
		st:          st,
		remote:      remote,
		retrier:     retrier,
		processor:   processor,
		notifier:    notifier,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logging.NewComponentLogger(logger, "pending"),
	}
}

// Run sweeps the pending table on the configured cadence until ctx ends.
func (w *PendingWorker) Run(ctx context.Context) error {
	interval := w.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Warn("pending sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep checks every parked transfer once and returns how many resolved.
// Sweeps sit out an active throttle cooldown.
func (w *PendingWorker) Sweep(ctx context.Context) (int, error) {
	if w.processor != nil && w.processor.throttle != nil && w.processor.throttle.Active() {
		w.logger.Debug("sweep skipped, throttle cooldown active")
		return 0, nil
	}
	rows, err := w.st.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if w.checkOne(ctx, row) {
			resolved++
		}
	}
	return resolved, nil
}

// checkOne advances one parked transfer and reports whether it left the
// pending table.
func (w *PendingWorker) checkOne(ctx context.Context, row *store.PendingTransfer) bool {
	logger := w.logger.With(logging.String(logging.FieldSourceRef, row.SourceRef))

	if row.Attempts >= w.maxAttempts {
		logger.Warn("abandoning pending transfer, poll budget spent",
			logging.Int("attempts", row.Attempts),
		)
		w.drop(ctx, row, logger)
		if err := w.notifier.NotifyError(ctx, Wrap(ErrSharePending, "pending", "poll budget spent", row.SourceRef, nil), "pending transfer"); err != nil {
			logger.Warn("pending notification failed", logging.Error(err))
		}
		return true
	}

	var meta pendingMetadata
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			logger.Warn("dropping pending transfer with unreadable metadata", logging.Error(err))
			w.drop(ctx, row, logger)
			return true
		}
	}

	ref, err := drive.ParseRef(row.SourceRef, meta.AccessCode)
	if err != nil {
		logger.Warn("dropping pending transfer with unparsable link", logging.Error(err))
		w.drop(ctx, row, logger)
		return true
	}

	var snap *drive.Snapshot
	err = w.retrier.Do(ctx, "pending snapshot", func(opCtx context.Context) error {
		var err error
		snap, err = w.remote.Snapshot(opCtx, ref)
		return err
	})
	if err != nil {
		logger.Debug("pending probe failed, will retry", logging.Error(err))
		w.touch(ctx, row, logger)
		return false
	}

	switch {
	case snap.State.Pending():
		logger.Debug("share still pending",
			logging.String("state", string(snap.State)),
			logging.Int("attempts", row.Attempts+1),
		)
		w.touch(ctx, row, logger)
		return false
	case snap.State.Terminal():
		logger.Info("pending share reached terminal state", logging.String("state", string(snap.State)))
		w.drop(ctx, row, logger)
		if err := w.notifier.NotifyError(ctx, terminalError(snap.State), "pending transfer"); err != nil {
			logger.Warn("pending notification failed", logging.Error(err))
		}
		return true
	}

	outcome, err := w.processor.Process(ctx, Request{
		SourceRef:  row.SourceRef,
		AccessCode: meta.AccessCode,
		Title:      meta.Title,
	})
	if err != nil {
		if Permanent(err) {
			logger.Warn("pending transfer failed permanently", logging.Error(err))
			w.drop(ctx, row, logger)
			return true
		}
		logger.Warn("pending transfer still failing, will retry", logging.Error(err))
		w.touch(ctx, row, logger)
		return false
	}

	logger.Info("pending transfer resolved",
		logging.Int("links", len(outcome.Links)),
		logging.Bool("reparked", outcome.Pending),
	)
	w.drop(ctx, row, logger)
	return true
}

func (w *PendingWorker) touch(ctx context.Context, row *store.PendingTransfer, logger *slog.Logger) {
	if err := w.st.TouchPending(ctx, row.ID); err != nil {
		logger.Warn("touch pending failed", logging.Error(err))
	}
}

func (w *PendingWorker) drop(ctx context.Context, row *store.PendingTransfer, logger *slog.Logger) {
	if _, err := w.st.DeletePending(ctx, row.ID); err != nil {
		logger.Warn("delete pending failed", logging.Error(err))
	}
}
