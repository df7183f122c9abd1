package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/logging"
	"resave/internal/notify"
	"resave/internal/opqueue"
	"resave/internal/store"
)

// Request describes one share to re-save and republish.
type Request struct {
	SourceRef  string
	AccessCode string
	Title      string
}

// Outcome is the result of a processed request. Exactly one of Links or
// Pending is meaningful.
type Outcome struct {
	// Links are the published durable links, in publish order.
	Links []string
	// Reused is true when the links came from history without touching the
	// remote.
	Reused bool
	// Pending is true when the share is parked awaiting remote readiness.
	Pending bool
	// PendingStatus classifies why the share is parked.
	PendingStatus store.PendingStatus
}

// pendingMetadata is what the long-poll worker needs to resume a parked
// transfer.
type pendingMetadata struct {
	Title      string `json:"title,omitempty"`
	AccessCode string `json:"access_code,omitempty"`
}

// Processor runs the full re-save pipeline for a single share: probe,
// capacity check, receive (partitioned when oversized), stabilize, publish,
// extend, record. The receive-through-publish sequence executes as one
// queued operation, so the queue stays busy for the pipeline's whole
// duration and no other mutation can interleave with it.
type Processor struct {
	cfg         *config.Config
	st          *store.Store
	remote      drive.Service
	retrier     *drive.Retrier
	queue       *opqueue.Queue
	monitor     *capacity.Monitor
	stabilizer  *Stabilizer
	partitioner *Partitioner
	throttle    *Throttle
	notifier    notify.Service
	logger      *slog.Logger
}

// NewProcessor wires the pipeline from its parts.
func NewProcessor(
	cfg *config.Config,
	st *store.Store,
	remote drive.Service,
	retrier *drive.Retrier,
	queue *opqueue.Queue,
	monitor *capacity.Monitor,
	throttle *Throttle,
	notifier notify.Service,
	logger *slog.Logger,
) *Processor {
	if notifier == nil {
		notifier = notify.NewNop()
	}
	return &Processor{
		cfg:     cfg,
		st:      st,
		remote:  remote,
		retrier: retrier,
		queue:   queue,
		monitor: monitor,
		stabilizer: NewStabilizer(
			remote,
			cfg.Transfer.StabilizeAttempts,
			time.Duration(cfg.Transfer.StabilizeInterval)*time.Second,
			logger,
		),
		partitioner: NewPartitioner(
			remote,
			cfg.Transfer.ReceiveBatchSize,
			cfg.Transfer.CheckpointFiles,
			time.Duration(cfg.Transfer.BatchPauseMin)*time.Second,
			time.Duration(cfg.Transfer.BatchPauseMax)*time.Second,
			logger,
		),
		throttle: throttle,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "processor"),
	}
}

// Process runs the pipeline for one request. A repeated source reference
// resolves from history without remote calls. A share the remote is still
// auditing or snapshotting is parked as a pending transfer rather than
// failed.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	outcome, err := p.process(ctx, req)
	if err != nil && p.throttle != nil && isThrottleTrip(err) {
		p.throttle.Trip()
		p.logger.Warn("remote throttling detected, cooldown started",
			logging.String(logging.FieldSourceRef, req.SourceRef),
		)
	}
	return outcome, err
}

func (p *Processor) process(ctx context.Context, req Request) (*Outcome, error) {
	ref, err := drive.ParseRef(req.SourceRef, req.AccessCode)
	if err != nil {
		return nil, Wrap(ErrValidation, "probe", "parse share url", "", err)
	}
	logger := p.logger.With(logging.String(logging.FieldSourceRef, req.SourceRef))

	if record, err := p.st.HistoryBySourceRef(ctx, req.SourceRef); err != nil {
		return nil, Wrap(ErrTransient, "history", "lookup", "", err)
	} else if record != nil {
		logger.Info("reusing links from history", logging.Int("links", len(record.Links)))
		return &Outcome{Links: record.Links, Reused: true}, nil
	}

	if p.throttle != nil && p.throttle.Active() {
		// New attempts park for the poller instead of hammering the remote.
		outcome, perr := p.park(ctx, req, store.PendingRestricted, logger)
		if perr == nil {
			return outcome, nil
		}
		return nil, Wrap(ErrThrottled, "probe", "throttle gate",
			fmt.Sprintf("cooldown for another %s", p.throttle.Remaining().Round(time.Second)), nil)
	}

	snap, err := p.probe(ctx, ref)
	if err != nil {
		return nil, err
	}
	if snap.State.Terminal() {
		return nil, terminalError(snap.State)
	}
	if snap.State.Pending() {
		status := store.PendingAuditing
		if snap.State == drive.StateSnapshotting {
			status = store.PendingSnapshotting
		}
		logger.Info("share parked pending remote readiness", logging.String("state", string(snap.State)))
		return p.park(ctx, req, status, logger)
	}

	if err := p.monitor.EnsureCapacity(ctx, snap.FileCount, snap.TotalSize); err != nil {
		return nil, Classify("capacity", "ensure", err)
	}
	parentID, err := p.monitor.ManagedDirID(ctx)
	if err != nil {
		return nil, Classify("receive", "managed dir", err)
	}

	var links []string
	var received int
	err = p.queue.Do(ctx, "transfer pipeline", func(opCtx context.Context) error {
		var err error
		links, received, err = p.transfer(opCtx, req, ref, snap, parentID, logger)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotVisible) {
			// Content was received but the listing never surfaced; park
			// for the poller instead of failing the item.
			logger.Info("received content not yet listed, parking")
			return p.park(ctx, req, store.PendingUnlisted, logger)
		}
		return nil, err
	}

	if err := p.st.RecordHistory(ctx, req.SourceRef, links); err != nil {
		return nil, Wrap(ErrTransient, "record", "history", "", err)
	}
	if err := p.notifier.NotifyLinkPublished(ctx, req.SourceRef, links, req.Title); err != nil {
		logger.Warn("link notification failed", logging.Error(err))
	}
	logger.Info("share re-published",
		logging.Int("files", received),
		logging.Int("links", len(links)),
	)
	return &Outcome{Links: links}, nil
}

// transfer is the body of the pipeline's single queued operation: create
// the work folder, receive the content, wait for the listing, publish and
// extend. Every remote call in here executes directly; queueing any of
// them would deadlock the consumer.
func (p *Processor) transfer(ctx context.Context, req Request, ref drive.ShareRef, snap *drive.Snapshot, parentID string, logger *slog.Logger) ([]string, int, error) {
	destID, err := p.createWorkFolder(ctx, parentID, ref.ShareCode)
	if err != nil {
		return nil, 0, err
	}

	finalDest := destID
	var checkpointLinks []string
	received := 0

	runPartition := func() error {
		var perr error
		received, finalDest, checkpointLinks, perr = p.partition(ctx, req, ref, snap, destID, parentID, logger)
		return perr
	}

	if snap.FileCount > p.cfg.Transfer.ReceiveBatchSize {
		if err := runPartition(); err != nil {
			return nil, received, err
		}
	} else {
		ids := make([]string, 0, len(snap.Items))
		for _, item := range snap.Items {
			ids = append(ids, item.ID)
		}
		err = p.retrier.Do(ctx, "receive", func(callCtx context.Context) error {
			return p.remote.Receive(callCtx, ref, ids, destID)
		})
		switch {
		case err == nil:
			received = snap.FileCount
		case drive.IsDuplicateReceive(err):
			finalDest, received, err = p.salvageDuplicate(ctx, ref, snap, destID, parentID, logger)
			if err != nil {
				return nil, 0, err
			}
		case drive.IsReceiveLimit(err):
			logger.Info("share over per-call ceiling, partitioning",
				logging.Int("files", snap.FileCount),
			)
			if err := runPartition(); err != nil {
				return nil, received, err
			}
		default:
			return nil, 0, Classify("receive", "receive share", err)
		}
	}

	expect := snap.FileCount
	if len(checkpointLinks) > 0 {
		// Checkpoints published part of the content away, so the final
		// listing is smaller than the share.
		expect = 0
	}
	items, err := p.stabilizer.WaitForListing(ctx, finalDest, expect)
	if err != nil {
		return nil, received, err
	}

	published, err := p.publish(ctx, items, logger)
	if err != nil {
		return nil, received, err
	}
	return append(checkpointLinks, published...), received, nil
}

// probe fetches the share snapshot under the retry budget.
func (p *Processor) probe(ctx context.Context, ref drive.ShareRef) (*drive.Snapshot, error) {
	var snap *drive.Snapshot
	err := p.retrier.Do(ctx, "snapshot", func(opCtx context.Context) error {
		var err error
		snap, err = p.remote.Snapshot(opCtx, ref)
		return err
	})
	if err != nil {
		return nil, Classify("probe", "snapshot", err)
	}
	return snap, nil
}

func terminalError(state drive.ShareState) error {
	marker := ErrShareGone
	if state == drive.StateProhibited {
		marker = ErrShareRestricted
	}
	return Wrap(marker, "probe", "share state", string(state), nil)
}

// park records the share as a pending transfer for the long-poll worker.
func (p *Processor) park(ctx context.Context, req Request, status store.PendingStatus, logger *slog.Logger) (*Outcome, error) {
	metadata, err := json.Marshal(pendingMetadata{Title: req.Title, AccessCode: req.AccessCode})
	if err != nil {
		return nil, Wrap(ErrTransient, "park", "encode metadata", "", err)
	}
	if _, err := p.st.CreatePending(ctx, req.SourceRef, string(metadata), status); err != nil {
		return nil, Wrap(ErrTransient, "park", "create pending", "", err)
	}
	logger.Info("share parked as pending transfer", logging.String("status", string(status)))
	return &Outcome{Pending: true, PendingStatus: status}, nil
}

// salvageDuplicate handles the remote claiming the share was already
// received. Content already in the working folder counts as success; an
// empty folder gets one retry into a sibling.
func (p *Processor) salvageDuplicate(ctx context.Context, ref drive.ShareRef, snap *drive.Snapshot, destID, parentID string, logger *slog.Logger) (string, int, error) {
	items, err := p.remote.ListFolder(ctx, destID)
	if err != nil {
		return "", 0, Classify("receive", "inspect duplicate", err)
	}
	if len(items) > 0 {
		logger.Info("duplicate receive already materialized", logging.Int("items", len(items)))
		return destID, snap.FileCount, nil
	}

	siblingID, err := p.createWorkFolder(ctx, parentID, ref.ShareCode+"-retry")
	if err != nil {
		return "", 0, err
	}
	ids := make([]string, 0, len(snap.Items))
	for _, item := range snap.Items {
		ids = append(ids, item.ID)
	}
	if err := p.remote.Receive(ctx, ref, ids, siblingID); err != nil {
		return "", 0, Classify("receive", "sibling retry", err)
	}
	return siblingID, snap.FileCount, nil
}

// partition receives an oversized share piecewise. The checkpoint publishes
// and records the accumulated content, reclaims the managed directory, and
// continues into a fresh part folder. It returns the count received, the
// folder holding the final part, and the links from intermediate
// publishes.
func (p *Processor) partition(ctx context.Context, req Request, ref drive.ShareRef, snap *drive.Snapshot, destID, parentID string, logger *slog.Logger) (int, string, []string, error) {
	part := 1
	var links []string
	checkpoint := func(cpCtx context.Context, currentDest string) (string, error) {
		items, err := p.stabilizer.WaitForListing(cpCtx, currentDest, 0)
		if err != nil {
			return "", err
		}
		published, err := p.publish(cpCtx, items, logger)
		if err != nil {
			return "", err
		}
		links = append(links, published...)
		logger.Info("intermediate publish during partition",
			logging.Int("part", part),
			logging.Int("links", len(published)),
		)
		// The links must outlive the cleanup that follows.
		if err := p.st.RecordHistory(cpCtx, req.SourceRef, links); err != nil {
			return "", Wrap(ErrTransient, "record", "checkpoint history", "", err)
		}
		if err := p.monitor.Reclaim(cpCtx); err != nil {
			return "", err
		}
		part++
		return p.createWorkFolder(cpCtx, parentID, fmt.Sprintf("%s-part%d", ref.ShareCode, part))
	}
	overUtilized := func(cpCtx context.Context) (bool, error) {
		return p.monitor.UtilizationExceeds(cpCtx, p.cfg.Capacity.CheckpointUtilization)
	}

	received, finalDest, err := p.partitioner.Transfer(ctx, ref, snap.Items, destID, checkpoint, overUtilized)
	return received, finalDest, links, err
}

// createWorkFolder creates a per-transfer folder inside the managed
// directory with a direct remote call.
func (p *Processor) createWorkFolder(ctx context.Context, parentID, name string) (string, error) {
	id, err := p.remote.CreateFolder(ctx, parentID, name)
	if err != nil {
		return "", Classify("receive", "create work folder", err)
	}
	return id, nil
}

// publish shares the given items in splits under the per-share ceiling,
// extends each split to a permanent share, and returns the links.
func (p *Processor) publish(ctx context.Context, items []drive.Item, logger *slog.Logger) ([]string, error) {
	if len(items) == 0 {
		return nil, Wrap(ErrTransient, "publish", "empty listing", "nothing to publish", nil)
	}

	limit := p.cfg.Transfer.ShareSplitLimit
	if limit <= 0 {
		limit = len(items)
	}
	var links []string
	for start := 0; start < len(items); start += limit {
		end := start + limit
		if end > len(items) {
			end = len(items)
		}
		ids := make([]string, 0, end-start)
		for _, item := range items[start:end] {
			ids = append(ids, item.ID)
		}

		var share *drive.Share
		err := p.retrier.Do(ctx, "publish", func(callCtx context.Context) error {
			var err error
			share, err = p.remote.Publish(callCtx, ids)
			return err
		})
		if err != nil {
			return nil, Classify("publish", "create share", err)
		}

		if err := p.remote.ExtendToPermanent(ctx, share.ShareCode); err != nil {
			return nil, Classify("publish", "extend share", err)
		}
		links = append(links, drive.ShareRef{ShareCode: share.ShareCode, ReceiveCode: share.ReceiveCode}.String())
	}
	return links, nil
}

func isThrottleTrip(err error) bool {
	return drive.IsThrottled(err) || errors.Is(err, ErrThrottled)
}
