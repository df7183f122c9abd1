// Package capacity watches account storage and clears the managed directory
// when transfers would no longer fit.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/logging"
	"resave/internal/opqueue"
)

// ErrInsufficientSpace is returned when a transfer cannot fit even after a
// cleanup.
var ErrInsufficientSpace = errors.New("insufficient storage for transfer")

// Trigger identifies why a cleanup check runs.
type Trigger string

const (
	// TriggerManual is an operator-requested check.
	TriggerManual Trigger = "manual"
	// TriggerScheduled is a periodic background check. It yields to
	// transfer work.
	TriggerScheduled Trigger = "scheduled"
	// TriggerBatch is the pre-item check during a batch job. Without a
	// configured threshold it falls back to a free-space floor.
	TriggerBatch Trigger = "batch"
)

// Monitor owns the managed directory and decides when to reclaim space.
// All mutating remote calls go through the operation queue.
type Monitor struct {
	cfg    *config.Config
	remote drive.Service
	queue  *opqueue.Queue
	logger *slog.Logger

	mu    sync.Mutex
	dirID string
}

// NewMonitor constructs a monitor over the configured managed directory.
func NewMonitor(cfg *config.Config, remote drive.Service, queue *opqueue.Queue, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		remote: remote,
		queue:  queue,
		logger: logging.NewComponentLogger(logger, "capacity"),
	}
}

// ManagedDirID resolves and caches the managed directory's folder id,
// creating the path on first use.
func (m *Monitor) ManagedDirID(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.dirID
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var id string
	err := m.queue.Do(ctx, "ensure managed dir", func(opCtx context.Context) error {
		var err error
		id, err = m.ensureDir(opCtx)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ensureDir resolves the managed directory with a direct remote call and
// caches the id.
func (m *Monitor) ensureDir(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.dirID
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	id, err := m.remote.EnsureFolder(ctx, m.cfg.Provider.ManagedDir)
	if err != nil {
		return "", fmt.Errorf("ensure managed dir %s: %w", m.cfg.Provider.ManagedDir, err)
	}
	m.mu.Lock()
	m.dirID = id
	m.mu.Unlock()
	return id, nil
}

// Stats reports current account usage.
func (m *Monitor) Stats(ctx context.Context) (drive.SpaceInfo, error) {
	info, err := m.remote.SpaceInfo(ctx)
	if err != nil {
		return drive.SpaceInfo{}, fmt.Errorf("space info: %w", err)
	}
	return info, nil
}

// UtilizationExceeds reports whether used/total is above the given ratio.
func (m *Monitor) UtilizationExceeds(ctx context.Context, ratio float64) (bool, error) {
	info, err := m.Stats(ctx)
	if err != nil {
		return false, err
	}
	if info.TotalBytes <= 0 {
		return false, nil
	}
	return float64(info.UsedBytes)/float64(info.TotalBytes) > ratio, nil
}

// EnsureCapacity makes room for a transfer of the given size. It cleans up
// when usage is over the configured threshold or when the transfer would
// not fit, and fails with ErrInsufficientSpace if it still does not fit.
func (m *Monitor) EnsureCapacity(ctx context.Context, pendingCount int, pendingBytes int64) error {
	info, err := m.Stats(ctx)
	if err != nil {
		return err
	}

	needsCleanup := m.overThreshold(info) || !fits(info, pendingBytes)
	if !needsCleanup {
		return nil
	}

	m.logger.Info("reclaiming space before transfer",
		logging.Int("pending_items", pendingCount),
		logging.Int64("pending_bytes", pendingBytes),
		logging.Int64("used_bytes", info.UsedBytes),
		logging.Int64("total_bytes", info.TotalBytes),
	)
	if err := m.Cleanup(ctx); err != nil {
		return err
	}

	info, err = m.Stats(ctx)
	if err != nil {
		return err
	}
	if !fits(info, pendingBytes) {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, pendingBytes, info.TotalBytes-info.UsedBytes)
	}
	return nil
}

// CheckAndCleanup evaluates the trigger's condition and cleans up when it
// holds. It reports whether a cleanup ran.
func (m *Monitor) CheckAndCleanup(ctx context.Context, trigger Trigger) (bool, error) {
	if trigger == TriggerScheduled && m.queue.Busy() {
		m.logger.Debug("skipping scheduled cleanup, operation queue busy")
		return false, nil
	}

	info, err := m.Stats(ctx)
	if err != nil {
		return false, err
	}

	trip := m.overThreshold(info)
	if !trip && trigger == TriggerBatch && m.cfg.Capacity.CleanupThresholdBytes <= 0 {
		trip = freeRatio(info) < m.cfg.Capacity.BatchFreeFloor
	}
	if !trip {
		return false, nil
	}

	m.logger.Info("storage check tripped, cleaning up",
		logging.String("trigger", string(trigger)),
		logging.Int64("used_bytes", info.UsedBytes),
		logging.Int64("total_bytes", info.TotalBytes),
	)
	if err := m.Cleanup(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Cleanup deletes everything inside the managed directory and empties the
// recycle bin so the space is actually reclaimed. The whole sweep runs as
// one queued operation.
func (m *Monitor) Cleanup(ctx context.Context) error {
	return m.queue.Do(ctx, "reclaim storage", m.Reclaim)
}

// Reclaim is the body of Cleanup: it clears the managed directory and the
// recycle bin with direct remote calls. Callers already executing inside a
// queued operation use it to reclaim space without deadlocking the
// consumer; everyone else goes through Cleanup.
func (m *Monitor) Reclaim(ctx context.Context) error {
	dirID, err := m.ensureDir(ctx)
	if err != nil {
		return err
	}

	items, err := m.remote.ListFolder(ctx, dirID)
	if err != nil {
		return fmt.Errorf("list managed dir: %w", err)
	}
	if len(items) > 0 {
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		if err := m.remote.DeleteItems(ctx, ids); err != nil {
			return fmt.Errorf("delete managed dir contents: %w", err)
		}
	}

	if err := m.purgeTrash(ctx); err != nil {
		return err
	}

	m.logger.Info("managed directory cleaned", logging.Int("deleted_items", len(items)))
	return nil
}

// EmptyTrash purges the recycle bin without touching the managed directory.
func (m *Monitor) EmptyTrash(ctx context.Context) error {
	return m.queue.Do(ctx, "empty trash", m.purgeTrash)
}

func (m *Monitor) purgeTrash(ctx context.Context) error {
	if err := m.remote.EmptyTrash(ctx, m.cfg.Provider.RecyclePassword); err != nil {
		return fmt.Errorf("empty trash: %w", err)
	}
	return nil
}

func (m *Monitor) overThreshold(info drive.SpaceInfo) bool {
	threshold := m.cfg.Capacity.CleanupThresholdBytes
	return threshold > 0 && info.UsedBytes > threshold
}

func fits(info drive.SpaceInfo, pendingBytes int64) bool {
	return info.UsedBytes+pendingBytes <= info.TotalBytes
}

func freeRatio(info drive.SpaceInfo) float64 {
	if info.TotalBytes <= 0 {
		return 0
	}
	return float64(info.TotalBytes-info.UsedBytes) / float64(info.TotalBytes)
}
