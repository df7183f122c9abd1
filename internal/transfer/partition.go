package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"resave/internal/drive"
	"resave/internal/logging"
)

// CheckpointFunc publishes and clears the current destination mid-transfer
// and returns the fresh destination folder id to continue into.
type CheckpointFunc func(ctx context.Context, currentDest string) (string, error)

// UtilizationFunc reports whether storage utilization has crossed the
// checkpoint ratio.
type UtilizationFunc func(ctx context.Context) (bool, error)

// Partitioner receives an oversized share piecewise. It walks the share
// tree depth-first, batching files under the per-call ceiling, mirroring
// folders into the destination, and checkpointing when the accumulated file
// count or storage utilization demands an intermediate publish.
//
// The partitioner runs inside the pipeline's queued operation, so its
// remote calls execute directly.
type Partitioner struct {
	remote          drive.Service
	batchSize       int
	checkpointFiles int
	pauseMin        time.Duration
	pauseMax        time.Duration
	logger          *slog.Logger
}

// NewPartitioner builds a partitioner. Non-positive limits fall back to a
// 500-item batch and a 10000-file checkpoint.
func NewPartitioner(remote drive.Service, batchSize, checkpointFiles int, pauseMin, pauseMax time.Duration, logger *slog.Logger) *Partitioner {
	if batchSize <= 0 {
		batchSize = 500
	}
	if checkpointFiles <= 0 {
		checkpointFiles = 10000
	}
	if pauseMax < pauseMin {
		pauseMax = pauseMin
	}
	return &Partitioner{
		remote:          remote,
		batchSize:       batchSize,
		checkpointFiles: checkpointFiles,
		pauseMin:        pauseMin,
		pauseMax:        pauseMax,
		logger:          logging.NewComponentLogger(logger, "partitioner"),
	}
}

// Transfer receives the given share items into destID and returns the
// number of files received plus the destination holding the final part.
// After a checkpoint the final destination differs from destID; content
// received into earlier destinations has already been published by the
// checkpoint. checkpoint may be invoked any number of times, including
// zero.
func (p *Partitioner) Transfer(ctx context.Context, ref drive.ShareRef, items []drive.Item, destID string, checkpoint CheckpointFunc, overUtilized UtilizationFunc) (int, string, error) {
	run := &partitionRun{
		p:            p,
		ref:          ref,
		destRoot:     destID,
		checkpoint:   checkpoint,
		overUtilized: overUtilized,
		dests:        map[string]string{"": destID},
	}
	if err := run.walk(ctx, items, nil); err != nil {
		return run.received, run.destRoot, err
	}
	return run.received, run.destRoot, nil
}

type partitionRun struct {
	p            *Partitioner
	ref          drive.ShareRef
	destRoot     string
	checkpoint   CheckpointFunc
	overUtilized UtilizationFunc

	// dests caches destination folder ids by share-relative path. The
	// cache is dropped wholesale after a checkpoint clears the destination.
	dests map[string]string

	received        int
	sinceCheckpoint int
}

func (r *partitionRun) walk(ctx context.Context, items []drive.Item, path []string) error {
	var files []drive.Item
	var dirs []drive.Item
	for _, item := range items {
		if item.IsDir {
			dirs = append(dirs, item)
		} else {
			files = append(files, item)
		}
	}

	for start := 0; start < len(files); start += r.p.batchSize {
		end := start + r.p.batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		dest, err := r.destFor(ctx, path)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(batch))
		for _, file := range batch {
			ids = append(ids, file.ID)
		}
		err = r.p.remote.Receive(ctx, r.ref, ids, dest)
		if err != nil && !drive.IsDuplicateReceive(err) {
			return Classify("partition", "receive batch", err)
		}
		r.received += len(batch)
		r.sinceCheckpoint += len(batch)
		r.p.logger.Debug("batch received",
			logging.String("path", "/"+strings.Join(path, "/")),
			logging.Int("batch_files", len(batch)),
			logging.Int("received_total", r.received),
		)

		if err := r.maybeCheckpoint(ctx); err != nil {
			return err
		}
		if end < len(files) || len(dirs) > 0 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}
	}

	for _, dir := range dirs {
		children, err := r.p.remote.ListShareDir(ctx, r.ref, dir.ID)
		if err != nil {
			return Classify("partition", "list share dir", err)
		}
		if err := r.walk(ctx, children, append(path, dir.Name)); err != nil {
			return err
		}
	}
	return nil
}

// destFor resolves the destination folder for a share-relative path,
// mirroring missing folders on demand.
func (r *partitionRun) destFor(ctx context.Context, path []string) (string, error) {
	key := strings.Join(path, "/")
	if id, ok := r.dests[key]; ok {
		return id, nil
	}

	parentID, err := r.destFor(ctx, path[:len(path)-1])
	if err != nil {
		return "", err
	}
	name := path[len(path)-1]

	id, err := r.p.remote.CreateFolder(ctx, parentID, name)
	if err != nil {
		return "", Classify("partition", fmt.Sprintf("mirror folder %s", name), err)
	}
	r.dests[key] = id
	return id, nil
}

func (r *partitionRun) maybeCheckpoint(ctx context.Context) error {
	if r.checkpoint == nil {
		return nil
	}
	trip := r.sinceCheckpoint >= r.p.checkpointFiles
	if !trip && r.overUtilized != nil {
		over, err := r.overUtilized(ctx)
		if err != nil {
			return err
		}
		trip = over
	}
	if !trip {
		return nil
	}

	r.p.logger.Info("checkpointing partitioned transfer",
		logging.Int("files_since_checkpoint", r.sinceCheckpoint),
	)
	newRoot, err := r.checkpoint(ctx, r.destRoot)
	if err != nil {
		return err
	}
	r.destRoot = newRoot
	r.dests = map[string]string{"": newRoot}
	r.sinceCheckpoint = 0
	return nil
}

// pause sleeps briefly between remote calls so a long partitioned transfer
// does not look like a scripted burst.
func (r *partitionRun) pause(ctx context.Context) error {
	if r.p.pauseMax <= 0 {
		return nil
	}
	delay := r.p.pauseMin
	if spread := r.p.pauseMax - r.p.pauseMin; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
