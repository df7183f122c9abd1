package capacity_test

import (
	"context"
	"errors"
	"testing"

	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/opqueue"
	"resave/internal/testsupport"
)

func shareRef(code string) drive.ShareRef {
	return drive.ShareRef{ShareCode: code, ReceiveCode: "0000"}
}

func newMonitor(t *testing.T, cfg *config.Config, remote *testsupport.FakeRemote) *capacity.Monitor {
	t.Helper()

	queue := opqueue.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return capacity.NewMonitor(cfg, remote, queue, nil)
}

func TestManagedDirIDIsCached(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	first, err := monitor.ManagedDirID(ctx)
	if err != nil {
		t.Fatalf("ManagedDirID: %v", err)
	}
	second, err := monitor.ManagedDirID(ctx)
	if err != nil {
		t.Fatalf("ManagedDirID again: %v", err)
	}
	if first != second {
		t.Fatalf("ids differ: %q vs %q", first, second)
	}
	if got := remote.CallCount("ensurefolder"); got != 1 {
		t.Fatalf("ensurefolder called %d times, want 1", got)
	}
}

func TestBatchCheckUsesFreeFloorWithoutThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capacity.CleanupThresholdBytes = 0
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	// 8% free trips the 10% floor.
	remote.SetSpace(920, 1000)
	ran, err := monitor.CheckAndCleanup(ctx, capacity.TriggerBatch)
	if err != nil {
		t.Fatalf("CheckAndCleanup: %v", err)
	}
	if !ran {
		t.Fatal("expected cleanup at 8% free")
	}

	// 15% free does not.
	remote.SetSpace(850, 1000)
	ran, err = monitor.CheckAndCleanup(ctx, capacity.TriggerBatch)
	if err != nil {
		t.Fatalf("CheckAndCleanup: %v", err)
	}
	if ran {
		t.Fatal("cleanup must not run at 15% free")
	}
}

func TestManualCheckHonorsThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capacity.CleanupThresholdBytes = 900
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	remote.SetSpace(950, 1000)
	ran, err := monitor.CheckAndCleanup(ctx, capacity.TriggerManual)
	if err != nil {
		t.Fatalf("CheckAndCleanup: %v", err)
	}
	if !ran {
		t.Fatal("expected cleanup above the configured threshold")
	}

	remote.SetSpace(850, 1000)
	ran, err = monitor.CheckAndCleanup(ctx, capacity.TriggerManual)
	if err != nil {
		t.Fatalf("CheckAndCleanup: %v", err)
	}
	if ran {
		t.Fatal("cleanup must not run below the threshold")
	}
}

func TestCleanupDeletesContentsAndEmptiesTrash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	dirID, err := monitor.ManagedDirID(ctx)
	if err != nil {
		t.Fatalf("ManagedDirID: %v", err)
	}
	remote.AddReadyShare("seed", 3)
	if err := remote.Receive(ctx, shareRef("seed"), []string{"seed-f0", "seed-f1", "seed-f2"}, dirID); err != nil {
		t.Fatalf("seed receive: %v", err)
	}

	if err := monitor.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := len(remote.FolderItems(dirID)); got != 0 {
		t.Fatalf("managed dir still holds %d items", got)
	}
	if got := remote.CallCount("emptytrash"); got != 1 {
		t.Fatalf("emptytrash called %d times, want 1", got)
	}
	if got := remote.MaxInFlight(); got != 1 {
		t.Fatalf("mutating calls overlapped: max in flight %d", got)
	}
}

func TestEnsureCapacityCleansWhenTransferWontFit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capacity.CleanupThresholdBytes = 0
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	dirID, err := monitor.ManagedDirID(ctx)
	if err != nil {
		t.Fatalf("ManagedDirID: %v", err)
	}
	remote.AddReadyShare("seed", 2)
	if err := remote.Receive(ctx, shareRef("seed"), []string{"seed-f0", "seed-f1"}, dirID); err != nil {
		t.Fatalf("seed receive: %v", err)
	}
	// Two 1 KiB files used out of 3 KiB total: a 2 KiB transfer cannot fit
	// until the managed dir is cleared.
	remote.SetSpace(2048, 3072)

	if err := monitor.EnsureCapacity(ctx, 2, 2048); err != nil {
		t.Fatalf("EnsureCapacity: %v", err)
	}
	if got := len(remote.FolderItems(dirID)); got != 0 {
		t.Fatalf("managed dir not cleared, %d items remain", got)
	}
}

func TestEnsureCapacityFailsWhenStillTooLarge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capacity.CleanupThresholdBytes = 0
	remote := testsupport.NewFakeRemote()
	monitor := newMonitor(t, cfg, remote)
	ctx := context.Background()

	remote.SetSpace(0, 1000)
	err := monitor.EnsureCapacity(ctx, 1, 5000)
	if !errors.Is(err, capacity.ErrInsufficientSpace) {
		t.Fatalf("error = %v, want ErrInsufficientSpace", err)
	}
}

func TestReclaimRunsInsideQueuedOperation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	remote := testsupport.NewFakeRemote()

	queue := opqueue.New(nil)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	monitor := capacity.NewMonitor(cfg, remote, queue, nil)
	ctx := context.Background()

	dirID, err := monitor.ManagedDirID(ctx)
	if err != nil {
		t.Fatalf("ManagedDirID: %v", err)
	}
	remote.AddReadyShare("seed", 2)
	if err := remote.Receive(ctx, shareRef("seed"), []string{"seed-f0", "seed-f1"}, dirID); err != nil {
		t.Fatalf("seed receive: %v", err)
	}

	// A caller already holding the queue's single consumer must be able to
	// reclaim space without submitting a nested operation.
	err = queue.Do(ctx, "pipeline", func(opCtx context.Context) error {
		return monitor.Reclaim(opCtx)
	})
	if err != nil {
		t.Fatalf("Reclaim inside queued op: %v", err)
	}
	if got := len(remote.FolderItems(dirID)); got != 0 {
		t.Fatalf("managed dir still holds %d items", got)
	}
	if got := remote.CallCount("emptytrash"); got != 1 {
		t.Fatalf("emptytrash called %d times, want 1", got)
	}
}
