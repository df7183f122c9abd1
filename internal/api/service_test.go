package api_test

import (
	"context"
	"testing"
	"time"

	"resave/internal/api"
	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/jobs"
	"resave/internal/opqueue"
	"resave/internal/store"
	"resave/internal/testsupport"
	"resave/internal/transfer"
)

type fixture struct {
	cfg     *config.Config
	st      *store.Store
	remote  *testsupport.FakeRemote
	service *api.TransferService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithFastTiming())
	st := testsupport.MustOpenStore(t, cfg)
	remote := testsupport.NewFakeRemote()

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

	monitor := capacity.NewMonitor(cfg, remote, queue, nil)
	throttle := transfer.NewThrottle(time.Hour)
	retrier := drive.NewRetrier(5*time.Second, cfg.Provider.RetryAttempts, time.Millisecond, nil)
	processor := transfer.NewProcessor(cfg, st, remote, retrier, queue, monitor, throttle, nil, nil)
	controller := jobs.NewController(cfg, st, nil)

	return &fixture{
		cfg:     cfg,
		st:      st,
		remote:  remote,
		service: api.NewTransferService(st, controller, processor, monitor, throttle),
	}
}

func TestCreateJobValidatesShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.CreateJob(ctx, "empty", 0, 0, nil); err == nil {
		t.Fatal("expected error for empty share list")
	}
	if _, err := f.service.CreateJob(ctx, "bad", 0, 0, []api.ShareInput{{URL: "https://115.com/"}}); err == nil {
		t.Fatal("expected error for a URL without a share code")
	}

	view, err := f.service.CreateJob(ctx, "good", 0, 0, []api.ShareInput{
		{URL: testsupport.ShareURL(1)},
		{URL: testsupport.ShareURL(2), Title: "second"},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if view.Status != string(store.JobWait) || view.TotalCount != 2 {
		t.Fatalf("view = %+v", view)
	}

	detail, err := f.service.DescribeJob(ctx, view.ID)
	if err != nil {
		t.Fatalf("DescribeJob: %v", err)
	}
	if len(detail.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(detail.Items))
	}
	if detail.Items[1].Title != "second" {
		t.Fatalf("title = %q", detail.Items[1].Title)
	}
	// A blank title falls back to the share code.
	if detail.Items[0].Title == "" {
		t.Fatal("first item title not defaulted")
	}
}

func TestJobLifecycleThroughFacade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.CreateJob(ctx, "cycle", 0, 0, []api.ShareInput{{URL: testsupport.ShareURL(7)}})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	started, err := f.service.StartJob(ctx, view.ID, 0)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if started.Status != string(store.JobQueued) {
		t.Fatalf("status = %q, want queued", started.Status)
	}

	paused, err := f.service.PauseJob(ctx, view.ID, false)
	if err != nil {
		t.Fatalf("PauseJob: %v", err)
	}
	if paused.Status != string(store.JobPaused) {
		t.Fatalf("status = %q, want paused", paused.Status)
	}

	cancelled, err := f.service.CancelJob(ctx, view.ID, false)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.Status != string(store.JobCancelled) {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	if err := f.service.DeleteJob(ctx, view.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	all, err := f.service.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("jobs left = %d", len(all))
	}
}

func TestSaveSharePublishesAndReuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.AddReadyShare("swzone", 2)
	input := api.ShareInput{URL: "https://115.com/s/swzone?password=1111", Title: "one"}

	result, err := f.service.SaveShare(ctx, input)
	if err != nil {
		t.Fatalf("SaveShare: %v", err)
	}
	if len(result.Links) == 0 || result.Reused || result.Pending {
		t.Fatalf("result = %+v", result)
	}

	again, err := f.service.SaveShare(ctx, input)
	if err != nil {
		t.Fatalf("SaveShare again: %v", err)
	}
	if !again.Reused {
		t.Fatalf("second save not reused: %+v", again)
	}

	cleared, err := f.service.ClearHistory(ctx)
	if err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}
}

func TestSaveShareParksAuditingShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.AddShare("swzaud", &testsupport.FakeShare{State: drive.StateAuditing})
	result, err := f.service.SaveShare(ctx, api.ShareInput{URL: "https://115.com/s/swzaud?password=0000"})
	if err != nil {
		t.Fatalf("SaveShare: %v", err)
	}
	if !result.Pending || result.PendingStatus != string(store.PendingAuditing) {
		t.Fatalf("result = %+v", result)
	}

	parked, err := f.service.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(parked) != 1 || parked[0].Status != string(store.PendingAuditing) {
		t.Fatalf("parked = %+v", parked)
	}
}

func TestCapacityAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.SetSpace(750, 1000)
	view, err := f.service.Capacity(ctx)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	if view.UsedBytes != 750 || view.FreeBytes != 250 || view.UsedPercent != 75 {
		t.Fatalf("view = %+v", view)
	}

	// Below the manual threshold nothing runs.
	f.cfg.Capacity.CleanupThresholdBytes = 900
	ran, err := f.service.CleanupNow(ctx)
	if err != nil {
		t.Fatalf("CleanupNow: %v", err)
	}
	if ran {
		t.Fatal("cleanup ran below threshold")
	}

	f.remote.SetSpace(950, 1000)
	ran, err = f.service.CleanupNow(ctx)
	if err != nil {
		t.Fatalf("CleanupNow: %v", err)
	}
	if !ran {
		t.Fatal("cleanup did not run over threshold")
	}
}
