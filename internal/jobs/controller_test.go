package jobs_test

import (
	"context"
	"errors"
	"testing"

	"resave/internal/jobs"
	"resave/internal/store"
	"resave/internal/testsupport"
)

func TestCreateAppliesDelayDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctrl := jobs.NewController(cfg, st, nil)
	ctx := context.Background()

	job, err := ctrl.Create(ctx, "defaults", 0, 0, []store.ItemSeed{{SourceRef: testsupport.ShareURL(1)}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.MinDelay != 5 || job.MaxDelay != 15 {
		t.Fatalf("delays = %d/%d, want config defaults 5/15", job.MinDelay, job.MaxDelay)
	}

	// An inverted range is clamped, never stored as max < min.
	job, err = ctrl.Create(ctx, "clamped", 30, 10, []store.ItemSeed{{SourceRef: testsupport.ShareURL(2)}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.MinDelay != 30 || job.MaxDelay != 30 {
		t.Fatalf("delays = %d/%d, want 30/30", job.MinDelay, job.MaxDelay)
	}
}

func TestStartAppliesSkipOnlyFromWait(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job := h.createJob(t, "skippy", "swzs1", "swzs2", "swzs3")
	started, err := h.controller.Start(ctx, job.ID, 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != store.JobQueued {
		t.Fatalf("status = %v, want queued", started.Status)
	}

	items, err := h.st.ItemsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ItemsForJob: %v", err)
	}
	for _, item := range items {
		want := store.ItemPending
		if item.Position <= 2 {
			want = store.ItemSkipped
		}
		if item.Status != want {
			t.Errorf("item %d status = %v, want %v", item.Position, item.Status, want)
		}
	}
}

func TestStartRejectsActiveJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job := h.createJob(t, "busy", "swza1")
	if _, err := h.controller.Start(ctx, job.ID, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.controller.Start(ctx, job.ID, 0); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("second Start err = %v, want ErrInvalidTransition", err)
	}
}

func TestPauseQueuedJobIsImmediate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job := h.createJob(t, "parked", "swzp1")
	if _, err := h.controller.Start(ctx, job.ID, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	paused, err := h.controller.Pause(ctx, job.ID, false)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != store.JobPaused {
		t.Fatalf("status = %v, want paused", paused.Status)
	}
}

func TestPauseRejectsWaitJob(t *testing.T) {
	h := newHarness(t)

	job := h.createJob(t, "fresh", "swzw1")
	if _, err := h.controller.Pause(context.Background(), job.ID, false); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("Pause err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelRejectsCompletedJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.remote.AddReadyShare("swzdone", 1)
	job := h.createJob(t, "finished", "swzdone")
	if _, err := h.controller.Start(ctx, job.ID, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.startDriver(t)
	h.waitForStatus(t, job.ID, store.JobCompleted)

	if _, err := h.controller.Cancel(ctx, job.ID, false); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("Cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestDeleteGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job := h.createJob(t, "doomed", "swzd1")
	if _, err := h.controller.Start(ctx, job.ID, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.controller.Delete(ctx, job.ID); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("Delete queued err = %v, want ErrInvalidTransition", err)
	}

	if _, err := h.controller.Cancel(ctx, job.ID, false); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := h.controller.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete cancelled: %v", err)
	}

	if _, _, err := h.controller.Status(ctx, job.ID); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Status after delete err = %v, want ErrJobNotFound", err)
	}
}

func TestOperationsOnUnknownJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.controller.Start(ctx, 404, 0); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Start err = %v, want ErrJobNotFound", err)
	}
	if err := h.controller.Delete(ctx, 404); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Delete err = %v, want ErrJobNotFound", err)
	}
}

func TestListReturnsAllJobs(t *testing.T) {
	h := newHarness(t)

	h.createJob(t, "first", "swzl1")
	h.createJob(t, "second", "swzl2")

	all, err := h.controller.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
}
