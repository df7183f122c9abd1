package jobs_test

import (
	"context"
	"testing"
	"time"

	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/jobs"
	"resave/internal/opqueue"
	"resave/internal/store"
	"resave/internal/testsupport"
	"resave/internal/transfer"
)

// harness wires the full job stack over fakes.
type harness struct {
	cfg        *config.Config
	st         *store.Store
	remote     *testsupport.FakeRemote
	throttle   *transfer.Throttle
	controller *jobs.Controller
	driver     *jobs.Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithFastTiming())
	st := testsupport.MustOpenStore(t, cfg)
	remote := testsupport.NewFakeRemote()

	queue := opqueue.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-queueDone
	})

	monitor := capacity.NewMonitor(cfg, remote, queue, nil)
	throttle := transfer.NewThrottle(time.Hour)
	retrier := drive.NewRetrier(5*time.Second, cfg.Provider.RetryAttempts, time.Millisecond, nil)
	processor := transfer.NewProcessor(cfg, st, remote, retrier, queue, monitor, throttle, nil, nil)

	return &harness{
		cfg:        cfg,
		st:         st,
		remote:     remote,
		throttle:   throttle,
		controller: jobs.NewController(cfg, st, nil),
		driver:     jobs.NewDriver(cfg, st, processor, monitor, throttle, nil, nil),
	}
}

func (h *harness) startDriver(t *testing.T) {
	t.Helper()

	if err := h.driver.Start(context.Background()); err != nil {
		t.Fatalf("driver.Start: %v", err)
	}
	t.Cleanup(h.driver.Stop)
}

// createJob seeds a job whose items reference registered ready shares.
func (h *harness) createJob(t *testing.T, name string, codes ...string) *store.TransferJob {
	t.Helper()

	seeds := make([]store.ItemSeed, 0, len(codes))
	for _, code := range codes {
		seeds = append(seeds, store.ItemSeed{
			SourceRef: "https://115.com/s/" + code + "?password=0000",
			Title:     code,
		})
	}
	job, err := h.controller.Create(context.Background(), name, 0, 0, seeds)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

// waitForStatus polls until the job reaches the wanted status.
func (h *harness) waitForStatus(t *testing.T, id int64, want store.JobStatus) *store.TransferJob {
	t.Helper()

	deadline := time.After(10 * time.Second)
	for {
		job, err := h.st.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		select {
		case <-deadline:
			status := store.JobStatus("missing")
			if job != nil {
				status = job.Status
			}
			t.Fatalf("job %d stuck in %s, want %s", id, status, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
