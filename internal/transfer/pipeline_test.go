package transfer_test

import (
	"context"
	"testing"
	"time"

	"resave/internal/capacity"
	"resave/internal/config"
	"resave/internal/drive"
	"resave/internal/opqueue"
	"resave/internal/store"
	"resave/internal/testsupport"
	"resave/internal/transfer"
)

// pipeline bundles a processor with the fakes behind it.
type pipeline struct {
	cfg       *config.Config
	st        *store.Store
	remote    *testsupport.FakeRemote
	queue     *opqueue.Queue
	monitor   *capacity.Monitor
	throttle  *transfer.Throttle
	processor *transfer.Processor
	retrier   *drive.Retrier
}

func newPipeline(t *testing.T, opts ...testsupport.ConfigOption) *pipeline {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithFastTiming()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
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
	throttle := transfer.NewThrottle(time.Duration(cfg.Transfer.ThrottleCooldown) * time.Second)
	retrier := drive.NewRetrier(
		time.Duration(cfg.Provider.RequestTimeout)*time.Second,
		cfg.Provider.RetryAttempts,
		time.Millisecond,
		nil,
	)
	processor := transfer.NewProcessor(cfg, st, remote, retrier, queue, monitor, throttle, nil, nil)

	return &pipeline{
		cfg:       cfg,
		st:        st,
		remote:    remote,
		queue:     queue,
		monitor:   monitor,
		throttle:  throttle,
		processor: processor,
		retrier:   retrier,
	}
}

func shareRequest(code string) transfer.Request {
	return transfer.Request{
		SourceRef: "https://115.com/s/" + code + "?password=0000",
		Title:     code,
	}
}
