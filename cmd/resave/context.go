package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

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

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withService runs fn against a one-shot engine over the shared store. The
// operation queue lives only for the duration of the call, so mutating
// remote operations stay serialized within this process.
func (c *commandContext) withService(ctx context.Context, fn func(context.Context, *api.TransferService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	remote := drive.NewHTTPService(cfg, nil)
	queue := opqueue.New(logging.NewNop())
	queueCtx, cancel := context.WithCancel(ctx)
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(queueCtx)
	}()
	defer func() {
		cancel()
		<-queueDone
	}()

	monitor := capacity.NewMonitor(cfg, remote, queue, nil)
	throttle := transfer.NewThrottle(time.Duration(cfg.Transfer.ThrottleCooldown) * time.Second)
	retrier := drive.NewRetrier(
		time.Duration(cfg.Provider.RequestTimeout)*time.Second,
		cfg.Provider.RetryAttempts,
		time.Duration(cfg.Provider.RetryDelay)*time.Second,
		nil,
	)
	processor := transfer.NewProcessor(cfg, st, remote, retrier, queue, monitor, throttle, notify.NewService(cfg), nil)
	controller := jobs.NewController(cfg, st, nil)

	return fn(ctx, api.NewTransferService(st, controller, processor, monitor, throttle))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
