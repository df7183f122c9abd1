package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"resave/internal/logging"
)

// Retrier bounds a single remote call with a timeout and retries it on
// timeout only. Any other failure propagates immediately; the caller decides
// whether that failure is retryable at a higher level.
type Retrier struct {
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger
}

// NewRetrier builds a Retrier with the given bounds, applying the documented
// defaults for non-positive values (3 attempts, 5s delay).
func NewRetrier(timeout time.Duration, attempts int, delay time.Duration, logger *slog.Logger) *Retrier {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Retrier{Timeout: timeout, Attempts: attempts, Delay: delay, Logger: logger}
}

// Do executes op under the configured timeout. Timeouts are retried up to
// the attempt budget with a fixed delay between attempts; exhaustion
// surfaces as ErrTimeout.
func (r *Retrier) Do(ctx context.Context, label string, op func(context.Context) error) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !isTimeout(err) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		if attempt < r.Attempts {
			logger.Warn("remote call timed out, retrying",
				logging.String("call", label),
				logging.Int("attempt", attempt),
				logging.Int("budget", r.Attempts),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Delay):
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrTimeout, label, r.Attempts, lastErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
