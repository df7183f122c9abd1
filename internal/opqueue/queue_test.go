package opqueue_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"resave/internal/opqueue"
)

func runQueue(t *testing.T) (*opqueue.Queue, context.Context) {
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
	return queue, ctx
}

func TestSubmissionsNeverOverlap(t *testing.T) {
	queue, ctx := runQueue(t)

	var inFlight, maxInFlight, runs int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := queue.Do(ctx, "mutate", func(context.Context) error {
				current := atomic.AddInt32(&inFlight, 1)
				for {
					observed := atomic.LoadInt32(&maxInFlight)
					if current <= observed || atomic.CompareAndSwapInt32(&maxInFlight, observed, current) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				atomic.AddInt32(&runs, 1)
				return nil
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("max concurrent operations = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&runs); got != 20 {
		t.Fatalf("runs = %d, want 20", got)
	}
}

func TestSubmissionsFromOneCallerRunInOrder(t *testing.T) {
	queue, ctx := runQueue(t)

	var mu sync.Mutex
	var order []int
	var futures []*opqueue.Future
	for i := 0; i < 10; i++ {
		i := i
		future, err := queue.Submit(ctx, "ordered", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		futures = append(futures, future)
	}
	for _, future := range futures {
		if err := future.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestFutureCarriesOperationError(t *testing.T) {
	queue, ctx := runQueue(t)

	boom := errors.New("boom")
	err := queue.Do(ctx, "failing", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestPanicIsContained(t *testing.T) {
	queue, ctx := runQueue(t)

	err := queue.Do(ctx, "panicking", func(context.Context) error {
		panic("kaboom")
	})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("panic not surfaced as error: %v", err)
	}

	// The consumer must survive the panic.
	if err := queue.Do(ctx, "after", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("queue dead after panic: %v", err)
	}
}

func TestBusyReflectsExecution(t *testing.T) {
	queue, ctx := runQueue(t)

	release := make(chan struct{})
	started := make(chan struct{})
	future, err := queue.Submit(ctx, "slow", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	if !queue.Busy() {
		t.Error("queue should be busy while an operation executes")
	}
	close(release)
	if err := future.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for queue.Busy() {
		select {
		case <-deadline:
			t.Fatal("queue still busy after completion")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShutdownResolvesParkedFutures(t *testing.T) {
	queue := opqueue.New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	started := make(chan struct{})
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		queue.Run(ctx)
	}()

	first, err := queue.Submit(context.Background(), "blocking", func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	parked, err := queue.Submit(context.Background(), "parked", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Submit parked: %v", err)
	}

	cancel()
	close(block)
	<-runDone

	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first operation should have completed: %v", err)
	}
	if err := parked.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("parked future error = %v, want context.Canceled", err)
	}
}
