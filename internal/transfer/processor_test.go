package transfer_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"resave/internal/capacity"
	"resave/internal/drive"
	"resave/internal/store"
	"resave/internal/testsupport"
	"resave/internal/transfer"
)

func TestProcessReadyShareEndToEnd(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddReadyShare("swzready", 5)
	outcome, err := p.processor.Process(ctx, shareRequest("swzready"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.Pending || outcome.Reused {
		t.Fatalf("outcome = %+v, want plain success", outcome)
	}
	if len(outcome.Links) != 1 {
		t.Fatalf("links = %v, want one", outcome.Links)
	}
	if !strings.HasPrefix(outcome.Links[0], "https://115.com/s/") {
		t.Fatalf("link %q not in canonical form", outcome.Links[0])
	}

	if got := p.remote.CallCount("receive"); got != 1 {
		t.Errorf("receive called %d times, want 1", got)
	}
	if got := p.remote.CallCount("publish"); got != 1 {
		t.Errorf("publish called %d times, want 1", got)
	}
	if got := p.remote.CallCount("extendtopermanent"); got != 1 {
		t.Errorf("extend called %d times, want 1", got)
	}
	if got := p.remote.MaxInFlight(); got != 1 {
		t.Errorf("mutating calls overlapped: max in flight %d", got)
	}

	record, err := p.st.HistoryBySourceRef(ctx, shareRequest("swzready").SourceRef)
	if err != nil {
		t.Fatalf("HistoryBySourceRef: %v", err)
	}
	if record == nil || len(record.Links) != 1 {
		t.Fatalf("history = %+v", record)
	}
}

func TestProcessReusesHistory(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddReadyShare("swzrepeat", 2)
	first, err := p.processor.Process(ctx, shareRequest("swzrepeat"))
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	callsAfterFirst := len(p.remote.Calls())

	second, err := p.processor.Process(ctx, shareRequest("swzrepeat"))
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !second.Reused {
		t.Fatal("second run must resolve from history")
	}
	if len(second.Links) != len(first.Links) || second.Links[0] != first.Links[0] {
		t.Fatalf("links diverged: %v vs %v", first.Links, second.Links)
	}
	if got := len(p.remote.Calls()); got != callsAfterFirst {
		t.Fatalf("history hit made %d extra remote calls", got-callsAfterFirst)
	}
}

func TestProcessParksPendingShare(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddShare("swzaudit", &testsupport.FakeShare{State: drive.StateAuditing})
	outcome, err := p.processor.Process(ctx, shareRequest("swzaudit"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Pending {
		t.Fatalf("outcome = %+v, want pending", outcome)
	}

	rows, err := p.st.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(rows))
	}
	if got := p.remote.CallCount("receive"); got != 0 {
		t.Fatalf("pending share must not be received, got %d receives", got)
	}
}

func TestProcessFailsTerminalShare(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddShare("swzgone", &testsupport.FakeShare{State: drive.StateExpired})
	_, err := p.processor.Process(ctx, shareRequest("swzgone"))
	if !errors.Is(err, transfer.ErrShareGone) {
		t.Fatalf("error = %v, want ErrShareGone", err)
	}
	if !transfer.Permanent(err) {
		t.Fatal("expired share must be a permanent failure")
	}

	p.remote.AddShare("swzbanned", &testsupport.FakeShare{State: drive.StateProhibited})
	_, err = p.processor.Process(ctx, shareRequest("swzbanned"))
	if !errors.Is(err, transfer.ErrShareRestricted) {
		t.Fatalf("error = %v, want ErrShareRestricted", err)
	}
}

func TestProcessRejectsBadLink(t *testing.T) {
	p := newPipeline(t)

	_, err := p.processor.Process(context.Background(), transfer.Request{SourceRef: "not a link"})
	if !errors.Is(err, transfer.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestThrottledRemoteTripsCooldown(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddReadyShare("swzlimit", 2)
	p.remote.FailNext("receive", &drive.RemoteError{Errno: 911, Message: "traffic control"})

	_, err := p.processor.Process(ctx, shareRequest("swzlimit"))
	if !errors.Is(err, transfer.ErrThrottled) {
		t.Fatalf("error = %v, want ErrThrottled", err)
	}
	if !p.throttle.Active() {
		t.Fatal("remote throttling must trip the cooldown flag")
	}

	// While the cooldown holds, later transfers park for the poller before
	// any remote call.
	p.remote.AddReadyShare("swzother", 1)
	callsBefore := len(p.remote.Calls())
	outcome, err := p.processor.Process(ctx, shareRequest("swzother"))
	if err != nil {
		t.Fatalf("Process during cooldown: %v", err)
	}
	if !outcome.Pending || outcome.PendingStatus != store.PendingRestricted {
		t.Fatalf("outcome = %+v, want restricted park", outcome)
	}
	if got := len(p.remote.Calls()); got != callsBefore {
		t.Fatalf("throttled transfer made %d remote calls", got-callsBefore)
	}
	rows, err := p.st.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != store.PendingRestricted {
		t.Fatalf("pending rows = %+v, want one restricted row", rows)
	}
}

func TestCheckpointedPartitionPublishesEveryPart(t *testing.T) {
	p := newPipeline(t, testsupport.WithPartitionLimits(2, 4))
	ctx := context.Background()

	p.remote.AddReadyShare("swzparts", 6)
	req := shareRequest("swzparts")
	outcome, err := p.processor.Process(ctx, req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// One intermediate publish at the checkpoint plus the final publish.
	if got := p.remote.CallCount("publish"); got != 2 {
		t.Fatalf("publish called %d times, want 2", got)
	}
	if len(outcome.Links) != 2 {
		t.Fatalf("links = %v, want both parts", outcome.Links)
	}
	if outcome.Links[0] == outcome.Links[1] {
		t.Fatalf("links = %v, parts must publish distinct shares", outcome.Links)
	}
	// The checkpoint reclaims the managed directory between parts.
	if got := p.remote.CallCount("deleteitems"); got == 0 {
		t.Fatal("checkpoint must reclaim space between parts")
	}

	record, err := p.st.HistoryBySourceRef(ctx, req.SourceRef)
	if err != nil {
		t.Fatalf("HistoryBySourceRef: %v", err)
	}
	if record == nil || len(record.Links) != 2 {
		t.Fatalf("history = %+v, want both links recorded", record)
	}
}

func TestPipelineHoldsQueueThroughStabilize(t *testing.T) {
	p := newPipeline(t, testsupport.WithCleanupThreshold(1))
	ctx := context.Background()

	p.remote.AddReadyShare("swzhold", 2)

	var dest atomic.Value
	p.remote.ReceiveHook = func(_ context.Context, _ drive.ShareRef, _ []string, destID string) error {
		dest.Store(destID)
		return nil
	}

	// Gate the first listing of the received folder so the pipeline sits
	// inside its stabilization window.
	started := make(chan struct{})
	release := make(chan struct{})
	var gated atomic.Bool
	p.remote.ListFolderFn = func(_ context.Context, folderID string) ([]drive.Item, error) {
		if d, _ := dest.Load().(string); d != "" && d == folderID && gated.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		items := p.remote.FolderItems(folderID)
		if items == nil {
			return nil, &drive.RemoteError{Errno: 20004, Message: "folder missing"}
		}
		return items, nil
	}

	type result struct {
		outcome *transfer.Outcome
		err     error
	}
	results := make(chan result, 1)
	go func() {
		outcome, err := p.processor.Process(ctx, shareRequest("swzhold"))
		results <- result{outcome, err}
	}()

	<-started
	if !p.queue.Busy() {
		t.Error("queue must stay busy while the listing settles")
	}
	// Used space is over the one-byte threshold, but the scheduled check
	// yields to the in-flight transfer instead of destroying it.
	cleaned, err := p.monitor.CheckAndCleanup(ctx, capacity.TriggerScheduled)
	if err != nil {
		t.Fatalf("CheckAndCleanup: %v", err)
	}
	if cleaned {
		t.Error("scheduled cleanup ran against an in-flight transfer")
	}
	if got := p.remote.CallCount("deleteitems"); got != 0 {
		t.Errorf("deleteitems called %d times during transfer", got)
	}
	close(release)

	res := <-results
	if res.err != nil {
		t.Fatalf("Process: %v", res.err)
	}
	if len(res.outcome.Links) != 1 {
		t.Fatalf("links = %v, want one", res.outcome.Links)
	}
}

func TestUnlistedContentParksForPoller(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddReadyShare("swzghost", 2)

	// Received content that the listing never surfaces.
	var dest atomic.Value
	p.remote.ReceiveHook = func(_ context.Context, _ drive.ShareRef, _ []string, destID string) error {
		dest.Store(destID)
		return nil
	}
	p.remote.ListFolderFn = func(_ context.Context, folderID string) ([]drive.Item, error) {
		if d, _ := dest.Load().(string); d != "" && d == folderID {
			return []drive.Item{}, nil
		}
		items := p.remote.FolderItems(folderID)
		if items == nil {
			return nil, &drive.RemoteError{Errno: 20004, Message: "folder missing"}
		}
		return items, nil
	}

	outcome, err := p.processor.Process(ctx, shareRequest("swzghost"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Pending || outcome.PendingStatus != store.PendingUnlisted {
		t.Fatalf("outcome = %+v, want unlisted park", outcome)
	}
	if got := p.remote.CallCount("publish"); got != 0 {
		t.Fatalf("publish called %d times on unlisted content", got)
	}

	rows, err := p.st.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != store.PendingUnlisted {
		t.Fatalf("pending rows = %+v, want one unlisted row", rows)
	}
}

func TestDuplicateReceiveSalvagesSibling(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.remote.AddReadyShare("swzdup", 3)
	p.remote.FailNext("receive", &drive.RemoteError{Errno: 4200045, Message: "already received"})

	outcome, err := p.processor.Process(ctx, shareRequest("swzdup"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(outcome.Links) != 1 {
		t.Fatalf("links = %v", outcome.Links)
	}
	// Empty work folder plus a duplicate rejection means one retry into a
	// sibling folder.
	if got := p.remote.CallCount("receive"); got != 2 {
		t.Fatalf("receive called %d times, want 2", got)
	}
}
