package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resave/internal/config"
	"resave/internal/notify"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notify.NewService(&cfg)
	if err := svc.NotifyLinkPublished(context.Background(), "https://115.com/s/x", []string{"link"}, "Example"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func captureServer(t *testing.T, captured *capturedRequest, calls *int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		*calls++
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		captured.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLinkPublishedFormatsMessage(t *testing.T) {
	var captured capturedRequest
	var calls int
	server := captureServer(t, &captured, &calls)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notify.NewService(&cfg)
	links := []string{"https://115.com/s/pub1?password=0000", "https://115.com/s/pub2?password=0000"}
	if err := svc.NotifyLinkPublished(context.Background(), "https://115.com/s/src", links, "Movie Pack"); err != nil {
		t.Fatalf("NotifyLinkPublished: %v", err)
	}

	if captured.title != "Resave - Link Published" {
		t.Errorf("title = %q", captured.title)
	}
	want := "Re-published: Movie Pack\n" + links[0] + "\n" + links[1]
	if captured.body != want {
		t.Errorf("body = %q, want %q", captured.body, want)
	}
	if captured.tags != "resave,link,published" {
		t.Errorf("tags = %q", captured.tags)
	}
}

func TestJobCompletedReportsFailures(t *testing.T) {
	var captured capturedRequest
	var calls int
	server := captureServer(t, &captured, &calls)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notify.NewService(&cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "batch-42", 10, 2, 90*time.Second); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}

	if captured.title != "Resave - Job Complete (with errors)" {
		t.Errorf("title = %q", captured.title)
	}
	if captured.body != "Job batch-42 complete: 10 succeeded, 2 failed in 1m30s" {
		t.Errorf("body = %q", captured.body)
	}
	if captured.priority != "high" {
		t.Errorf("priority = %q", captured.priority)
	}
}

func TestErrorNotificationIncludesContext(t *testing.T) {
	var captured capturedRequest
	var calls int
	server := captureServer(t, &captured, &calls)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notify.NewService(&cfg)
	if err := svc.NotifyError(context.Background(), errors.New("share expired"), "transfer"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}

	if captured.body != "Error with transfer: share expired" {
		t.Errorf("body = %q", captured.body)
	}
	if captured.priority != "high" {
		t.Errorf("priority = %q", captured.priority)
	}
}

func TestCategoryFlagsSuppressDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Links = false
	cfg.Notifications.Jobs = false
	cfg.Notifications.Errors = false

	svc := notify.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifyLinkPublished(ctx, "ref", []string{"link"}, "title"); err != nil {
		t.Fatalf("suppressed link notification errored: %v", err)
	}
	if err := svc.NotifyJobStarted(ctx, "job", 3); err != nil {
		t.Fatalf("suppressed job notification errored: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "transfer"); err != nil {
		t.Fatalf("suppressed error notification errored: %v", err)
	}
}
