package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resave/internal/config"
)

const userAgent = "Resave-Go/0.1.0"

// Service defines the notification surface exposed to transfer components.
type Service interface {
	NotifyLinkPublished(ctx context.Context, sourceRef string, links []string, title string) error
	NotifyJobStarted(ctx context.Context, jobName string, count int) error
	NotifyJobCompleted(ctx context.Context, jobName string, succeeded, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		sendLinks:  cfg.Notifications.Links,
		sendJobs:   cfg.Notifications.Jobs,
		sendErrors: cfg.Notifications.Errors,
	}
}

// NewNop returns a service that drops every notification.
func NewNop() Service {
	return noopService{}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	sendLinks  bool
	sendJobs   bool
	sendErrors bool
}

func (n *ntfyService) NotifyLinkPublished(ctx context.Context, sourceRef string, links []string, title string) error {
	if !n.sendLinks {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(sourceRef)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Re-published: %s", title)
	for _, link := range links {
		builder.WriteString("\n")
		builder.WriteString(link)
	}
	data := payload{
		title:   "Resave - Link Published",
		message: builder.String(),
		tags:    []string{"resave", "link", "published"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobStarted(ctx context.Context, jobName string, count int) error {
	if !n.sendJobs {
		return nil
	}
	data := payload{
		title:   "Resave - Job Started",
		message: fmt.Sprintf("Started job %s with %d items", strings.TrimSpace(jobName), count),
		tags:    []string{"resave", "job", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobName string, succeeded, failed int, duration time.Duration) error {
	if !n.sendJobs {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Resave - Job Complete"
		message = fmt.Sprintf("Job %s complete: %d items in %s", strings.TrimSpace(jobName), succeeded, duration)
	} else {
		title = "Resave - Job Complete (with errors)"
		message = fmt.Sprintf("Job %s complete: %d succeeded, %d failed in %s", strings.TrimSpace(jobName), succeeded, failed, duration)
	}
	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"resave", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Resave - Error",
		message:  builder.String(),
		tags:     []string{"resave", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Resave - Test",
		message:  "Notification system test",
		tags:     []string{"resave", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyLinkPublished(context.Context, string, []string, string) error { return nil }
func (noopService) NotifyJobStarted(context.Context, string, int) error                 { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
