package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"b2pc/internal/config"
)

const userAgent = "b2pc/0.1.0"

// RunReport is the outcome of one pipeline run as seen by a notifier.
type RunReport struct {
	Operation string
	Converted int
	Skipped   int
	Errors    int
	Duration  time.Duration
	Cancelled bool
}

// Service defines the notification surface exposed to the CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, report RunReport) error
	NotifyRunFailed(ctx context.Context, operation string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report RunReport) error {
	duration := report.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	op := strings.TrimSpace(report.Operation)
	data := payload{tags: []string{"b2pc", op}}
	switch {
	case report.Cancelled:
		data.title = "b2pc - Run Cancelled"
		data.message = fmt.Sprintf("%s cancelled after %s: %d converted, %d skipped, %d errors",
			op, duration, report.Converted, report.Skipped, report.Errors)
		data.tags = append(data.tags, "cancelled")
	case report.Errors > 0:
		data.title = "b2pc - Run Complete (with errors)"
		data.message = fmt.Sprintf("%s finished in %s: %d converted, %d skipped, %d errors",
			op, duration, report.Converted, report.Skipped, report.Errors)
		data.tags = append(data.tags, "warning")
	default:
		data.title = "b2pc - Run Complete"
		data.message = fmt.Sprintf("%s finished in %s: %d converted, %d skipped",
			op, duration, report.Converted, report.Skipped)
		data.tags = append(data.tags, "completed")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, operation string, err error) error {
	var builder strings.Builder
	builder.WriteString("Run failed")
	if operation = strings.TrimSpace(operation); operation != "" {
		builder.WriteString(": ")
		builder.WriteString(operation)
	}
	builder.WriteString("\n")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown error")
	}

	return n.send(ctx, payload{
		title:    "b2pc - Error",
		message:  builder.String(),
		tags:     []string{"b2pc", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "b2pc - Test",
		message:  "Notification system test",
		tags:     []string{"b2pc", "test"},
		priority: "low",
	})
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
	if tags := compact(data.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
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

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunReport) error  { return nil }
func (noopService) NotifyRunFailed(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
