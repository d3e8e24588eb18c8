package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"b2pc/internal/config"
	"b2pc/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func serviceFor(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunCompleted(context.Background(), notifications.RunReport{Operation: "convert-to-chd"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNotifyRunCompletedFormats(t *testing.T) {
	tests := []struct {
		name        string
		report      notifications.RunReport
		expectTitle string
		expectBody  string
		expectTags  string
	}{
		{
			name:        "clean run",
			report:      notifications.RunReport{Operation: "convert-to-chd", Converted: 2, Duration: 90 * time.Second},
			expectTitle: "b2pc - Run Complete",
			expectBody:  "convert-to-chd finished in 1m30s: 2 converted, 0 skipped",
			expectTags:  "b2pc,convert-to-chd,completed",
		},
		{
			name:        "errors",
			report:      notifications.RunReport{Operation: "convert-to-rvz", Converted: 1, Errors: 2, Duration: time.Second},
			expectTitle: "b2pc - Run Complete (with errors)",
			expectBody:  "convert-to-rvz finished in 1s: 1 converted, 0 skipped, 2 errors",
			expectTags:  "b2pc,convert-to-rvz,warning",
		},
		{
			name:        "cancelled",
			report:      notifications.RunReport{Operation: "merge-bin-cue", Cancelled: true},
			expectTitle: "b2pc - Run Cancelled",
			expectBody:  "merge-bin-cue cancelled after 0s: 0 converted, 0 skipped, 0 errors",
			expectTags:  "b2pc,merge-bin-cue,cancelled",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := newServer(t, http.StatusOK)
			if err := serviceFor(srv.URL).NotifyRunCompleted(context.Background(), tc.report); err != nil {
				t.Fatalf("notify: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.body != tc.expectBody {
				t.Fatalf("body = %q, want %q", got.body, tc.expectBody)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got.tags, tc.expectTags)
			}
		})
	}
}

func TestNotifyRunFailedIsHighPriority(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	err := serviceFor(srv.URL).NotifyRunFailed(context.Background(), "patch-xbox-iso", errors.New("tool not found: xiso"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.priority != "high" {
		t.Fatalf("priority = %q", got.priority)
	}
	if !strings.Contains(got.body, "patch-xbox-iso") || !strings.Contains(got.body, "tool not found") {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestSendReportsHTTPErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	if err := serviceFor(srv.URL).TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
