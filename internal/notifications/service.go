package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarcast/internal/config"
)

const userAgent = "avatarcast/0.1.0"

// Event names a notification type.
type Event string

const (
	EventJobCompleted    Event = "job_completed"
	EventJobFailed       Event = "job_failed"
	EventJobCancelled    Event = "job_cancelled"
	EventExportCompleted Event = "export_completed"
	EventTest            Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:    cfg.Notifications.JobCompleted,
			EventJobFailed:       cfg.Notifications.JobFailed,
			EventJobCancelled:    cfg.Notifications.JobFailed,
			EventExportCompleted: cfg.Notifications.ExportCompleted,
			EventTest:            true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Video ready: %s", text(payload, "script", "job"))
		if url := text(payload, "url"); url != "" {
			body += "\n" + url
		}
		return message{
			title: "Avatarcast - Video Ready",
			body:  body,
			tags:  []string{"avatarcast", "job", "completed"},
		}, true
	case EventJobFailed:
		return message{
			title:    "Avatarcast - Generation Failed",
			body:     fmt.Sprintf("❌ %s failed (%s): %s", text(payload, "job"), text(payload, "kind"), text(payload, "reason")),
			tags:     []string{"avatarcast", "job", "failed"},
			priority: "high",
		}, true
	case EventJobCancelled:
		return message{
			title:    "Avatarcast - Generation Cancelled",
			body:     fmt.Sprintf("Cancelled: %s", text(payload, "job")),
			tags:     []string{"avatarcast", "job", "cancelled"},
			priority: "low",
		}, true
	case EventExportCompleted:
		title := "Avatarcast - Export Complete"
		failed := number(payload, "failed")
		if failed > 0 {
			title = "Avatarcast - Export Complete (with errors)"
		}
		return message{
			title: title,
			body: fmt.Sprintf("📦 %s export: %d delivered, %d failed",
				text(payload, "preset"), number(payload, "done"), failed),
			tags: []string{"avatarcast", "export", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Avatarcast - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"avatarcast", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func text(payload Payload, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(value)); s != "" {
				return s
			}
		}
	}
	return ""
}

func number(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
