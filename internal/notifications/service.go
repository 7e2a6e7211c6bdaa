package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
)

const userAgent = "procqueue/1"

// Service is the alert surface used by the daemon.
type Service interface {
	NotifyBanned(ctx context.Context, item *queue.Item) error
	NotifyOrphansRequeued(ctx context.Context, queueName string, count int64) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil || cfg.Notifications.NtfyTopic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint: cfg.Notifications.NtfyTopic,
		client:   &http.Client{Timeout: cfg.NotifyTimeout()},
	}
}

// BanHook returns a queue ban hook that alerts through svc. Delivery failures
// are logged, never returned, so an unreachable ntfy server cannot fail a ban.
func BanHook(svc Service, logger *slog.Logger) queue.BanHook {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, item *queue.Item) error {
		if err := svc.NotifyBanned(ctx, item); err != nil {
			logger.Warn("ban notification failed",
				logging.String(logging.FieldItemHash, item.Hash),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notify_failed"),
			)
		}
		return nil
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

func (n *ntfyService) NotifyBanned(ctx context.Context, item *queue.Item) error {
	if item == nil {
		return nil
	}
	message := fmt.Sprintf("Banned %s on queue %s after %d attempts", item.Hash, item.Queue, item.MaxAttempts)
	if p, err := queue.DecodePayload(item.Payload); err == nil && p.Record != "" {
		message += "\nRecord: " + p.Record
	}
	return n.send(ctx, payload{
		title:    "procqueue - Item Banned",
		message:  message,
		tags:     []string{"procqueue", "ban"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyOrphansRequeued(ctx context.Context, queueName string, count int64) error {
	if count <= 0 {
		return nil
	}
	if queueName == "" {
		queueName = "all queues"
	}
	return n.send(ctx, payload{
		title:   "procqueue - Orphans Recovered",
		message: fmt.Sprintf("Requeued %d orphaned item(s) on %s", count, queueName),
		tags:    []string{"procqueue", "orphans"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "procqueue - Test",
		message:  "Notification system test",
		tags:     []string{"procqueue", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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
	if data.priority != "" {
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

func (noopService) NotifyBanned(context.Context, *queue.Item) error            { return nil }
func (noopService) NotifyOrphansRequeued(context.Context, string, int64) error { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
