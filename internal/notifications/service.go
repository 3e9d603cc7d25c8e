package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"famforge/internal/config"
)

const userAgent = "famforge/0.1.0"

// Service defines the notification surface exposed to the CLI and the
// coordinator.
type Service interface {
	NotifyRunStarted(ctx context.Context, runID string, started int) error
	NotifyRunCompleted(ctx context.Context, runID string, done, failed int, duration time.Duration) error
	NotifyFamilyFailed(ctx context.Context, family, stage, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
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

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		run:      cfg.Notifications.Run,
		errors:   cfg.Notifications.Errors,
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
	run      bool
	errors   bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, runID string, started int) error {
	if !n.run {
		return nil
	}
	data := payload{
		title:   "famforge - Run Started",
		message: fmt.Sprintf("Run %s started %d families", shortID(runID), started),
		tags:    []string{"famforge", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID string, done, failed int, duration time.Duration) error {
	if !n.run {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "famforge - Run Complete"
	message := fmt.Sprintf("Run %s: %d families built in %s", shortID(runID), done, duration)
	if failed > 0 {
		title = "famforge - Run Complete (with failures)"
		message = fmt.Sprintf("Run %s: %d built, %d failed in %s", shortID(runID), done, failed, duration)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"famforge", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFamilyFailed(ctx context.Context, family, stage, reason string) error {
	if !n.errors {
		return nil
	}
	message := fmt.Sprintf("%s failed at %s", strings.TrimSpace(family), strings.TrimSpace(stage))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	data := payload{
		title:   "famforge - Family Failed",
		message: message,
		tags:    []string{"famforge", "family", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" during ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "famforge - Error",
		message:  builder.String(),
		tags:     []string{"famforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "famforge - Test",
		message:  "Notification system test",
		tags:     []string{"famforge", "test"},
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

// shortID trims a run UUID to its first group for message titles.
func shortID(runID string) string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyFamilyFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                 { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
