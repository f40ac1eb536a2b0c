package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RefreshFailure describes a refresh cycle that exhausted its retries.
type RefreshFailure struct {
	CycleID             string
	Attempts            int
	Error               string
	ConsecutiveFailures int
	StartedAt           time.Time
	Duration            time.Duration
	// LastSuccessAt is zero when no snapshot was ever published.
	LastSuccessAt time.Time
}

// Reporter is notified of failed refresh cycles.
type Reporter interface {
	ReportRefreshFailure(ctx context.Context, f RefreshFailure) error
}

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// MinFailuresBeforeAlert is the number of consecutive failed cycles before alerting
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration
}

// Enabled reports whether a webhook is configured.
func (c AlertConfig) Enabled() bool { return c.WebhookURL != "" }

// DetectWebhookType guesses the payload format from the webhook host.
func DetectWebhookType(url string) string {
	switch {
	case strings.Contains(url, "slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	log    *zap.Logger
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig, log *zap.Logger) *Alerter {
	if cfg.WebhookType == "" {
		cfg.WebhookType = DetectWebhookType(cfg.WebhookURL)
	}
	if cfg.MinFailuresBeforeAlert < 1 {
		cfg.MinFailuresBeforeAlert = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// ReportRefreshFailure posts an alert about a failed refresh cycle.
func (a *Alerter) ReportRefreshFailure(ctx context.Context, f RefreshFailure) error {
	if !a.cfg.Enabled() {
		a.log.Debug("alerting: webhook not configured, skipping")
		return nil
	}

	if f.ConsecutiveFailures < a.cfg.MinFailuresBeforeAlert {
		a.log.Info("alerting: failures below threshold, skipping",
			zap.Int("consecutive_failures", f.ConsecutiveFailures),
			zap.Int("threshold", a.cfg.MinFailuresBeforeAlert))
		return nil
	}

	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(f)
	case "discord":
		payload, err = buildDiscordPayload(f)
	default:
		payload, err = buildGenericPayload(f)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	a.log.Info("alerting: sent refresh failure alert",
		zap.String("cycle_id", f.CycleID),
		zap.Int("consecutive_failures", f.ConsecutiveFailures))
	return nil
}

func lastSuccessText(f RefreshFailure) string {
	if f.LastSuccessAt.IsZero() {
		return "never"
	}
	return f.LastSuccessAt.Format(time.RFC3339)
}

func buildSlackPayload(f RefreshFailure) ([]byte, error) {
	emoji := ":warning:"
	if f.LastSuccessAt.IsZero() {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Car park feed refresh failed", emoji),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Attempts:*\n%d", f.Attempts)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", f.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", f.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Last success:*\n%s", lastSuccessText(f))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n`%s`", f.Error),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func buildDiscordPayload(f RefreshFailure) ([]byte, error) {
	color := 16776960 // Yellow
	if f.LastSuccessAt.IsZero() {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       "Car park feed refresh failed",
				"description": f.Error,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Attempts", "value": fmt.Sprintf("%d", f.Attempts), "inline": true},
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", f.ConsecutiveFailures), "inline": true},
					{"name": "Duration", "value": f.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Last success", "value": lastSuccessText(f), "inline": false},
				},
				"timestamp": f.StartedAt.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func buildGenericPayload(f RefreshFailure) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":           "refresh_failure",
		"cycle_id":             f.CycleID,
		"attempts":             f.Attempts,
		"error":                f.Error,
		"consecutive_failures": f.ConsecutiveFailures,
		"duration_ms":          f.Duration.Milliseconds(),
		"started_at":           f.StartedAt.Format(time.RFC3339),
		"last_success_at":      lastSuccessText(f),
	}

	return json.Marshal(payload)
}
