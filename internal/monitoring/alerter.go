package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertNoPublishStreak AlertType = "no_publish_streak"
	AlertPublishDrought  AlertType = "publish_drought"
	AlertDeliveryFailure AlertType = "delivery_failure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.AlertsConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given alerts config.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Streak of attempted cycles without a single publish.
	if a.cfg.MaxConsecutiveNoPublish > 0 && snap.ConsecutiveNoPublish >= a.cfg.MaxConsecutiveNoPublish {
		alerts = append(alerts, Alert{
			Type:     AlertNoPublishStreak,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d consecutive cycles without a publish (threshold %d, last %dh)",
				snap.ConsecutiveNoPublish, a.cfg.MaxConsecutiveNoPublish, snap.LookbackHours,
			),
			Details: map[string]any{
				"consecutive_no_publish": snap.ConsecutiveNoPublish,
				"threshold":              a.cfg.MaxConsecutiveNoPublish,
				"cycles_attempted":       snap.CyclesAttempted,
			},
			Timestamp: now,
		})
	}

	// Wall-clock drought since the newest ledger entry.
	if a.cfg.MaxHoursWithoutPublish > 0 && snap.CyclesAttempted > 0 &&
		snap.HoursSinceLastPublish > float64(a.cfg.MaxHoursWithoutPublish) {
		alerts = append(alerts, Alert{
			Type:     AlertPublishDrought,
			Severity: "high",
			Message: fmt.Sprintf(
				"No publish for %.1fh (threshold %dh)",
				snap.HoursSinceLastPublish, a.cfg.MaxHoursWithoutPublish,
			),
			Details: map[string]any{
				"hours_since_last_publish": snap.HoursSinceLastPublish,
				"threshold_hours":          a.cfg.MaxHoursWithoutPublish,
				"last_published_at":        snap.LastPublishedAt,
			},
			Timestamp: now,
		})
	}

	// Posts that were selected but never made it to the channel.
	if snap.CyclesPublishFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDeliveryFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d publish attempt(s) failed at delivery in last %dh",
				snap.CyclesPublishFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"publish_failed":   snap.CyclesPublishFailed,
				"cycles_attempted": snap.CyclesAttempted,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
