package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 12,
		MaxHoursWithoutPublish:  24,
	})

	snap := &MetricsSnapshot{
		CyclesAttempted:       30,
		CyclesPublished:       25,
		CyclesNoCandidates:    5,
		ConsecutiveNoPublish:  2,
		HoursSinceLastPublish: 0.4,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_NoPublishStreak(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 12,
		MaxHoursWithoutPublish:  24,
	})

	snap := &MetricsSnapshot{
		CyclesAttempted:       14,
		CyclesNoCandidates:    14,
		ConsecutiveNoPublish:  12,
		HoursSinceLastPublish: 5.0,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoPublishStreak, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "12 consecutive cycles")
}

func TestAlerter_Evaluate_PublishDrought(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 100,
		MaxHoursWithoutPublish:  24,
	})

	last := time.Now().UTC().Add(-30 * time.Hour)
	snap := &MetricsSnapshot{
		CyclesAttempted:       10,
		ConsecutiveNoPublish:  10,
		LastPublishedAt:       &last,
		HoursSinceLastPublish: 30.0,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPublishDrought, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "30.0h")
}

func TestAlerter_Evaluate_DroughtNeedsAttempts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxHoursWithoutPublish: 24,
	})

	// Long quiet spell with no cycles attempted (service was down or
	// outside hours the whole window) is not a drought.
	snap := &MetricsSnapshot{
		CyclesAttempted:       0,
		HoursSinceLastPublish: 72.0,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_DeliveryFailure(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 12,
		MaxHoursWithoutPublish:  24,
	})

	snap := &MetricsSnapshot{
		CyclesAttempted:     10,
		CyclesPublished:     8,
		CyclesPublishFailed: 2,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDeliveryFailure, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 publish attempt(s)")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 5,
		MaxHoursWithoutPublish:  24,
	})

	snap := &MetricsSnapshot{
		CyclesAttempted:       20,
		CyclesNoCandidates:    18,
		CyclesPublishFailed:   2,
		ConsecutiveNoPublish:  8,
		HoursSinceLastPublish: 30.0,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, alert := range alerts {
		types[alert.Type] = true
	}
	assert.True(t, types[AlertNoPublishStreak])
	assert.True(t, types[AlertPublishDrought])
	assert.True(t, types[AlertDeliveryFailure])
}

func TestAlerter_Evaluate_DisabledThresholds(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		MaxConsecutiveNoPublish: 0,
		MaxHoursWithoutPublish:  0,
	})

	snap := &MetricsSnapshot{
		CyclesAttempted:       50,
		ConsecutiveNoPublish:  50,
		HoursSinceLastPublish: 100.0,
		LookbackHours:         24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertsConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertNoPublishStreak, Severity: "high", Message: "test alert 1"},
		{Type: AlertDeliveryFailure, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertNoPublishStreak, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertsConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertNoPublishStreak, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
