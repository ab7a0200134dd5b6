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

	"github.com/sells-group/contractor-intel/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefreshFailureRate AlertType = "refresh_failure_rate"
	AlertStuckRun           AlertType = "stuck_run"
	AlertStaleInsights      AlertType = "stale_insights"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// minFinishedRuns suppresses the failure-rate alert until enough runs have
// finished for the rate to mean anything.
const minFinishedRuns = 5

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RefreshComplete + snap.RefreshFailed
	if finished >= minFinishedRuns && snap.RefreshFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Refresh failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RefreshFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RefreshFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RefreshFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RefreshFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// A run still marked running after the whole window elapsed means a
	// pass died without finalizing its ledger row.
	if snap.RefreshRunning > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStuckRun,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d refresh run(s) still running in last %dh window",
				snap.RefreshRunning, snap.LookbackHours,
			),
			Details: map[string]any{
				"running_count": snap.RefreshRunning,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleInsightsMax > 0 && snap.StaleInsights > a.cfg.StaleInsightsMax {
		alerts = append(alerts, Alert{
			Type:     AlertStaleInsights,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d contractors have stale insights (limit %d)",
				snap.StaleInsights, a.cfg.StaleInsightsMax,
			),
			Details: map[string]any{
				"stale_count": snap.StaleInsights,
				"limit":       a.cfg.StaleInsightsMax,
				"coverage":    snap.WithInsights,
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
