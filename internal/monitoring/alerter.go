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

	"github.com/xMathyu/hvac-scanner/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertReportFailureRate  AlertType = "report_failure_rate"
	AlertLowConfidenceRate  AlertType = "low_confidence_rate"
	AlertImmediateAttention AlertType = "immediate_attention"
)

// minSample is the number of observations a rate needs before it can alert.
const minSample = 5

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

	finished := snap.ReportsCompleted + snap.ReportsErrored
	if finished >= minSample && snap.ReportFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReportFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Report failure rate %.1f%% exceeds threshold %.1f%% (%d errored / %d finished in last %dh)",
				snap.ReportFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ReportsErrored, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.ReportFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"errored":      snap.ReportsErrored,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.LowConfidenceThreshold > 0 && snap.LabelScans >= minSample &&
		snap.LowConfidenceRate > a.cfg.LowConfidenceThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLowConfidenceRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of label scans were low confidence in last %dh (%d of %d)",
				snap.LowConfidenceRate*100, snap.LookbackHours, snap.LowConfidence, snap.LabelScans,
			),
			Details: map[string]any{
				"low_confidence_rate": snap.LowConfidenceRate,
				"threshold":           a.cfg.LowConfidenceThreshold,
				"avg_confidence":      snap.AvgConfidence,
			},
			Timestamp: now,
		})
	}

	if snap.CriticalFindings > 0 || snap.ImmediateUrgency > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertImmediateAttention,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d critical finding(s) and %d report(s) needing immediate service in last %dh",
				snap.CriticalFindings, snap.ImmediateUrgency, snap.LookbackHours,
			),
			Details: map[string]any{
				"critical_findings": snap.CriticalFindings,
				"immediate_urgency": snap.ImmediateUrgency,
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
