package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/niche-scout/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSourceFailureRate AlertType = "source_failure_rate"
	AlertCircuitOpen       AlertType = "circuit_open"
	AlertStageFailure      AlertType = "stage_failure"
	AlertDLQDepth          AlertType = "dlq_depth"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a RunSnapshot against configured thresholds
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
func (a *Alerter) Evaluate(snap *RunSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, s := range snap.Sources {
		if s.State == "open" {
			alerts = append(alerts, Alert{
				Type:     AlertCircuitOpen,
				Severity: "high",
				RunID:    snap.RunID,
				Message:  fmt.Sprintf("Circuit for %s is open (%d failures, %d rejected calls)", s.Source, s.Failures, s.Rejected),
				Details: map[string]any{
					"source":   s.Source,
					"failures": s.Failures,
					"rejected": s.Rejected,
				},
				Timestamp: now,
			})
		}

		if s.Calls >= a.cfg.MinCalls && s.Calls > 0 && s.FailRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSourceFailureRate,
				Severity: "medium",
				RunID:    snap.RunID,
				Message: fmt.Sprintf(
					"%s failure rate %.1f%% exceeds threshold %.1f%% (%d of %d calls)",
					s.Source, s.FailRate*100, a.cfg.FailureRateThreshold*100, s.Failures+s.Rejected, s.Calls,
				),
				Details: map[string]any{
					"source":       s.Source,
					"failure_rate": s.FailRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"calls":        s.Calls,
				},
				Timestamp: now,
			})
		}
	}

	if len(snap.FailedStages) > 0 {
		stages := make([]string, len(snap.FailedStages))
		for i, st := range snap.FailedStages {
			stages[i] = string(st)
		}
		alerts = append(alerts, Alert{
			Type:     AlertStageFailure,
			Severity: "high",
			RunID:    snap.RunID,
			Message:  fmt.Sprintf("Every sub-task failed in stage(s): %s", strings.Join(stages, ", ")),
			Details: map[string]any{
				"stages":     stages,
				"candidates": snap.Candidates,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DLQThreshold > 0 && snap.DLQDepth >= a.cfg.DLQThreshold {
		alerts = append(alerts, Alert{
			Type:      AlertDLQDepth,
			Severity:  "low",
			RunID:     snap.RunID,
			Message:   fmt.Sprintf("%d sub-tasks exhausted their attempts", snap.DLQDepth),
			Details:   map[string]any{"dlq_depth": snap.DLQDepth, "threshold": a.cfg.DLQThreshold},
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
