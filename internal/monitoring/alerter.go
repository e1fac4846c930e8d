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

	"github.com/BrendaWanda/ControlCalidad/internal/config"
	"github.com/BrendaWanda/ControlCalidad/internal/resilience"
)

// NoticeType identifies what a notice reports.
type NoticeType string

const (
	NoticePendingBacklog NoticeType = "pending_backlog"
	NoticeLowConformity  NoticeType = "low_conformity"
	NoticeLineConformity NoticeType = "line_conformity"
	NoticeNewAlert       NoticeType = "new_alert"
)

// minRecordsForConformity keeps a handful of records from paging anyone.
const minRecordsForConformity = 5

// Notice is one message posted to the webhook.
type Notice struct {
	Type      NoticeType     `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// notices when they are breached.
type Alerter struct {
	cfg     config.MonitoringConfig
	webhook *Webhook
}

// NewAlerter creates an Alerter posting to webhook, which may be nil.
func NewAlerter(cfg config.MonitoringConfig, webhook *Webhook) *Alerter {
	return &Alerter{cfg: cfg, webhook: webhook}
}

// Evaluate checks the snapshot against thresholds and returns any notices.
func (a *Alerter) Evaluate(snap *Snapshot) []Notice {
	var out []Notice
	now := snap.CollectedAt

	if a.cfg.PendingBacklogThreshold > 0 && snap.PendingBacklog >= a.cfg.PendingBacklogThreshold {
		out = append(out, Notice{
			Type:     NoticePendingBacklog,
			Severity: "high",
			Message: fmt.Sprintf("%d alerts awaiting review (threshold %d) raised in last %dh",
				snap.PendingBacklog, a.cfg.PendingBacklogThreshold, snap.LookbackHours),
			Details: map[string]any{
				"backlog":   snap.PendingBacklog,
				"threshold": a.cfg.PendingBacklogThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ConformityThreshold > 0 && snap.Records >= minRecordsForConformity && snap.ConformityRate < a.cfg.ConformityThreshold {
		out = append(out, Notice{
			Type:     NoticeLowConformity,
			Severity: "high",
			Message: fmt.Sprintf("Conformity %.1f%% below threshold %.1f%% (%d of %d records in last %dh)",
				snap.ConformityRate, a.cfg.ConformityThreshold, snap.Conforming, snap.Records, snap.LookbackHours),
			Details: map[string]any{
				"rate":       snap.ConformityRate,
				"threshold":  a.cfg.ConformityThreshold,
				"records":    snap.Records,
				"conforming": snap.Conforming,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ConformityThreshold > 0 {
		for _, l := range snap.Lines {
			if l.Records < minRecordsForConformity || l.Rate >= a.cfg.ConformityThreshold {
				continue
			}
			out = append(out, Notice{
				Type:     NoticeLineConformity,
				Severity: "medium",
				Message:  fmt.Sprintf("Line %s conformity %.1f%% below threshold %.1f%%", l.LineName, l.Rate, a.cfg.ConformityThreshold),
				Details: map[string]any{
					"line_id": l.LineID,
					"rate":    l.Rate,
					"records": l.Records,
				},
				Timestamp: now,
			})
		}
	}

	return out
}

// SendNotices delivers notices to the webhook and returns how many went out.
func (a *Alerter) SendNotices(ctx context.Context, notices []Notice) int {
	if a.webhook == nil || len(notices) == 0 {
		return 0
	}

	sent := 0
	for _, n := range notices {
		if err := a.webhook.Post(ctx, n); err != nil {
			zap.L().Error("monitoring: failed to send notice",
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: notice sent",
			zap.String("type", string(n.Type)),
			zap.String("severity", n.Severity),
		)
		sent++
	}
	return sent
}

// Webhook posts notices as JSON with retries. A breaker stops hammering a
// target that keeps failing.
type Webhook struct {
	url     string
	client  *http.Client
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewWebhook returns a Webhook for url.
func NewWebhook(url string) *Webhook {
	p := resilience.DeliveryPolicy()
	p.OnRetry = resilience.LogRetries("webhook")
	b := resilience.NewBreaker(5, time.Minute)
	b.OnStateChange(func(from, to resilience.BreakerState) {
		zap.L().Warn("monitoring: webhook breaker state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		policy:  p,
		breaker: b,
	}
}

// Post sends one notice.
func (w *Webhook) Post(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notice")
	}
	return w.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, w.policy, func(ctx context.Context) error {
			return w.send(ctx, payload)
		})
	})
}

func (w *Webhook) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.CheckStatus("monitoring: webhook", resp.StatusCode)
}
