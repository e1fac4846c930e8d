// Package monitoring watches quality KPIs and pushes notices to a webhook:
// periodic threshold checks and, optionally, one notice per newly raised
// alert.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// KPISource is the part of the store the collector reads.
type KPISource interface {
	SummarizeAlerts(ctx context.Context, since time.Time) (*model.AlertSummary, error)
	Conformity(ctx context.Context, from, to time.Time) ([]model.LineConformity, error)
}

// Snapshot is a point-in-time view of quality KPIs over a lookback window.
type Snapshot struct {
	Alerts         *model.AlertSummary    `json:"alerts"`
	PendingBacklog int                    `json:"pending_backlog"`
	Records        int                    `json:"records"`
	Conforming     int                    `json:"conforming"`
	ConformityRate float64                `json:"conformity_rate"`
	Lines          []model.LineConformity `json:"lines"`
	LookbackHours  int                    `json:"lookback_hours"`
	CollectedAt    time.Time              `json:"collected_at"`
}

// Collector gathers KPI snapshots.
type Collector struct {
	source KPISource
	now    func() time.Time
}

// NewCollector creates a collector reading from source.
func NewCollector(source KPISource) *Collector {
	return &Collector{source: source, now: time.Now}
}

// Collect builds a snapshot over the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	sum, err := c.source.SummarizeAlerts(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: summarize alerts")
	}
	snap.Alerts = sum
	snap.PendingBacklog = sum.Backlog()

	lines, err := c.source.Conformity(ctx, cutoff, now)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: conformity")
	}
	snap.Lines = lines
	for _, l := range lines {
		snap.Records += l.Records
		snap.Conforming += l.Conforming
	}
	total := model.LineConformity{Records: snap.Records, Conforming: snap.Conforming}
	total.ComputeRate()
	snap.ConformityRate = total.Rate

	return snap, nil
}
