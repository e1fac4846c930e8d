package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/config"
)

// Checker runs periodic KPI checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background KPI checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting KPI checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("KPI checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot, evaluates it and sends any notices. It
// returns the notices triggered.
func (c *Checker) Check(ctx context.Context) []Notice {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect KPIs", zap.Error(err))
		return nil
	}

	notices := c.alerter.Evaluate(snap)
	if len(notices) == 0 {
		log.Debug("monitoring: no thresholds breached")
		return nil
	}

	sent := c.alerter.SendNotices(ctx, notices)
	log.Info("monitoring: KPI check complete",
		zap.Int("notices_triggered", len(notices)),
		zap.Int("notices_sent", sent),
	)
	return notices
}
