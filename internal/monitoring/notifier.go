package monitoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// notifierQueue bounds how many alert notices wait for delivery.
const notifierQueue = 256

// Poster delivers a notice.
type Poster interface {
	Post(ctx context.Context, n Notice) error
}

// Notifier posts one notice per newly raised quality alert. Committed never
// blocks: notices that do not fit in the queue are dropped and logged.
type Notifier struct {
	poster  Poster
	limiter *rate.Limiter
	queue   chan Notice
}

// NewNotifier returns a Notifier delivering at most perSec notices per
// second through poster.
func NewNotifier(poster Poster, perSec float64) *Notifier {
	if perSec <= 0 {
		perSec = 1
	}
	return &Notifier{
		poster:  poster,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		queue:   make(chan Notice, notifierQueue),
	}
}

// Committed queues a notice for every entry that raised an alert.
func (n *Notifier) Committed(_ context.Context, entries []model.Entry) {
	for _, e := range entries {
		if e.Alert == nil {
			continue
		}
		notice := alertNotice(e)
		select {
		case n.queue <- notice:
		default:
			zap.L().Warn("monitoring: notifier queue full, dropping notice",
				zap.Int64("alert_id", e.Alert.ID))
		}
	}
}

// Run delivers queued notices until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.notifier"))
	log.Info("starting alert notifier", zap.Float64("rate_per_sec", float64(n.limiter.Limit())))

	for {
		select {
		case <-ctx.Done():
			log.Info("alert notifier stopped", zap.Int("undelivered", len(n.queue)))
			return
		case notice := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if err := n.poster.Post(ctx, notice); err != nil {
				log.Error("monitoring: failed to deliver alert notice",
					zap.Any("alert_id", notice.Details["alert_id"]),
					zap.Error(err),
				)
			}
		}
	}
}

func alertNotice(e model.Entry) Notice {
	a := e.Alert
	severity := "medium"
	if a.Kind == model.AlertOutOfSpec {
		severity = "high"
	}
	return Notice{
		Type:     NoticeNewAlert,
		Severity: severity,
		Message:  fmt.Sprintf("%s alert %d: %s", a.Kind, a.ID, a.Description),
		Details: map[string]any{
			"alert_id":  a.ID,
			"record_id": a.RecordID,
			"kind":      string(a.Kind),
			"series":    e.Record.Key().String(),
			"reference": a.Reference,
		},
		Timestamp: a.CreatedAt,
	}
}
