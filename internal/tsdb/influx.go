// Package tsdb mirrors accepted measurements into InfluxDB for dashboards.
// The mirror is best effort: the relational store stays the source of truth.
package tsdb

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/resilience"
)

// Measurement is the InfluxDB measurement name for quality records.
const Measurement = "quality_measurement"

const sinkQueue = 1024

// Sink writes committed records to InfluxDB from a background loop.
type Sink struct {
	writer api.WriteAPIBlocking
	queue  chan []*write.Point
	policy resilience.Policy
	closer func()
}

// NewInfluxSink connects to an InfluxDB v2 server.
func NewInfluxSink(url, token, org, bucket string) *Sink {
	client := influxdb2.NewClient(url, token)
	s := NewSink(client.WriteAPIBlocking(org, bucket))
	s.closer = client.Close
	return s
}

// NewSink returns a Sink writing through w.
func NewSink(w api.WriteAPIBlocking) *Sink {
	p := resilience.DeliveryPolicy()
	p.OnRetry = resilience.LogRetries("influxdb")
	return &Sink{writer: w, queue: make(chan []*write.Point, sinkQueue), policy: p}
}

// Committed queues points for entries. It never blocks; batches that do not
// fit are dropped and logged.
func (s *Sink) Committed(_ context.Context, entries []model.Entry) {
	pts := make([]*write.Point, 0, len(entries))
	for _, e := range entries {
		pts = append(pts, Point(e))
	}
	select {
	case s.queue <- pts:
	default:
		zap.L().Warn("tsdb: queue full, dropping points", zap.Int("points", len(pts)))
	}
}

// Run writes queued batches until ctx is cancelled, then closes the client.
func (s *Sink) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "tsdb.sink"))
	defer func() {
		if s.closer != nil {
			s.closer()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("influx sink stopped", zap.Int("unwritten_batches", len(s.queue)))
			return
		case pts := <-s.queue:
			if err := s.write(ctx, pts); err != nil {
				log.Error("tsdb: write points", zap.Int("points", len(pts)), zap.Error(err))
			}
		}
	}
}

func (s *Sink) write(ctx context.Context, pts []*write.Point) error {
	return resilience.Do(ctx, s.policy, func(ctx context.Context) error {
		if err := s.writer.WritePoint(ctx, pts...); err != nil {
			// The client reports HTTP failures as plain errors; treat every
			// write failure as retryable.
			return resilience.NewTransientError(eris.Wrap(err, "tsdb: write"), 0)
		}
		return nil
	})
}

// Point converts an entry to a line-protocol point stamped with the time
// the measurement was taken.
func Point(e model.Entry) *write.Point {
	r := e.Record
	tags := map[string]string{
		"line_id":         strconv.FormatInt(r.LineID, 10),
		"presentation_id": strconv.FormatInt(r.PresentationID, 10),
		"control_type_id": strconv.FormatInt(r.ControlTypeID, 10),
		"parameter_id":    strconv.FormatInt(r.ParameterID, 10),
		"kind":            string(r.Kind),
	}
	fields := map[string]any{
		"record_id": r.ID,
		"alert":     e.Alert != nil,
	}
	if r.Value != nil {
		fields["value"] = *r.Value
	}
	if r.Passed != nil {
		fields["passed"] = *r.Passed
	}
	if r.Reference != "" {
		fields["reference"] = r.Reference
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.TakenAt.UTC().Truncate(time.Microsecond))
}
