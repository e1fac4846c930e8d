// Package quality is the entry point for measurement intake, series reads and
// alert review. It ties resolution, validation, SPC and alerting to the store.
package quality

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/alerting"
	"github.com/BrendaWanda/ControlCalidad/internal/hierarchy"
	"github.com/BrendaWanda/ControlCalidad/internal/metrics"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
	"github.com/BrendaWanda/ControlCalidad/internal/validation"
)

// DefaultSubmitWindow is how many prior points classify a new submission.
const DefaultSubmitWindow = 100

// pendingSeq orders not-yet-persisted points after every stored record.
const pendingSeq = math.MaxInt64 / 2

// Observer is told about entries after they commit. Observers must not block
// and their failures never affect the submission.
type Observer interface {
	Committed(ctx context.Context, entries []model.Entry)
}

// Service implements the measurement operations.
type Service struct {
	store     store.Store
	resolver  *hierarchy.Resolver
	validator *validation.Validator
	alerts    *alerting.Manager
	metrics   *metrics.Recorder
	observers []Observer
	window    int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSubmitWindow sets how many prior points classify a new submission.
func WithSubmitWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithObserver adds a post-commit observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithClock overrides the time source for validation and reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service backed by st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		resolver: hierarchy.NewResolver(st),
		alerts:   alerting.NewManager(st),
		window:   DefaultSubmitWindow,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.validator = validation.New(validation.WithClock(s.now))
	return s
}

// SubmitResult is the outcome of one accepted submission.
type SubmitResult struct {
	RecordID       int64                   `json:"record_id"`
	AlertID        *int64                  `json:"alert_id,omitempty"`
	Record         model.MeasurementRecord `json:"record"`
	Alert          *model.Alert            `json:"alert,omitempty"`
	Classification *spc.Classification     `json:"classification,omitempty"`
}

// ResolveEffectiveDefinition returns the definition of parameterID as
// measured on presentationID.
func (s *Service) ResolveEffectiveDefinition(ctx context.Context, parameterID, presentationID int64) (*model.EffectiveParameterDefinition, error) {
	return s.resolver.Resolve(ctx, parameterID, presentationID)
}

// ListParametersFor returns the effective definitions of every parameter of
// controlTypeID as measured on presentationID.
func (s *Service) ListParametersFor(ctx context.Context, presentationID, controlTypeID int64) ([]model.EffectiveParameterDefinition, error) {
	return s.resolver.ListParametersFor(ctx, presentationID, controlTypeID)
}

// SubmitMeasurement validates and records one measurement. Validation
// problems come back as model.ValidationErrors.
func (s *Service) SubmitMeasurement(ctx context.Context, rc model.RequestContext, sub model.Submission) (*SubmitResult, error) {
	res, err := s.SubmitBatch(ctx, rc, []model.Submission{sub})
	if err != nil {
		return nil, err
	}
	return &res[0], nil
}

// SubmitBatch validates every submission and, only if all pass, records them
// with their alerts in one transaction. All validation problems are returned
// together as model.ValidationErrors, indexed by submission.
func (s *Service) SubmitBatch(ctx context.Context, rc model.RequestContext, subs []model.Submission) ([]SubmitResult, error) {
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}
	log := zap.L().With(zap.String("request_id", rc.RequestID), zap.String("recorder", rc.RecorderID))

	if len(subs) == 0 {
		return nil, model.ValidationErrors{{Field: "measurements", Code: model.ErrInvalidField, Message: "at least one measurement is required"}}
	}

	recs := make([]*model.MeasurementRecord, len(subs))
	defs := make([]*model.EffectiveParameterDefinition, len(subs))
	var verrs model.ValidationErrors
	for i, sub := range subs {
		if sub.ParameterID <= 0 || sub.PresentationID <= 0 {
			verrs = append(verrs, s.validator.Structural(i, rc, sub)...)
			continue
		}
		def, err := s.resolveFor(ctx, sub)
		if err != nil {
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				return nil, err
			}
			ve.Index = i
			verrs = append(verrs, s.validator.Structural(i, rc, sub)...)
			verrs = append(verrs, *ve)
			continue
		}
		rec, errs := s.validator.Validate(i, rc, sub, *def)
		if len(errs) > 0 {
			verrs = append(verrs, errs...)
			continue
		}
		recs[i], defs[i] = rec, def
	}
	if len(verrs) > 0 {
		s.metrics.Rejected(verrs)
		log.Info("submission rejected", zap.Int("entries", len(subs)), zap.Int("errors", len(verrs)))
		return nil, verrs
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "quality: submit")
	}

	entries, classes, err := s.evaluate(ctx, recs, defs)
	if err != nil {
		return nil, err
	}

	committed, err := s.store.AppendMeasurements(ctx, entries)
	if err != nil {
		return nil, eris.Wrap(err, "quality: persist measurements")
	}

	s.metrics.Accepted(committed)
	for _, o := range s.observers {
		o.Committed(ctx, committed)
	}

	out := make([]SubmitResult, len(committed))
	for i, e := range committed {
		out[i] = SubmitResult{RecordID: e.Record.ID, Record: e.Record, Alert: e.Alert, Classification: classes[i]}
		if e.Alert != nil {
			id := e.Alert.ID
			out[i].AlertID = &id
			log.Warn("alert raised",
				zap.Int64("alert_id", id),
				zap.String("kind", string(e.Alert.Kind)),
				zap.Int64("record_id", e.Record.ID),
				zap.String("series", e.Record.Key().String()),
			)
		}
	}
	log.Info("measurements recorded", zap.Int("entries", len(committed)))
	return out, nil
}

// resolveFor resolves the definition a submission targets. Lookup problems
// the caller can fix come back as *model.ValidationError; configuration and
// infrastructure failures come back as plain errors.
func (s *Service) resolveFor(ctx context.Context, sub model.Submission) (*model.EffectiveParameterDefinition, error) {
	def, err := s.resolver.Resolve(ctx, sub.ParameterID, sub.PresentationID)
	switch {
	case err == nil:
		return def, nil
	case errors.Is(err, model.ErrNotFound):
		return nil, &model.ValidationError{Field: "parameter_id", Code: model.ErrNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrIncompatibleHierarchy):
		return nil, &model.ValidationError{Field: "presentation_id", Code: model.ErrIncompatibleHierarchy, Message: err.Error()}
	default:
		return nil, eris.Wrapf(err, "quality: resolve parameter %d on presentation %d", sub.ParameterID, sub.PresentationID)
	}
}

// evaluate classifies each validated record against its recent series and
// decides its alert. Records earlier in the same batch count as part of the
// series.
func (s *Service) evaluate(ctx context.Context, recs []*model.MeasurementRecord, defs []*model.EffectiveParameterDefinition) ([]model.Entry, []*spc.Classification, error) {
	entries := make([]model.Entry, len(recs))
	classes := make([]*spc.Classification, len(recs))
	history := map[model.SeriesKey][]spc.Point{}

	for i, rec := range recs {
		def := defs[i]
		var cls *spc.Classification

		if def.Kind == model.KindNumeric && rec.Value != nil {
			key := rec.Key()
			pts, ok := history[key]
			if !ok {
				f := store.SeriesFilter(key)
				f.Limit, f.Latest = s.window, true
				prior, err := s.store.ListMeasurements(ctx, f)
				if err != nil {
					return nil, nil, eris.Wrapf(err, "quality: load series %s", key)
				}
				pts = spc.PointsFromRecords(prior)
			}
			seq := pendingSeq + int64(i)
			pts = append(pts, spc.Point{Seq: seq, Timestamp: rec.TakenAt, Value: *rec.Value})
			history[key] = pts

			ordered := append([]spc.Point(nil), pts...)
			spc.SortPoints(ordered)
			start := time.Now()
			res, err := spc.Evaluate(ordered, *def)
			s.metrics.ObserveSPC(time.Since(start))
			if err != nil {
				return nil, nil, eris.Wrapf(err, "quality: evaluate series %s", key)
			}
			for j := range res.Points {
				if res.Points[j].Seq == seq {
					c := res.Points[j]
					cls = &c
					break
				}
			}
		}

		entries[i] = model.Entry{Record: *rec, Alert: alerting.RaiseIfNeeded(*rec, *def, cls)}
		classes[i] = cls
	}
	return entries, classes, nil
}

// TransitionAlert moves an alert to target on behalf of the reviewer in rc.
func (s *Service) TransitionAlert(ctx context.Context, rc model.RequestContext, id int64, target model.AlertState, note string) (*model.Alert, error) {
	a, err := s.alerts.Transition(ctx, rc, id, target, note)
	switch {
	case err == nil:
		s.metrics.Transition(target, "ok")
	case errors.Is(err, model.ErrInvalidTransition):
		s.metrics.Transition(target, "invalid")
	case errors.Is(err, model.ErrConflict):
		s.metrics.Transition(target, "conflict")
	default:
		s.metrics.Transition(target, "error")
	}
	return a, err
}

// ListAlerts returns alerts matching filter, newest first.
func (s *Service) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error) {
	alerts, err := s.store.ListAlerts(ctx, filter)
	return alerts, eris.Wrap(err, "quality: list alerts")
}

// ListMeasurements searches recorded measurements over a partial filter,
// such as every record of one work order or one line. Without a limit the
// newest store.DefaultListLimit records are returned, in (taken_at, id) order.
func (s *Service) ListMeasurements(ctx context.Context, filter store.MeasurementFilter) ([]model.MeasurementRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = store.DefaultListLimit
	}
	filter.Latest = true
	recs, err := s.store.ListMeasurements(ctx, filter)
	return recs, eris.Wrap(err, "quality: list measurements")
}

// AlertSummary aggregates alerts raised within lookback of now.
func (s *Service) AlertSummary(ctx context.Context, lookback time.Duration) (*model.AlertSummary, error) {
	sum, err := s.store.SummarizeAlerts(ctx, s.now().UTC().Add(-lookback))
	return sum, eris.Wrap(err, "quality: summarize alerts")
}
