// Package api binds the quality service to HTTP/JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

// RecorderHeader carries the identity of the operator or reviewer.
const RecorderHeader = "X-Recorder-ID"

// Service is the subset of quality.Service the API serves.
type Service interface {
	ResolveEffectiveDefinition(ctx context.Context, parameterID, presentationID int64) (*model.EffectiveParameterDefinition, error)
	ListParametersFor(ctx context.Context, presentationID, controlTypeID int64) ([]model.EffectiveParameterDefinition, error)
	SubmitBatch(ctx context.Context, rc model.RequestContext, subs []model.Submission) ([]quality.SubmitResult, error)
	GetSeries(ctx context.Context, key model.SeriesKey, from, to time.Time) (*quality.Series, error)
	ListMeasurements(ctx context.Context, filter store.MeasurementFilter) ([]model.MeasurementRecord, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error)
	AlertSummary(ctx context.Context, lookback time.Duration) (*model.AlertSummary, error)
	TransitionAlert(ctx context.Context, rc model.RequestContext, id int64, target model.AlertState, note string) (*model.Alert, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type handler struct {
	svc    Service
	pinger Pinger
}

// NewRouter returns the HTTP handler for every endpoint.
func NewRouter(svc Service, pinger Pinger, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &handler{svc: svc, pinger: pinger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RecorderHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Get("/parameters/{parameterID}/definition", h.definition)
		r.Get("/presentations/{presentationID}/parameters", h.parametersFor)
		r.Post("/measurements", h.submit)
		r.Get("/measurements", h.listMeasurements)
		r.Get("/measurements/export", h.exportMeasurements)
		r.Get("/series", h.series)
		r.Get("/series/export", h.exportSeries)
		r.Get("/alerts", h.listAlerts)
		r.Get("/alerts/export", h.exportAlerts)
		r.Get("/alerts/summary", h.alertSummary)
		r.Post("/alerts/{alertID}/transition", h.transition)
	})
	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
