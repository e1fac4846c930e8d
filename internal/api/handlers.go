package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/export"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// exportLimit is the default row cap of a measurement export.
const exportLimit = 10000

func requestContext(r *http.Request) model.RequestContext {
	return model.RequestContext{
		RecorderID: strings.TrimSpace(r.Header.Get(RecorderHeader)),
		RequestID:  middleware.GetReqID(r.Context()),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Errorf("invalid request body: %v", err)
	}
	return nil
}

func (h *handler) definition(w http.ResponseWriter, r *http.Request) {
	paramID, err := pathID(r, "parameterID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	presID, err := requiredID(r.URL.Query(), "presentation_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	def, err := h.svc.ResolveEffectiveDefinition(r.Context(), paramID, presID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *handler) parametersFor(w http.ResponseWriter, r *http.Request) {
	presID, err := pathID(r, "presentationID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ctID, err := requiredID(r.URL.Query(), "control_type_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	defs, err := h.svc.ListParametersFor(r.Context(), presID, ctID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parameters": defs})
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Measurements []measurementInput `json:"measurements"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	subs := make([]model.Submission, len(req.Measurements))
	for i, m := range req.Measurements {
		subs[i] = m.submission()
	}

	results, err := h.svc.SubmitBatch(r.Context(), requestContext(r), subs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"results": results})
}

func (h *handler) series(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := seriesKey(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	from, to, err := queryRange(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	s, err := h.svc.GetSeries(r.Context(), key, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) exportSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	key, err := seriesKey(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	from, to, err := queryRange(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	s, err := h.svc.GetSeries(r.Context(), key, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, format, export.FileName(export.SeriesFilePrefix(key), format))
	if format == export.CSV {
		err = export.WriteSeriesCSV(w, s)
	} else {
		err = export.WriteSeriesXLSX(w, s)
	}
	if err != nil {
		zap.L().Error("series export failed", zap.String("series", key.String()), zap.Error(err))
	}
}

func attachment(w http.ResponseWriter, f export.Format, name string) {
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
}

func alertFilter(r *http.Request) (store.AlertFilter, error) {
	q := r.URL.Query()
	var f store.AlertFilter
	var err error
	if f.LineID, err = queryID(q, "line_id"); err != nil {
		return f, err
	}
	if f.PresentationID, err = queryID(q, "presentation_id"); err != nil {
		return f, err
	}
	if f.ControlTypeID, err = queryID(q, "control_type_id"); err != nil {
		return f, err
	}
	if f.ParameterID, err = queryID(q, "parameter_id"); err != nil {
		return f, err
	}
	if raw := q.Get("state"); raw != "" {
		st, ok := model.ParseAlertState(raw)
		if !ok {
			return f, eris.Errorf("unknown state %q", raw)
		}
		f.State = st
	}
	if raw := q.Get("kind"); raw != "" {
		k := model.AlertKind(strings.ToUpper(strings.TrimSpace(raw)))
		if k != model.AlertOutOfSpec && k != model.AlertCheckFailed {
			return f, eris.Errorf("unknown kind %q", raw)
		}
		f.Kind = k
	}
	f.Reference = strings.TrimSpace(q.Get("reference"))
	if f.From, f.To, err = queryRange(q); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit", store.DefaultListLimit); err != nil {
		return f, err
	}
	f.Offset, err = queryInt(q, "offset", 0)
	return f, err
}

// measurementFilter reads a record search. Every field is optional.
func measurementFilter(r *http.Request, defLimit int) (store.MeasurementFilter, error) {
	q := r.URL.Query()
	var f store.MeasurementFilter
	var err error
	if f.LineID, err = queryID(q, "line_id"); err != nil {
		return f, err
	}
	if f.PresentationID, err = queryID(q, "presentation_id"); err != nil {
		return f, err
	}
	if f.ControlTypeID, err = queryID(q, "control_type_id"); err != nil {
		return f, err
	}
	if f.ParameterID, err = queryID(q, "parameter_id"); err != nil {
		return f, err
	}
	if raw := q.Get("kind"); raw != "" {
		k := model.ParameterKind(strings.ToUpper(strings.TrimSpace(raw)))
		if !k.Valid() {
			return f, eris.Errorf("unknown kind %q", raw)
		}
		f.Kind = k
	}
	f.Reference = strings.TrimSpace(q.Get("reference"))
	if f.From, f.To, err = queryRange(q); err != nil {
		return f, err
	}
	f.Limit, err = queryInt(q, "limit", defLimit)
	return f, err
}

func (h *handler) listMeasurements(w http.ResponseWriter, r *http.Request) {
	f, err := measurementFilter(r, store.DefaultListLimit)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	recs, err := h.svc.ListMeasurements(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.MeasurementRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"measurements": recs})
}

func (h *handler) exportMeasurements(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	f, err := measurementFilter(r, exportLimit)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	recs, err := h.svc.ListMeasurements(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, format, export.FileName("measurements", format))
	if format == export.CSV {
		err = export.WriteMeasurementsCSV(w, recs)
	} else {
		err = export.WriteMeasurementsXLSX(w, recs)
	}
	if err != nil {
		zap.L().Error("measurement export failed", zap.Error(err))
	}
}

func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := alertFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *handler) exportAlerts(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	f, err := alertFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, format, export.FileName("alerts", format))
	if format == export.CSV {
		err = export.WriteAlertsCSV(w, alerts)
	} else {
		err = export.WriteAlertsXLSX(w, alerts)
	}
	if err != nil {
		zap.L().Error("alert export failed", zap.Error(err))
	}
}

func (h *handler) alertSummary(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r.URL.Query(), "lookback_hours", 24)
	if err != nil || hours == 0 {
		badRequest(w, "lookback_hours must be a positive integer")
		return
	}
	sum, err := h.svc.AlertSummary(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": sum,
		"backlog": sum.Backlog(),
	})
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "alertID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		State string `json:"state"`
		Note  string `json:"note"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	target, ok := model.ParseAlertState(req.State)
	if !ok {
		badRequest(w, fmt.Sprintf("unknown state %q", req.State))
		return
	}

	a, err := h.svc.TransitionAlert(r.Context(), requestContext(r), id, target, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
