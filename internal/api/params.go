package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

const dateLayout = "2006-01-02"

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

// queryID parses an optional id. Absent means zero.
func queryID(q url.Values, name string) (int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func requiredID(q url.Values, name string) (int64, error) {
	id, err := queryID(q, name)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, eris.Errorf("%s is required", name)
	}
	return id, nil
}

func queryInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// queryTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func queryTime(q url.Values, name string, upper bool) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, eris.Errorf("%s must be RFC 3339 or YYYY-MM-DD, got %q", name, raw)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func queryRange(q url.Values) (from, to time.Time, err error) {
	if from, err = queryTime(q, "from", false); err != nil {
		return
	}
	if to, err = queryTime(q, "to", true); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		err = eris.Errorf("from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return
}

func seriesKey(q url.Values) (model.SeriesKey, error) {
	var key model.SeriesKey
	var err error
	if key.LineID, err = requiredID(q, "line_id"); err != nil {
		return key, err
	}
	if key.PresentationID, err = requiredID(q, "presentation_id"); err != nil {
		return key, err
	}
	if key.ControlTypeID, err = requiredID(q, "control_type_id"); err != nil {
		return key, err
	}
	key.ParameterID, err = requiredID(q, "parameter_id")
	return key, err
}

// rawValue accepts a measurement value as a JSON string, number or boolean
// and keeps its text for validation.
type rawValue string

func (v *rawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = rawValue(s)
	default:
		*v = rawValue(b)
	}
	return nil
}

type measurementInput struct {
	LineID         int64     `json:"line_id"`
	PresentationID int64     `json:"presentation_id"`
	ControlTypeID  int64     `json:"control_type_id"`
	ParameterID    int64     `json:"parameter_id"`
	Value          rawValue  `json:"value"`
	TakenAt        time.Time `json:"taken_at"`
	Reference      string    `json:"reference"`
	Note           string    `json:"note"`
}

func (in measurementInput) submission() model.Submission {
	return model.Submission{
		LineID:         in.LineID,
		PresentationID: in.PresentationID,
		ControlTypeID:  in.ControlTypeID,
		ParameterID:    in.ParameterID,
		Value:          string(in.Value),
		TakenAt:        in.TakenAt,
		Reference:      in.Reference,
		Note:           in.Note,
	}
}
