package model

import (
	"fmt"
	"time"
)

// SeriesKey identifies one measurement time series.
type SeriesKey struct {
	LineID         int64 `json:"line_id"`
	PresentationID int64 `json:"presentation_id"`
	ControlTypeID  int64 `json:"control_type_id"`
	ParameterID    int64 `json:"parameter_id"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.LineID, k.PresentationID, k.ControlTypeID, k.ParameterID)
}

// MeasurementRecord is an accepted measurement. Records are append-only.
// ID is assigned by the store at insert time and doubles as the insertion
// sequence used to break timestamp ties.
type MeasurementRecord struct {
	ID             int64         `json:"id"`
	LineID         int64         `json:"line_id"`
	PresentationID int64         `json:"presentation_id"`
	ControlTypeID  int64         `json:"control_type_id"`
	ParameterID    int64         `json:"parameter_id"`
	Kind           ParameterKind `json:"kind"`
	Value          *float64      `json:"value,omitempty"`
	Passed         *bool         `json:"passed,omitempty"`
	TakenAt        time.Time     `json:"taken_at"`
	Reference      string        `json:"reference,omitempty"`
	RecorderID     string        `json:"recorder_id"`
	Note           string        `json:"note,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Key returns the series the record belongs to.
func (r MeasurementRecord) Key() SeriesKey {
	return SeriesKey{
		LineID:         r.LineID,
		PresentationID: r.PresentationID,
		ControlTypeID:  r.ControlTypeID,
		ParameterID:    r.ParameterID,
	}
}

// Entry pairs a record with the alert raised for it, if any. The store
// writes an entry atomically.
type Entry struct {
	Record MeasurementRecord `json:"record"`
	Alert  *Alert            `json:"alert,omitempty"`
}

// RequestContext carries the caller identity into write operations.
type RequestContext struct {
	RecorderID string
	RequestID  string
}
