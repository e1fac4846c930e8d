package model

import (
	"strings"
	"time"
)

// AlertKind identifies why an alert was raised.
type AlertKind string

const (
	AlertOutOfSpec   AlertKind = "OUT_OF_SPEC"
	AlertCheckFailed AlertKind = "CHECK_FAILED"
)

// AlertState is the review state of an alert.
type AlertState string

const (
	AlertPending    AlertState = "PENDING"
	AlertConfirmed  AlertState = "CONFIRMED"
	AlertInProgress AlertState = "IN_PROGRESS"
	AlertRejected   AlertState = "REJECTED"
)

// ParseAlertState accepts any casing and "-" or " " separators.
func ParseAlertState(s string) (AlertState, bool) {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	switch st := AlertState(norm); st {
	case AlertPending, AlertConfirmed, AlertInProgress, AlertRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed.
func (s AlertState) Terminal() bool {
	return s == AlertConfirmed || s == AlertRejected
}

// Alert is raised in reaction to one measurement record. Limits are a
// snapshot taken at evaluation time.
type Alert struct {
	ID             int64      `json:"id"`
	Kind           AlertKind  `json:"kind"`
	State          AlertState `json:"state"`
	Description    string     `json:"description"`
	RecordID       int64      `json:"record_id"`
	LineID         int64      `json:"line_id"`
	PresentationID int64      `json:"presentation_id"`
	ControlTypeID  int64      `json:"control_type_id"`
	ParameterID    int64      `json:"parameter_id"`
	Observed       *float64   `json:"observed,omitempty"`
	Lower          *float64   `json:"lower,omitempty"`
	Upper          *float64   `json:"upper,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	ReviewerID     string     `json:"reviewer_id,omitempty"`
	ReviewNote     string     `json:"review_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AlertTransition is a compare-and-swap request on an alert's state.
type AlertTransition struct {
	ID         int64
	From       AlertState
	To         AlertState
	ReviewerID string
	Note       string
	At         time.Time
}
