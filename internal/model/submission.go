package model

import "time"

// Submission is a candidate measurement as entered by a caller. Value is the
// raw text: a number for NUMERIC parameters, a boolean word for CHECK ones.
type Submission struct {
	LineID         int64     `json:"line_id" validate:"gt=0"`
	PresentationID int64     `json:"presentation_id" validate:"gt=0"`
	ControlTypeID  int64     `json:"control_type_id" validate:"gt=0"`
	ParameterID    int64     `json:"parameter_id" validate:"gt=0"`
	Value          string    `json:"value"`
	TakenAt        time.Time `json:"taken_at" validate:"required"`
	Reference      string    `json:"reference" validate:"max=128"`
	Note           string    `json:"note" validate:"max=2000"`
}

// Key returns the series the submission targets.
func (s Submission) Key() SeriesKey {
	return SeriesKey{
		LineID:         s.LineID,
		PresentationID: s.PresentationID,
		ControlTypeID:  s.ControlTypeID,
		ParameterID:    s.ParameterID,
	}
}
