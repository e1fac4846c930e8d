package model

import (
	"math"
	"time"
)

// ParameterKind distinguishes measured quantities from pass/fail checks.
type ParameterKind string

const (
	KindNumeric ParameterKind = "NUMERIC"
	KindCheck   ParameterKind = "CHECK"
)

// Valid reports whether k is a known kind.
func (k ParameterKind) Valid() bool {
	return k == KindNumeric || k == KindCheck
}

// Line is a production line, the root of the hierarchy.
type Line struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Presentation is a sellable product form made on exactly one line.
type Presentation struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	LineID    int64      `json:"line_id"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ControlType is a category of inspection configured per line.
type ControlType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	LineID      int64     `json:"line_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Parameter is a quality attribute with its base acceptance limits.
// Limits are nil when not defined.
type Parameter struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Kind          ParameterKind `json:"kind"`
	Unit          string        `json:"unit,omitempty"`
	Lower         *float64      `json:"lower,omitempty"`
	Upper         *float64      `json:"upper,omitempty"`
	ControlTypeID int64         `json:"control_type_id"`
	CreatedAt     time.Time     `json:"created_at"`
	DeletedAt     *time.Time    `json:"deleted_at,omitempty"`
}

// ParameterOverride redefines a parameter for one presentation. Every nil
// field falls through to the base parameter.
type ParameterOverride struct {
	ID             int64          `json:"id"`
	PresentationID int64          `json:"presentation_id"`
	ParameterID    int64          `json:"parameter_id"`
	Kind           *ParameterKind `json:"kind,omitempty"`
	Unit           *string        `json:"unit,omitempty"`
	Lower          *float64       `json:"lower,omitempty"`
	Upper          *float64       `json:"upper,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// EffectiveParameterDefinition is a parameter after override coalescing.
// It is derived on every read and never stored.
type EffectiveParameterDefinition struct {
	ParameterID    int64         `json:"parameter_id"`
	PresentationID int64         `json:"presentation_id"`
	ControlTypeID  int64         `json:"control_type_id"`
	LineID         int64         `json:"line_id"`
	Name           string        `json:"name"`
	Kind           ParameterKind `json:"kind"`
	Unit           string        `json:"unit,omitempty"`
	Lower          *float64      `json:"lower,omitempty"`
	Upper          *float64      `json:"upper,omitempty"`
	Overridden     bool          `json:"overridden"`
	// Incomplete is set for NUMERIC definitions missing either bound.
	Incomplete bool `json:"incomplete"`
}

// LowerBound returns the lower spec limit, or -Inf when undefined.
func (d EffectiveParameterDefinition) LowerBound() float64 {
	if d.Lower == nil {
		return math.Inf(-1)
	}
	return *d.Lower
}

// UpperBound returns the upper spec limit, or +Inf when undefined.
func (d EffectiveParameterDefinition) UpperBound() float64 {
	if d.Upper == nil {
		return math.Inf(1)
	}
	return *d.Upper
}

// OutOfSpec reports whether x falls outside the spec limits.
func (d EffectiveParameterDefinition) OutOfSpec(x float64) bool {
	return x < d.LowerBound() || x > d.UpperBound()
}

// Float returns a pointer to v. Handy for building limits in literals.
func Float(v float64) *float64 {
	return &v
}
