// Package validation checks candidate measurements before they are accepted.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// Validator checks submissions. It never stops at the first problem: every
// method returns all errors it found.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for the future-timestamp check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New returns a Validator.
func New(opts ...Option) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	out := &Validator{v: v, now: time.Now}
	for _, o := range opts {
		o(out)
	}
	return out
}

// Structural checks the shape of a submission and the caller identity,
// independent of any parameter definition.
func (v *Validator) Structural(index int, rc model.RequestContext, sub model.Submission) []model.ValidationError {
	var errs []model.ValidationError

	if err := v.v.Struct(sub); err != nil {
		if fes, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fes {
				errs = append(errs, model.ValidationError{
					Index:   index,
					Field:   fe.Field(),
					Code:    model.ErrInvalidField,
					Message: describe(fe),
				})
			}
		} else {
			errs = append(errs, model.ValidationError{
				Index: index, Field: "submission", Code: model.ErrInvalidField, Message: err.Error(),
			})
		}
	}

	if strings.TrimSpace(rc.RecorderID) == "" {
		errs = append(errs, model.ValidationError{
			Index: index, Field: "recorder_id", Code: model.ErrInvalidField, Message: "recorder is required",
		})
	}

	if !sub.TakenAt.IsZero() && sub.TakenAt.After(v.now()) {
		errs = append(errs, model.ValidationError{
			Index:   index,
			Field:   "taken_at",
			Code:    model.ErrFutureTimestamp,
			Message: fmt.Sprintf("timestamp %s is in the future", sub.TakenAt.Format(time.RFC3339)),
		})
	}
	return errs
}

// Validate runs the structural checks and then checks the value against the
// effective definition. On success it returns the record to persist, without
// an id.
func (v *Validator) Validate(index int, rc model.RequestContext, sub model.Submission, def model.EffectiveParameterDefinition) (*model.MeasurementRecord, []model.ValidationError) {
	errs := v.Structural(index, rc, sub)

	if def.LineID != 0 && sub.LineID != def.LineID {
		errs = append(errs, model.ValidationError{
			Index: index, Field: "line_id", Code: model.ErrIncompatibleHierarchy,
			Message: fmt.Sprintf("presentation %d belongs to line %d, not %d", def.PresentationID, def.LineID, sub.LineID),
		})
	}
	if sub.ControlTypeID != def.ControlTypeID {
		errs = append(errs, model.ValidationError{
			Index: index, Field: "control_type_id", Code: model.ErrIncompatibleHierarchy,
			Message: fmt.Sprintf("parameter %d belongs to control type %d, not %d", def.ParameterID, def.ControlTypeID, sub.ControlTypeID),
		})
	}

	rec := &model.MeasurementRecord{
		LineID:         sub.LineID,
		PresentationID: sub.PresentationID,
		ControlTypeID:  sub.ControlTypeID,
		ParameterID:    sub.ParameterID,
		Kind:           def.Kind,
		TakenAt:        sub.TakenAt.UTC(),
		Reference:      strings.TrimSpace(sub.Reference),
		RecorderID:     strings.TrimSpace(rc.RecorderID),
		Note:           sub.Note,
	}

	switch def.Kind {
	case model.KindNumeric:
		x, verr := ParseNumeric(sub.Value)
		if verr != nil {
			verr.Index = index
			errs = append(errs, *verr)
		} else {
			rec.Value = &x
		}
	case model.KindCheck:
		ok, verr := ParseCheck(sub.Value)
		if verr != nil {
			verr.Index = index
			errs = append(errs, *verr)
		} else {
			rec.Passed = &ok
		}
	default:
		errs = append(errs, model.ValidationError{
			Index: index, Field: "kind", Code: model.ErrInvalidField,
			Message: fmt.Sprintf("unknown parameter kind %q", def.Kind),
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rec, nil
}

// ParseNumeric parses a measured value. Blank input is rejected rather than
// read as zero. A single decimal comma is accepted ("7,5"), except where it
// could be a thousands separator ("1,000"); "0,125" is still a decimal.
func ParseNumeric(raw string) (float64, *model.ValidationError) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &model.ValidationError{Field: "value", Code: model.ErrMissingValue, Message: "a numeric value is required"}
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if ambiguousComma(s) {
			return 0, &model.ValidationError{
				Field: "value", Code: model.ErrInvalidValue,
				Message: fmt.Sprintf("%q is ambiguous: the comma may be a thousands separator", raw),
			}
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, &model.ValidationError{Field: "value", Code: model.ErrInvalidValue, Message: fmt.Sprintf("%q is not a finite number", raw)}
	}
	return x, nil
}

// ambiguousComma reports whether the single comma in s is followed by exactly
// three digits and preceded by a non-zero integer part.
func ambiguousComma(s string) bool {
	whole, frac, _ := strings.Cut(s, ",")
	whole = strings.TrimLeft(whole, "+-")
	if len(frac) != 3 || whole == "" || strings.Trim(whole, "0") == "" {
		return false
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseCheck parses a check result. Blank input means the check was not met.
func ParseCheck(raw string) (bool, *model.ValidationError) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return false, nil
	case "yes", "y", "si", "sí", "ok", "pass":
		return true, nil
	case "no", "n", "fail":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &model.ValidationError{Field: "value", Code: model.ErrInvalidValue, Message: fmt.Sprintf("%q is not a boolean", raw)}
	}
	return b, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
