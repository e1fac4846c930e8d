package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Error taxonomy. Callers match with errors.Is; implementations wrap these
// with eris.Wrapf to add the offending ids.
var (
	ErrNotFound              = eris.New("not found")
	ErrIncompatibleHierarchy = eris.New("incompatible hierarchy")
	ErrInvalidLimits         = eris.New("invalid limits")
	ErrMissingValue          = eris.New("missing value")
	ErrInvalidValue          = eris.New("invalid value")
	ErrInvalidField          = eris.New("invalid field")
	ErrFutureTimestamp       = eris.New("future timestamp")
	ErrUnsorted              = eris.New("series not sorted")
	ErrNotNumeric            = eris.New("series is not numeric")
	ErrInvalidTransition     = eris.New("invalid transition")
	ErrConflict              = eris.New("concurrent update")
)

// ValidationError describes one problem with one submitted field.
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Code    error  `json:"-"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("entry %d: %s: %s", e.Index, e.Field, e.Message)
}

// CodeName returns a stable identifier for the error code.
func (e ValidationError) CodeName() string {
	switch {
	case errors.Is(e.Code, ErrMissingValue):
		return "missing_value"
	case errors.Is(e.Code, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(e.Code, ErrFutureTimestamp):
		return "future_timestamp"
	case errors.Is(e.Code, ErrIncompatibleHierarchy):
		return "incompatible_hierarchy"
	case errors.Is(e.Code, ErrNotFound):
		return "not_found"
	default:
		return "invalid_field"
	}
}

// ValidationErrors is every problem found in a submission.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Is matches any of the contained codes.
func (v ValidationErrors) Is(target error) bool {
	for _, e := range v {
		if e.Code != nil && errors.Is(e.Code, target) {
			return true
		}
	}
	return false
}
