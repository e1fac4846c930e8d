package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string       `json:"error"`
	Errors []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

// badRequest reports a malformed request that never reached the service.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps a service error onto a status code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs model.ValidationErrors
	if errors.As(err, &verrs) {
		body := errorBody{Error: "validation failed", Errors: make([]fieldError, len(verrs))}
		for i, ve := range verrs {
			body.Errors[i] = fieldError{Index: ve.Index, Field: ve.Field, Code: ve.CodeName(), Message: ve.Message}
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, errorBody{Error: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrIncompatibleHierarchy),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInvalidLimits):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
