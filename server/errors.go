package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"story_feedback_collector/apperror"
	"story_feedback_collector/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// appHandler lets handlers return a typed failure instead of writing it.
type appHandler func(http.ResponseWriter, *http.Request) *apperror.Error

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e := fn(w, r)
	if e == nil {
		return
	}
	status := statusFor(e.Kind)
	fields := []zap.Field{
		zap.String("kind", e.Kind.String()),
		zap.Int("status", status),
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(r.Context(), e.Message, fields...)
	} else {
		logger.Warn(r.Context(), e.Message, fields...)
	}
	writeJSON(w, status, errorResponse{Success: false, Message: e.Message})
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.Validation:
		return http.StatusBadRequest
	case apperror.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
