package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/andrsadr/koravi/internal/domain"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

const codeUniqueViolation = "23505"

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service failure onto an HTTP status
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: domain.ErrorCode(err), Retryable: domain.IsRetryable(err)}

	var de *domain.DataError
	if errors.As(err, &de) && de.Message != "" {
		resp.Error = de.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", slog.String("error", err.Error()), slog.String("code", resp.Code))
	} else {
		logger.Warn(op+" rejected", slog.String("error", err.Error()), slog.Int("status", status))
	}
	writeJSON(w, logger, status, resp)
}

func statusFor(err error) int {
	var de *domain.DataError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	case domain.ErrorCode(err) == codeUniqueViolation:
		return http.StatusConflict
	case errors.As(err, &de):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
