package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/llm"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to a status code. The message is the
// error text, so driver messages reach the client unchanged.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, errorCode string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, errorCode = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidIdentifier), errors.Is(err, apperrors.ErrUnknownDialect):
		status, errorCode = http.StatusBadRequest, "invalid_database"
	case errors.Is(err, apperrors.ErrProtectedDatabase):
		status, errorCode = http.StatusForbidden, "protected_database"
	case errors.Is(err, llm.ErrNotConfigured):
		status, errorCode = http.StatusServiceUnavailable, "llm_not_configured"
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error_code", errorCode), zap.Error(err))
	}
	if err := ErrorResponse(w, status, errorCode, err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func badRequest(w http.ResponseWriter, logger *zap.Logger, errorCode, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, logger, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// clientIP returns the first X-Forwarded-For hop, else the remote address host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
