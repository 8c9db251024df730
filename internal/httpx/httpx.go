// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/validation"
)

const maxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// StatusFor maps a domain error onto its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStaleWrite):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteDomainError writes err with its mapped status. Server errors are logged
// with msg and the extra attributes and answered with a generic body.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, attrs ...any) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, append([]any{"error", err}, attrs...)...)
		WriteError(w, logger, status, "internal server error")
		return
	}

	logger.Info(msg, append([]any{"error", err, "status", status}, attrs...)...)
	WriteError(w, logger, status, domain.PublicMessage(err))
}

// DecodeJSON reads a JSON body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return domain.Errorf(domain.ErrValidation, "invalid request body")
	}
	return validation.Struct(dst)
}
