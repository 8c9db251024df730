package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Errorf(domain.ErrNotFound, "order not found"), http.StatusNotFound},
		{fmt.Errorf("cancel: %w", domain.ErrCancelWindowElapsed), http.StatusBadRequest},
		{domain.Errorf(domain.ErrValidation, "bad"), http.StatusBadRequest},
		{domain.Errorf(domain.ErrUnauthorized, "no token"), http.StatusUnauthorized},
		{domain.Errorf(domain.ErrForbidden, "nope"), http.StatusForbidden},
		{fmt.Errorf("update: %w", domain.ErrStaleWrite), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	t.Run("client error exposes public message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := fmt.Errorf("cancel order 1: %w", domain.ErrCancelWindowElapsed)

		WriteDomainError(rec, discardLogger(), err, "cancel failed")

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "order can only be canceled within one minute" {
			t.Errorf("unexpected message %q", resp["error"])
		}
	})

	t.Run("server error hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()

		WriteDomainError(rec, discardLogger(), errors.New("pq: connection refused"), "list failed")

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "internal server error") {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	t.Run("decodes and validates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		var p payload
		if err := DecodeJSON(req, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name != "x" {
			t.Errorf("expected x, got %s", p.Name)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var p payload
		err := DecodeJSON(req, &p)
		if !errors.Is(err, domain.ErrValidation) || err.Error() != "invalid request body" {
			t.Errorf("expected invalid body error, got %v", err)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		var p payload
		if err := DecodeJSON(req, &p); err == nil || err.Error() != "name is required" {
			t.Errorf("expected required error, got %v", err)
		}
	})
}
