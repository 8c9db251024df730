package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/email"
	"github.com/joao-fontenele/goodfood/internal/uploads"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingMailer struct {
	sent []email.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type pingFeature struct{}

func (pingFeature) Mount(r chi.Router, _ *auth.Gate) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestNewRouter(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1700000000000-pie.png"), []byte("png"), 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	store, err := uploads.NewStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	router := NewRouter(Options{
		Uploads: store.Handler(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Logger: discardLogger(),
	}, pingFeature{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", path: "/healthz", wantStatus: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantBody: "# metrics"},
		{name: "feature under api", path: "/api/ping", wantStatus: http.StatusOK, wantBody: "pong"},
		{name: "uploaded file", path: "/uploads/1700000000000-pie.png", wantStatus: http.StatusOK, wantBody: "png"},
		{name: "unknown route", path: "/api/nope", wantStatus: http.StatusNotFound, wantBody: `{"error":"route not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, got)
			}
		})
	}

	t.Run("recovers from panics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})
}

func TestContactHandler_HandleSendQuery(t *testing.T) {
	valid := `{"queryType":"Partnership","name":"Ada","email":"ada@example.com","message":"Hello","isMember":"Yes"}`

	tests := []struct {
		name       string
		body       string
		mailErr    error
		wantStatus int
		wantError  string
	}{
		{name: "relays query", body: valid, wantStatus: http.StatusOK},
		{
			name:       "missing membership",
			body:       `{"queryType":"Partnership","name":"Ada","email":"ada@example.com","message":"Hello"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "isMember is required",
		},
		{
			name:       "bad email",
			body:       `{"queryType":"Partnership","name":"Ada","email":"ada","message":"Hello","isMember":"No"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "email must be a valid email address",
		},
		{
			name:       "mail service down",
			body:       valid,
			mailErr:    errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &recordingMailer{err: tt.mailErr}
			router := NewRouter(Options{Logger: discardLogger()},
				NewContactHandler(mailer, "support@goodfood.local", discardLogger()))

			req := httptest.NewRequest(http.MethodPost, "/api/service/sendQuery", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantError != "" {
				if got := decodeError(t, rec); got != tt.wantError {
					t.Errorf("expected error %q, got %q", tt.wantError, got)
				}
				return
			}

			if len(mailer.sent) != 1 {
				t.Fatalf("expected 1 mail, got %d", len(mailer.sent))
			}
			msg := mailer.sent[0]
			if msg.To != "support@goodfood.local" {
				t.Errorf("unexpected recipient %s", msg.To)
			}
			if msg.Subject != "Query from Ada - Partnership" {
				t.Errorf("unexpected subject %q", msg.Subject)
			}
			if !strings.Contains(msg.Text, "Member of GoodFood: Yes") {
				t.Errorf("expected membership in text, got %q", msg.Text)
			}
		})
	}
}
