package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newHandler(upstream string, client *http.Client) *Handler {
	return NewHandler(
		NewServiceProxy(upstream, client),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

var testOptions = Options{
	AllowedOrigins: []string{"http://localhost:3000"},
	RateLimit:      100,
	RateWindow:     time.Minute,
}

func TestHandler_HandleAPI(t *testing.T) {
	t.Run("proxies GET /api/menu", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/menu" {
				t.Errorf("expected /api/menu, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"id":"1"}]`))
		}))
		defer upstream.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
		rec := httptest.NewRecorder()

		newHandler(upstream.URL, upstream.Client()).HandleAPI(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `[{"id":"1"}]` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("preserves downstream error status", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"order was modified concurrently"}`))
		}))
		defer upstream.Close()

		req := httptest.NewRequest(http.MethodPut, "/api/orders/1/status", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		newHandler(upstream.URL, upstream.Client()).HandleAPI(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when api unavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
		rec := httptest.NewRecorder()

		newHandler("http://localhost:99999", &http.Client{}).HandleAPI(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_Router(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer upstream.Close()

	t.Run("serves uploads through the api", func(t *testing.T) {
		router := newHandler(upstream.URL, upstream.Client()).Router(testOptions)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/1700000000000-pie.png", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != "/uploads/1700000000000-pie.png" {
			t.Errorf("unexpected upstream path %s", rec.Body.String())
		}
	})

	t.Run("health does not hit upstream", func(t *testing.T) {
		router := newHandler("http://localhost:99999", &http.Client{}).Router(testOptions)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("answers CORS preflight for the client origin", func(t *testing.T) {
		router := newHandler(upstream.URL, upstream.Client()).Router(testOptions)

		req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("expected allowed origin, got %q", got)
		}
	})

	t.Run("ignores unknown origins", func(t *testing.T) {
		router := newHandler(upstream.URL, upstream.Client()).Router(testOptions)

		req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allowed origin, got %q", got)
		}
	})

	t.Run("rate limits per client", func(t *testing.T) {
		opts := testOptions
		opts.RateLimit = 2
		router := newHandler(upstream.URL, upstream.Client()).Router(opts)

		var codes []int
		for range 3 {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/menu", nil))
			codes = append(codes, rec.Code)
		}

		if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
			t.Errorf("expected first two requests to pass, got %v", codes)
		}
		if codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected 429 on third request, got %d", codes[2])
		}
	})
}
