// Package gateway is the public edge in front of the marketplace API. It adds
// CORS and per-IP rate limiting and proxies everything else upstream.
package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/joao-fontenele/goodfood/internal/httpx"
	"github.com/joao-fontenele/goodfood/internal/telemetry"
)

// copiedHeaders are passed back from the upstream response.
var copiedHeaders = []string{"Content-Type", "Cache-Control", "Last-Modified", "ETag"}

type Handler struct {
	api    *ServiceProxy
	logger *slog.Logger
}

func NewHandler(api *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		api:    api,
		logger: logger,
	}
}

type Options struct {
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
}

// Router wires the edge middleware in front of the proxy routes.
func (h *Handler) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.WithHTTPRoute)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, opts.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					httpx.WriteError(w, h.logger, http.StatusTooManyRequests, "too many requests")
				}),
			))
		}
		r.HandleFunc("/api/*", h.HandleAPI)
		r.Get("/uploads/*", h.HandleAPI)
	})

	return r
}

// HandleAPI forwards the request path unchanged.
func (h *Handler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.api, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for _, name := range copiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
