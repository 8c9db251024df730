// Package api assembles the marketplace HTTP surface.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/httpx"
	"github.com/joao-fontenele/goodfood/internal/telemetry"
	"github.com/joao-fontenele/goodfood/internal/uploads"
)

// Mounter registers a feature's routes beneath /api.
type Mounter interface {
	Mount(r chi.Router, gate *auth.Gate)
}

type Options struct {
	Gate    *auth.Gate
	Uploads http.Handler
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(opts Options, features ...Mounter) http.Handler {
	logger := opts.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.WithHTTPRoute)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, logger, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, logger, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.Uploads != nil {
		r.Handle(uploads.URLPrefix+"*", opts.Uploads)
	}

	r.Route("/api", func(r chi.Router) {
		for _, f := range features {
			f.Mount(r, opts.Gate)
		}
	})

	return r
}
