package handler

import (
	"log/slog"
	"net/http"

	"soho/internal/middleware"
	"soho/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps are the components the HTTP surface is built from.
type RouterDeps struct {
	Devices       *DeviceHandler
	Health        *HealthHandler
	Sessions      session.Store
	SessionCookie string
	CORSOrigins   string
	Logger        *slog.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(d.CORSOrigins))

	r.Get("/health", d.Health.ServeHTTP)
	r.Handle("/metrics", MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(d.Sessions, d.SessionCookie, d.Logger))
		d.Devices.Routes(r)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"soho","status":"running","endpoints":{"/devices":"GET, POST","/devices/{id}":"GET, DELETE","/devices/{id}/power":"GET","/health":"GET","/metrics":"GET"}}`))
	})
	return r
}
