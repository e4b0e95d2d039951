// Package server exposes the payment-gated tool and chat endpoints over
// HTTP:
//
//	GET  /tools                    capability listing
//	POST /tools/{name}/invoke      gated tool invocation
//	POST /v1/chat/completions      gated chat proxy
//	GET  /metrics                  Prometheus metrics
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/facilitator"
	"github.com/x402tools/tollgate/gate"
	"github.com/x402tools/tollgate/registry"
)

// Server wires the registry, the payment gate, and the chat proxy into a
// chi router.
type Server struct {
	cfg      Config
	registry *registry.Registry
	gate     *gate.Gate
	log      *slog.Logger
	router   chi.Router
}

// New validates the configuration and builds the server around the given
// registry instance.
func New(cfg Config, reg *registry.Registry) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	fac := cfg.Facilitator
	if fac == nil && !cfg.DevBypass {
		fac = facilitator.NewClient(cfg.FacilitatorURL)
	}

	g, err := gate.New(gate.Config{
		PayTo:          cfg.PayTo,
		Network:        cfg.Network,
		FacilitatorURL: cfg.FacilitatorURL,
		Facilitator:    fac,
		DevBypass:      cfg.DevBypass,
		VerifyOnly:     cfg.VerifyOnly,
		Logger:         log,
		Metrics:        cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		registry: reg,
		gate:     g,
		log:      log,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/tools", s.handleListTools)
	r.Post("/tools/{name}/invoke", s.handleInvoke)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// respondJSON writes a 200-family JSON response.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError writes a structured error body with the status mapped from
// the error code.
func respondError(w http.ResponseWriter, err *tollgate.Error) {
	respondJSON(w, tollgate.HTTPStatus(err.Code), err)
}

// respondErrorStatus writes a structured error body with an explicit
// status, used when an upstream status should be propagated.
func respondErrorStatus(w http.ResponseWriter, status int, err *tollgate.Error) {
	respondJSON(w, status, err)
}
