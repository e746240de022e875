package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightmanager/lightmanager/internal/channel"
)

// healthCheckTimeout bounds the component checks of one health request.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)

		// Bearer token required when api.auth.jwt_secret is set
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)
			r.Get("/session", s.handleSession)
			r.Get("/audit", s.handleListAudit)
			r.Get("/ws", s.handleWebSocket)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)
				r.Get("/{id}", s.handleGetChannel)
			})
		})
	})

	return r
}

// ChannelView is the JSON form of a channel.
type ChannelView struct {
	ID       int    `json:"id"`
	Pin      string `json:"pin"`
	State    string `json:"state"`
	Asserted bool   `json:"asserted"`
}

func channelView(ch channel.Channel) ChannelView {
	return ChannelView{
		ID:       ch.ID,
		Pin:      ch.Pin,
		State:    ch.State.String(),
		Asserted: bool(ch.State),
	}
}

// handleHealth reports overall and per-component health. Any failing
// component turns the response into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]string, len(s.checks))
	status, code := "ok", http.StatusOK
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"session":    s.session.Status().State,
		"components": components,
	})
}

// handleSession returns the connection manager status.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

// handleListChannels returns every channel in id order of the table.
func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	chans := s.channels.Channels()
	views := make([]ChannelView, 0, len(chans))
	for _, ch := range chans {
		views = append(views, channelView(ch))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": views,
		"count":    len(views),
	})
}

// handleGetChannel returns one channel by numeric id.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "channel id must be an integer")
		return
	}

	for _, ch := range s.channels.Channels() {
		if ch.ID == id {
			writeJSON(w, http.StatusOK, channelView(ch))
			return
		}
	}
	writeNotFound(w, "channel not found")
}
