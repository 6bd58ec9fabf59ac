// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/podstream/internal/api/middleware"
	"github.com/ManuGH/podstream/internal/problem"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  s.cfg.MetricsEnabled,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Get("/profiles", s.handleProfiles)

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit.Enabled {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RateLimit.Requests,
				WindowSize:   s.cfg.RateLimit.Window,
			}))
			r.Use(middleware.Admission(rate.Limit(s.cfg.RateLimit.GlobalRate), s.cfg.RateLimit.GlobalBurst))
		}
		r.Get("/audio/{profile}/{sourceID}", s.handleAudio)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, "system/not_found", "Not Found", problem.CodeNotFound, "", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusMethodNotAllowed, "system/method_not_allowed", "Method Not Allowed",
			problem.CodeMethodNotAllowed, "", nil)
	})

	return r
}

type profilesResponse struct {
	Profiles any `json:"profiles"`
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(profilesResponse{Profiles: s.profiles.List()}); err != nil {
		s.logger.Debug().Err(err).Msg("failed to encode profiles response")
	}
}
