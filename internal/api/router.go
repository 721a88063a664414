// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package api exposes the HTTP surface: the Bitrix24 webhook endpoint,
// the dashboard read API, health probes and Prometheus metrics.
//
// The webhook route is always unauthenticated (Bitrix24 cannot carry
// credentials); the dashboard routes sit behind JWT auth and per-IP rate
// limiting.
package api

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkurguzov/b24sync/internal/auth"
	"github.com/dkurguzov/b24sync/internal/bitrix"
	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/dispatcher"
	"github.com/dkurguzov/b24sync/internal/journal"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/middleware"
	"github.com/dkurguzov/b24sync/internal/models"
	"github.com/dkurguzov/b24sync/internal/store"
	"github.com/dkurguzov/b24sync/internal/websocket"
)

// Server bundles the dependencies behind the HTTP handlers.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *dispatcher.Dispatcher
	journal    *journal.Journal
	hub        *websocket.Hub
	auth       *auth.Manager
	client     bitrix.ClientInterface
}

// New creates a Server.
func New(
	cfg *config.Config,
	st *store.Store,
	d *dispatcher.Dispatcher,
	j *journal.Journal,
	hub *websocket.Hub,
	am *auth.Manager,
	client bitrix.ClientInterface,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		dispatcher: d,
		journal:    j,
		hub:        hub,
		auth:       am,
		client:     client,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.recoverer)
	r.Use(middleware.Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" is not allowed on this endpoint", nil)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint", nil)
	})

	r.Post("/webhook/bitrix", s.handleWebhook)

	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(s.hub, w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.Security.RateLimitRequests, s.cfg.Security.RateLimitWindow))

		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", err)
			}))

			r.Get("/contacts", s.handleContacts)
			r.Get("/contacts/latest", s.handleLatestContact)
			r.Get("/companies", s.handleCompanies)
			r.Get("/deals", s.handleDeals)
			r.Get("/projects", s.handleProjects)
			r.Delete("/projects/{id}", s.handleDeleteProject)
			r.Get("/managers", s.handleManagers)
			r.Post("/managers/sync", s.handleSyncManagers)
			r.Get("/stats", s.handleStats)
			r.Get("/journal", s.handleJournal)
		})
	})

	return r
}

// recoverer converts panics into JSON 500 responses. Panics deliberately
// do not re-enter the dispatcher's retry loop; they surface here once.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			logging.Error().
				Interface("panic", rvr).
				Str("path", r.URL.Path).
				Str("stack", string(debug.Stack())).
				Msg("Panic in HTTP handler")
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady verifies CRM connectivity. The probe shares the client's
// rate limiter with real traffic, so probe intervals should stay coarse.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Error:  &models.APIError{Code: "NOT_READY", Message: "CRM API unreachable"},
		})
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
