// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/dkurguzov/b24sync/internal/auth"
	"github.com/dkurguzov/b24sync/internal/logging"
)

// Dashboard read API. Each endpoint serves the full collection; the
// dataset is a single tenant's CRM excerpt, small enough that paging
// would be ceremony.

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, s.store.Contacts())
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, s.store.Companies())
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, s.store.Deals())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, s.store.Projects())
}

func (s *Server) handleManagers(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, s.store.Managers())
}

func (s *Server) handleLatestContact(w http.ResponseWriter, r *http.Request) {
	contact, ok := s.store.MostRecentlyUpdated()
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no contacts synced yet", nil)
		return
	}
	respondSuccess(w, http.StatusOK, contact)
}

// handleDeleteProject is the separate removal path for projects. Webhook
// delete events never mutate storage; this endpoint does.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := s.store.DeleteProject(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PROCESSING_FAILED", "failed to delete project", err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no project with id "+id, nil)
		return
	}

	logging.Ctx(r.Context()).Info().Str("project_id", id).Msg("Project deleted via admin API")
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleSyncManagers(w http.ResponseWriter, r *http.Request) {
	count, err := s.dispatcher.SyncManagers(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "PROCESSING_FAILED", "manager directory sync failed", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int{"managers": count})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"collections":       s.store.Counts(),
		"websocket_clients": s.hub.ClientCount(),
	})
}

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJournalLimit {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be an integer between 1 and 500", err)
			return
		}
		limit = n
	}

	entries, err := s.journal.List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PROCESSING_FAILED", "failed to read journal", err)
		return
	}
	respondSuccess(w, http.StatusOK, entries)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "authentication is disabled", nil)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "malformed login request", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required", nil)
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "PROCESSING_FAILED", "login failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(s.cfg.Security.SessionTimeout.Seconds()),
	})
}
