// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/session"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

// SessionRouter sets up the session lifecycle routes.
func SessionRouter(manager *session.Manager, verifier *token.Signer) http.Handler {
	routes := &sessionRoutes{manager: manager, verifier: verifier}
	r := chi.NewRouter()
	r.Get("/session_info", routes.getSessionInfo)
	r.Get("/start_hebi", routes.startSession)
	r.Get("/stop_hebi", routes.stopSession)
	return r
}

type sessionRoutes struct {
	manager  *session.Manager
	verifier *token.Signer
}

// identity resolves the requesting user. An explicit fedid query parameter
// wins over the token cookie; the cookie is the normal browser path.
func (s *sessionRoutes) identity(r *http.Request) (string, bool) {
	if fedid := r.URL.Query().Get("fedid"); fedid != "" {
		if !labels.IsValidFedID(fedid) {
			return "", false
		}
		return fedid, true
	}

	cookie, err := r.Cookie(token.CookieName)
	if err != nil {
		return "", false
	}
	username, err := s.verifier.VerifyUsername(cookie.Value)
	if err != nil {
		logger.Warnf("rejecting request with bad token: %v", err)
		return "", false
	}
	return username, true
}

// uidOverride reads the optional numeric uid query parameter.
func uidOverride(r *http.Request) *int {
	raw := r.URL.Query().Get("uid")
	if raw == "" {
		return nil
	}
	uid, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &uid
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

func (s *sessionRoutes) getSessionInfo(w http.ResponseWriter, r *http.Request) {
	fedid, ok := s.identity(r)
	if !ok {
		http.Error(w, "Unable to identify requesting user", http.StatusForbidden)
		return
	}

	info, err := s.manager.SessionInfo(r.Context(), fedid)
	if err != nil {
		logger.Errorf("failed to query session info for %s: %v", fedid, err)
		http.Error(w, "Failed to query session info", http.StatusInternalServerError)
		return
	}
	writeJSON(w, info)
}

func (s *sessionRoutes) startSession(w http.ResponseWriter, r *http.Request) {
	fedid, ok := s.identity(r)
	if !ok {
		http.Error(w, "Unable to identify requesting user", http.StatusForbidden)
		return
	}

	report, err := s.manager.Start(r.Context(), fedid, uidOverride(r))
	if err != nil {
		logger.Errorf("failed to start session for %s: %v", fedid, err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (s *sessionRoutes) stopSession(w http.ResponseWriter, r *http.Request) {
	fedid, ok := s.identity(r)
	if !ok {
		http.Error(w, "Unable to identify requesting user", http.StatusForbidden)
		return
	}

	writeJSON(w, s.manager.Stop(r.Context(), fedid))
}
