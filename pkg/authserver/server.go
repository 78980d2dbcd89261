// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the authentication gateway sitting in
// front of the launcher. It exchanges CAS service tickets for signed token
// cookies and answers whether a requestor already holds one.
package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diamondlightsource/hebi-launcher/pkg/api"
	"github.com/diamondlightsource/hebi-launcher/pkg/cas"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

// TicketValidator exchanges a CAS service ticket for the owning user's
// identity. Satisfied by *cas.Client.
type TicketValidator interface {
	ValidateTicket(ctx context.Context, ticket string) (*cas.Result, error)
}

// AuthStatus answers whether the requestor holds a valid token cookie.
type AuthStatus struct {
	HasRequestorBeenAuthenticated bool   `json:"has_requestor_been_authenticated"`
	Username                      string `json:"username,omitempty"`
}

// TicketOutcome is the result of a ticket validation request.
type TicketOutcome struct {
	Validated   bool   `json:"validated"`
	User        string `json:"user,omitempty"`
	Token       string `json:"token,omitempty"`
	Description string `json:"desc,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Router assembles the gateway's HTTP surface.
func Router(validator TicketValidator, signer *token.Signer) http.Handler {
	routes := &authRoutes{validator: validator, signer: signer}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, api.CORSMiddleware())
	r.Get("/", routes.getAuthStatus)
	r.Get("/validate_ticket", routes.validateTicket)
	return r
}

type authRoutes struct {
	validator TicketValidator
	signer    *token.Signer
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

// getAuthStatus reports whether the requestor's cookie names a user. The
// ingress consults this endpoint before letting a request through.
func (a *authRoutes) getAuthStatus(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(token.CookieName)
	if err != nil {
		writeJSON(w, http.StatusForbidden, &AuthStatus{})
		return
	}

	username, err := a.signer.VerifyUsername(cookie.Value)
	if errors.Is(err, token.ErrMissingUsername) {
		// A genuine token that names nobody is unauthenticated, not an
		// attack; answer plainly rather than with a verification error.
		writeJSON(w, http.StatusOK, &AuthStatus{})
		return
	}
	if err != nil {
		logger.Warnf("rejecting bad token: %v", err)
		writeJSON(w, http.StatusForbidden, &AuthStatus{})
		return
	}

	writeJSON(w, http.StatusOK, &AuthStatus{
		HasRequestorBeenAuthenticated: true,
		Username:                      username,
	})
}

// validateTicket exchanges the CAS ticket from the SSO redirect for a
// token cookie.
func (a *authRoutes) validateTicket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")

	result, err := a.validator.ValidateTicket(r.Context(), ticket)
	if err != nil {
		logger.Errorf("ticket validation failed: %v", err)
		writeJSON(w, http.StatusOK, &TicketOutcome{
			Description: cas.ErrInvalidServerResponse.Error(),
		})
		return
	}

	if !result.Authenticated {
		logger.Infof("SSO rejected ticket: %s (%s)", result.Description, result.Code)
		writeJSON(w, http.StatusOK, &TicketOutcome{
			Description: result.Description,
			Code:        result.Code,
		})
		return
	}

	signed, err := a.signer.Mint(result.User)
	if err != nil {
		logger.Errorf("failed to mint token for %s: %v", result.User, err)
		writeJSON(w, http.StatusInternalServerError, &TicketOutcome{
			Description: "failed to issue token",
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Infof("authenticated %s", result.User)
	writeJSON(w, http.StatusOK, &TicketOutcome{
		Validated:   true,
		User:        result.User,
		Token:       signed,
		Description: "successful authentication",
	})
}
