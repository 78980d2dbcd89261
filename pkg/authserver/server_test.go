// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamondlightsource/hebi-launcher/pkg/cas"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

func newSigner(t *testing.T) *token.Signer {
	t.Helper()
	signer, err := token.NewSigner("test-key")
	require.NoError(t, err)
	return signer
}

// fakeSSO serves CAS /serviceValidate responses: tickets present in users
// succeed, everything else fails with INVALID_TICKET.
func fakeSSO(t *testing.T, users map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/serviceValidate", r.URL.Path)
		ticket := r.URL.Query().Get("ticket")
		if user, ok := users[ticket]; ok {
			fmt.Fprintf(w, `{"serviceResponse":{"authenticationSuccess":{"user":%q}}}`, user)
			return
		}
		fmt.Fprintf(w, `{"serviceResponse":{"authenticationFailure":{"code":"INVALID_TICKET","description":"Ticket %s not recognized"}}}`, ticket)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, users map[string]string) (http.Handler, *token.Signer) {
	t.Helper()
	sso := fakeSSO(t, users)
	validator := cas.NewClient(sso.URL, "https://hebi.diamond.ac.uk/launcher/")
	signer := newSigner(t)
	return Router(validator, signer), signer
}

func TestAuthStatusWithoutCookie(t *testing.T) {
	t.Parallel()

	handler, _ := newGateway(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var status AuthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.HasRequestorBeenAuthenticated)
	assert.Empty(t, status.Username)
}

func TestAuthStatusWithValidCookie(t *testing.T) {
	t.Parallel()

	handler, signer := newGateway(t, nil)
	tok, err := signer.Mint("abc12345")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: tok})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status AuthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.HasRequestorBeenAuthenticated)
	assert.Equal(t, "abc12345", status.Username)
}

func TestAuthStatusWithUsernamelessToken(t *testing.T) {
	t.Parallel()

	handler, signer := newGateway(t, nil)
	tok, err := signer.Mint("")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: tok})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The token verifies but names nobody: unauthenticated, not an error.
	assert.Equal(t, http.StatusOK, rec.Code)
	var status AuthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.HasRequestorBeenAuthenticated)
	assert.Empty(t, status.Username)
}

func TestAuthStatusWithTamperedCookie(t *testing.T) {
	t.Parallel()

	handler, _ := newGateway(t, nil)
	otherSigner, err := token.NewSigner("different-key")
	require.NoError(t, err)
	tok, err := otherSigner.Mint("abc12345")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: tok})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateTicketSuccess(t *testing.T) {
	t.Parallel()

	handler, signer := newGateway(t, map[string]string{"ST-123": "abc12345"})
	req := httptest.NewRequest(http.MethodGet, "/validate_ticket?ticket=ST-123", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var outcome TicketOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Validated)
	assert.Equal(t, "abc12345", outcome.User)
	assert.Equal(t, "successful authentication", outcome.Description)

	// The cookie and body carry the same verifiable token.
	resp := rec.Result()
	require.Len(t, resp.Cookies(), 1)
	cookie := resp.Cookies()[0]
	assert.Equal(t, token.CookieName, cookie.Name)
	assert.Equal(t, outcome.Token, cookie.Value)

	username, err := signer.VerifyUsername(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "abc12345", username)
}

func TestValidateTicketRejected(t *testing.T) {
	t.Parallel()

	handler, _ := newGateway(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/validate_ticket?ticket=ST-bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var outcome TicketOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.Validated)
	assert.Empty(t, outcome.Token)
	assert.Equal(t, "INVALID_TICKET", outcome.Code)
	assert.Contains(t, outcome.Description, "ST-bogus")
	assert.Empty(t, rec.Result().Cookies())
}

func TestValidateTicketServerUnreachable(t *testing.T) {
	t.Parallel()

	sso := httptest.NewServer(nil)
	sso.Close()
	validator := cas.NewClient(sso.URL, "https://hebi.diamond.ac.uk/launcher/")
	handler := Router(validator, newSigner(t))

	req := httptest.NewRequest(http.MethodGet, "/validate_ticket?ticket=ST-123", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var outcome TicketOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.Validated)
	assert.Contains(t, outcome.Description, "invalid_CAS_server_response")
}
