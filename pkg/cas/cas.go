// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package cas implements the client side of CAS ticket validation. The SSO
// server exchanges a one-shot service ticket for the authenticated user's
// identity via its /serviceValidate endpoint.
package cas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrInvalidServerResponse is returned when the SSO server's reply is not
// parseable or matches neither a success nor a failure document.
var ErrInvalidServerResponse = errors.New("invalid_CAS_server_response")

// Result is the outcome of a ticket validation.
type Result struct {
	// Authenticated is true when the SSO server accepted the ticket.
	Authenticated bool

	// User is the authenticated FedID. Set only on success.
	User string

	// Code and Description carry the SSO failure detail. Set only on failure.
	Code        string
	Description string
}

// serviceResponse mirrors the JSON document returned by /serviceValidate.
type serviceResponse struct {
	ServiceResponse struct {
		AuthenticationSuccess *struct {
			User string `json:"user"`
		} `json:"authenticationSuccess"`
		AuthenticationFailure *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"authenticationFailure"`
	} `json:"serviceResponse"`
}

// Client validates tickets against a CAS server.
type Client struct {
	validateURL string
	service     string
	httpClient  *http.Client
}

// NewClient creates a Client for the given CAS server base URL and the
// fixed service URL registered with it.
func NewClient(serverURL, serviceURL string) *Client {
	return &Client{
		validateURL: serverURL + "/serviceValidate",
		service:     serviceURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ValidateTicket exchanges a service ticket for the owning user's identity.
// A network or decoding failure is reported as ErrInvalidServerResponse so
// the caller can surface the fixed diagnostic the web app expects.
func (c *Client) ValidateTicket(ctx context.Context, ticket string) (*Result, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("ticket", ticket)
	q.Set("service", c.service)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.validateURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServerResponse, err)
	}
	defer resp.Body.Close()

	var doc serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServerResponse, err)
	}

	switch {
	case doc.ServiceResponse.AuthenticationSuccess != nil:
		return &Result{
			Authenticated: true,
			User:          doc.ServiceResponse.AuthenticationSuccess.User,
		}, nil
	case doc.ServiceResponse.AuthenticationFailure != nil:
		return &Result{
			Authenticated: false,
			Code:          doc.ServiceResponse.AuthenticationFailure.Code,
			Description:   doc.ServiceResponse.AuthenticationFailure.Description,
		}, nil
	default:
		return nil, ErrInvalidServerResponse
	}
}
