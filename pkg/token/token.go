// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package token mints and verifies the session token carried in the
// browser cookie. The token is HMAC-signed with a process-wide secret and
// its verified payload identifies the session owner by FedID.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the browser cookie carrying the session token.
const CookieName = "token"

// signingMethod is fixed at construction; tokens signed any other way
// are rejected outright.
var signingMethod = jwt.SigningMethodHS256

// Common errors
var (
	ErrNoToken         = errors.New("no token provided")
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingUsername = errors.New("token has no username claim")
)

// Claims is the verified payload of a session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Signer mints and verifies session tokens with a symmetric key.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from the process-wide secret.
func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("signing key must not be empty")
	}
	return &Signer{key: []byte(key)}, nil
}

// Mint produces a signed session token for the given user. The token
// carries no expiry, matching the lifetime of the browser cookie.
func (s *Signer) Mint(username string) (string, error) {
	tok := jwt.NewWithClaims(signingMethod, Claims{Username: username})
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature of a session token and returns its claims.
// Tokens signed with a different method or a different key are rejected.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyUsername verifies a token and additionally requires the username
// claim to be present.
func (s *Signer) VerifyUsername(tokenString string) (string, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Username == "" {
		return "", ErrMissingUsername
	}
	return claims.Username, nil
}
