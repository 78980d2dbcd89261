// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for the hebi launcher.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/diamondlightsource/hebi-launcher/pkg/heartbeat"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/session"
	"github.com/diamondlightsource/hebi-launcher/pkg/telemetry"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// CORSMiddleware reflects the request origin. The launcher page and the
// sessions it manages live on different origins, and the token cookie must
// travel with their requests.
func CORSMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc:  func(_ *http.Request, _ string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
}

// Router assembles the launcher's HTTP surface: the session endpoints, the
// websocket event channel and the metrics endpoint.
func Router(manager *session.Manager, hub *heartbeat.Hub, verifier *token.Signer) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		CORSMiddleware(),
	)

	r.Mount("/k8s", SessionRouter(manager, verifier))
	r.Get("/ws", hub.Handler())
	r.Handle("/metrics", telemetry.Handler())

	return r
}

// Serve runs the launcher API on the given address until ctx is cancelled.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting HTTP server on %s", address)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
