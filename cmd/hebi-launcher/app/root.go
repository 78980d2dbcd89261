// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the hebi launcher service.
package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diamondlightsource/hebi-launcher/pkg/activity"
	"github.com/diamondlightsource/hebi-launcher/pkg/api"
	"github.com/diamondlightsource/hebi-launcher/pkg/config"
	"github.com/diamondlightsource/hebi-launcher/pkg/directory"
	"github.com/diamondlightsource/hebi-launcher/pkg/heartbeat"
	"github.com/diamondlightsource/hebi-launcher/pkg/ingress"
	"github.com/diamondlightsource/hebi-launcher/pkg/k8s"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/manifests"
	"github.com/diamondlightsource/hebi-launcher/pkg/session"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

var rootCmd = &cobra.Command{
	Use:               "hebi-launcher",
	DisableAutoGenTag: true,
	Short:             "hebi-launcher manages per-user hebi sessions on Kubernetes",
	Long: `hebi-launcher serves the session lifecycle API for hebi, the web frontend
for the Savu tomography reconstruction pipeline. Each eligible user gets a
dedicated deployment, service and ingress route; a websocket heartbeat
tracks session activity and inactive sessions are reclaimed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

// NewRootCmd creates the root command for the launcher service.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadLauncher()
	if err != nil {
		return err
	}

	client, err := k8s.NewClient(cfg.InCluster)
	if err != nil {
		return err
	}

	verifier, err := token.NewSigner(cfg.JWTKey)
	if err != nil {
		return err
	}

	tracker := activity.NewTracker()
	store := activity.NewFileStore(cfg.SnapshotPath)
	activity.LoadInto(ctx, tracker, store)

	manager := session.NewManager(session.Config{
		Client:          client,
		Namespace:       cfg.Namespace,
		Directory:       directory.NewLDAPDirectory(cfg.LDAPURL),
		Renderer:        manifests.NewTemplateRenderer(cfg.TemplateDir),
		Ingress:         ingress.NewMutator(client, cfg.Namespace),
		Tracker:         tracker,
		CASServer:       cfg.CASServer,
		WebsocketServer: cfg.WebsocketServer,
		PodReadyTimeout: cfg.PodReadyTimeout,
	})

	hub := heartbeat.NewHub(tracker, cfg.HeartbeatInterval)
	reaper := session.NewReaper(manager, cfg.ReapInterval, cfg.InactivityPeriod)

	go hub.Run(ctx)
	go reaper.Run(ctx)
	go activity.RunWriter(ctx, tracker, store, cfg.SnapshotInterval)

	logger.Infof("launcher managing namespace %s", cfg.Namespace)
	return api.Serve(ctx, cfg.ListenAddr(), api.Router(manager, hub, verifier))
}
