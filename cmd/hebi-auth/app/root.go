// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the hebi auth gateway.
package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diamondlightsource/hebi-launcher/pkg/api"
	"github.com/diamondlightsource/hebi-launcher/pkg/authserver"
	"github.com/diamondlightsource/hebi-launcher/pkg/cas"
	"github.com/diamondlightsource/hebi-launcher/pkg/config"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/token"
)

var rootCmd = &cobra.Command{
	Use:               "hebi-auth",
	DisableAutoGenTag: true,
	Short:             "hebi-auth gates hebi sessions behind CAS single sign-on",
	Long: `hebi-auth sits in front of the hebi launcher and its sessions. It
exchanges CAS service tickets for signed token cookies and answers the
ingress's auth subrequests for everything behind it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

// NewRootCmd creates the root command for the auth gateway.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadAuthGateway()
	if err != nil {
		return err
	}

	signer, err := token.NewSigner(cfg.JWTKey)
	if err != nil {
		return err
	}

	validator := cas.NewClient(cfg.CASServer, cfg.ServiceURL)

	logger.Infof("auth gateway validating against %s", cfg.CASServer)
	return api.Serve(ctx, cfg.ListenAddr(), authserver.Router(validator, signer))
}
