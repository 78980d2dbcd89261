// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the hebi authentication gateway.
package main

import (
	"os"

	"github.com/diamondlightsource/hebi-launcher/cmd/hebi-auth/app"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
