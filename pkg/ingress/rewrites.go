// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package ingress

import "strings"

// Rewrite entries are ";"-joined in the annotation value. They never
// contain ";" themselves, so plain splitting is sufficient.

func splitRewrites(value string) []string {
	parts := strings.Split(value, ";")
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, p)
		}
	}
	return entries
}

func joinRewrites(entries []string) string {
	return strings.Join(entries, ";")
}
