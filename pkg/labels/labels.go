// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package labels holds the resource naming conventions that tie a hebi
// session together: the deployment, the service, the ingress route and the
// session URL all derive from the owning user's FedID.
package labels

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// ResourcePrefix is the prefix for all per-user hebi resources
	ResourcePrefix = "hebi-"

	// ServicePrefix is the prefix for per-user services
	ServicePrefix = "hebi-service-"

	// LabelApp is the label key carried by every hebi pod
	LabelApp = "app"

	// LauncherMarker identifies the launcher's own pod; a pod whose app
	// label contains it is never treated as a user session
	LauncherMarker = "launcher"

	// IngressName is the singleton ingress mutated by the launcher
	IngressName = "hebi-ingress"

	// IngressHost is the host of the single ingress rule
	IngressHost = "hebi.diamond.ac.uk"

	// ServicePort is the port every per-user service listens on
	ServicePort = 8080
)

// fedIDPattern is the shape of a valid FedID. FedIDs name pods, services
// and ingress paths, so anything outside this set is rejected outright.
var fedIDPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// IsValidFedID reports whether s is usable as a FedID.
func IsValidFedID(s string) bool {
	return fedIDPattern.MatchString(s)
}

// DeploymentName returns the deployment (and pod) name for a user.
func DeploymentName(fedid string) string {
	return ResourcePrefix + fedid
}

// ServiceName returns the service name for a user.
func ServiceName(fedid string) string {
	return ServicePrefix + fedid
}

// AppLabel returns the value of the app label on a user's pod.
func AppLabel(fedid string) string {
	return ResourcePrefix + fedid
}

// AppSelector returns the label selector matching a user's pod.
func AppSelector(fedid string) string {
	return fmt.Sprintf("%s=%s", LabelApp, AppLabel(fedid))
}

// RoutePath returns the ingress path routing to a user's service.
func RoutePath(fedid string) string {
	return "/" + fedid + "(/|$)(.*)"
}

// RewriteAnnotation returns the nginx rewrite entry for a user's service.
func RewriteAnnotation(fedid string) string {
	return "serviceName=" + ServiceName(fedid) + " rewrite=/"
}

// IsLauncherPod reports whether the app label belongs to the launcher
// itself rather than a user session.
func IsLauncherPod(appLabel string) bool {
	return strings.Contains(appLabel, LauncherMarker)
}

// UserFromAppLabel extracts the FedID from a pod's app label, or "" if the
// label does not follow the hebi-<fedid> convention.
func UserFromAppLabel(appLabel string) string {
	fedid, ok := strings.CutPrefix(appLabel, ResourcePrefix)
	if !ok || !IsValidFedID(fedid) {
		return ""
	}
	return fedid
}

// UserFromSessionURL extracts the FedID from a session URL such as
// https://hebi.diamond.ac.uk/abc12345/plugins. The FedID is the first path
// segment; malformed URLs or segments are rejected.
func UserFromSessionURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unparseable session url %q: %w", rawURL, err)
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) < 2 || segments[1] == "" {
		return "", fmt.Errorf("session url %q has no user segment", rawURL)
	}
	fedid := segments[1]
	if !IsValidFedID(fedid) {
		return "", fmt.Errorf("session url %q has invalid user segment %q", rawURL, fedid)
	}
	return fedid, nil
}
