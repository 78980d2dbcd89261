// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the launcher and auth gateway configuration from the
// environment. All knobs keep the variable names the deployment already
// uses, with defaults matching the values the services shipped with.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
)

// Environment variable names shared between the two services.
const (
	envJWTKey            = "JWT_KEY"
	envInCluster         = "IN_CLUSTER"
	envMode              = "FLASK_MODE"
	envNamespace         = "HEBI_NAMESPACE"
	envHeartbeatInterval = "ALL_SESSIONS_CHECK_INTERVAL"
	envReapInterval      = "INACTIVE_SESSION_CHECK_INTERVAL"
	envInactivityHours   = "SESSION_INACTIVITY_PERIOD_HRS"
	envInactivityDays    = "SESSION_INACTIVITY_PERIOD_DAYS"
	envSnapshotInterval  = "WRITE_SESSION_ACTIVITY_INTERVAL"
	envSnapshotPath      = "SESSION_ACTIVITY_FILE"
	envPodReadyTimeout   = "POD_READY_TIMEOUT"
	envLDAPURL           = "LDAP_URL"
	envCASServer         = "CAS_SERVER"
	envServiceURL        = "SERVICE_URL"
	envTemplateDir       = "HEBI_TEMPLATE_DIR"
)

// Launcher holds the session launcher configuration.
type Launcher struct {
	// JWTKey is the symmetric secret used to verify session tokens.
	JWTKey string

	// InCluster selects in-cluster Kubernetes config; when false the
	// client points at a local API server proxy instead.
	InCluster bool

	// Production binds the HTTP server to loopback only.
	Production bool

	// Namespace is the Kubernetes namespace holding all hebi resources.
	Namespace string

	// HeartbeatInterval is how often heartbeat-request is broadcast.
	HeartbeatInterval time.Duration

	// ReapInterval is how often running sessions are checked for inactivity.
	ReapInterval time.Duration

	// InactivityPeriod is the age of last_seen beyond which a session is reaped.
	InactivityPeriod time.Duration

	// SnapshotInterval is how often the activity map is persisted.
	SnapshotInterval time.Duration

	// SnapshotPath is the activity snapshot file on the durable volume.
	SnapshotPath string

	// PodReadyTimeout bounds the wait for a freshly created pod to run.
	PodReadyTimeout time.Duration

	// LDAPURL is the directory server.
	LDAPURL string

	// CASServer is the base URL of the SSO server.
	CASServer string

	// WebsocketServer is handed to session workloads so their browser
	// clients know where to open the event channel.
	WebsocketServer string

	// TemplateDir holds the workload manifest templates.
	TemplateDir string

	// Port is the HTTP listen port.
	Port int
}

// AuthGateway holds the auth gateway configuration.
type AuthGateway struct {
	// JWTKey is the symmetric secret used to mint and verify session tokens.
	JWTKey string

	// CASServer is the base URL of the SSO server.
	CASServer string

	// ServiceURL is the fixed service URL registered with the SSO server.
	ServiceURL string

	// Production binds the HTTP server to loopback only.
	Production bool

	// Port is the HTTP listen port.
	Port int
}

func bindCommon(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetDefault(envMode, "")
	v.SetDefault(envCASServer, "https://auth.diamond.ac.uk/cas")
}

// LoadLauncher reads the launcher configuration from the environment.
func LoadLauncher() (*Launcher, error) {
	return loadLauncher(viper.New())
}

func loadLauncher(v *viper.Viper) (*Launcher, error) {
	bindCommon(v)
	v.SetDefault(envInCluster, "False")
	v.SetDefault(envNamespace, "twi18192")
	v.SetDefault(envHeartbeatInterval, 20)
	v.SetDefault(envReapInterval, 120)
	v.SetDefault(envInactivityHours, 12)
	v.SetDefault(envInactivityDays, 0)
	v.SetDefault(envSnapshotInterval, 300)
	v.SetDefault(envSnapshotPath, "/data/hebi-session-activity.json")
	v.SetDefault(envPodReadyTimeout, 120)
	v.SetDefault(envLDAPURL, "ldap://ldap.diamond.ac.uk")
	v.SetDefault(envTemplateDir, "hebi-manifest-templates")

	key := v.GetString(envJWTKey)
	if key == "" {
		return nil, fmt.Errorf("%s must be set", envJWTKey)
	}

	inactivity := time.Duration(v.GetInt(envInactivityDays))*24*time.Hour +
		time.Duration(v.GetInt(envInactivityHours))*time.Hour
	if inactivity <= 0 {
		return nil, fmt.Errorf("session inactivity period must be positive, got %s", inactivity)
	}

	return &Launcher{
		JWTKey:            key,
		InCluster:         v.GetString(envInCluster) == "True",
		Production:        v.GetString(envMode) == "production",
		Namespace:         v.GetString(envNamespace),
		HeartbeatInterval: time.Duration(v.GetInt(envHeartbeatInterval)) * time.Second,
		ReapInterval:      time.Duration(v.GetInt(envReapInterval)) * time.Second,
		InactivityPeriod:  inactivity,
		SnapshotInterval:  time.Duration(v.GetInt(envSnapshotInterval)) * time.Second,
		SnapshotPath:      v.GetString(envSnapshotPath),
		PodReadyTimeout:   time.Duration(v.GetInt(envPodReadyTimeout)) * time.Second,
		LDAPURL:           v.GetString(envLDAPURL),
		CASServer:         v.GetString(envCASServer),
		WebsocketServer:   "https://" + labels.IngressHost,
		TemplateDir:       v.GetString(envTemplateDir),
		Port:              8085,
	}, nil
}

// LoadAuthGateway reads the auth gateway configuration from the environment.
func LoadAuthGateway() (*AuthGateway, error) {
	return loadAuthGateway(viper.New())
}

func loadAuthGateway(v *viper.Viper) (*AuthGateway, error) {
	bindCommon(v)
	v.SetDefault(envServiceURL, "https://hebi.diamond.ac.uk/launcher/")

	key := v.GetString(envJWTKey)
	if key == "" {
		return nil, fmt.Errorf("%s must be set", envJWTKey)
	}

	return &AuthGateway{
		JWTKey:     key,
		CASServer:  v.GetString(envCASServer),
		ServiceURL: v.GetString(envServiceURL),
		Production: v.GetString(envMode) == "production",
		Port:       8086,
	}, nil
}

// ListenAddr returns the launcher bind address. Production deployments sit
// behind a sidecar proxy and bind loopback only.
func (c *Launcher) ListenAddr() string {
	return listenAddr(c.Production, c.Port)
}

// ListenAddr returns the gateway bind address.
func (c *AuthGateway) ListenAddr() string {
	return listenAddr(c.Production, c.Port)
}

func listenAddr(production bool, port int) string {
	host := "0.0.0.0"
	if production {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
