// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package manifests renders the workload documents submitted for each hebi
// session. The renderer is given the session context (user, uid, URLs) and
// returns ready-to-submit typed objects; the template files themselves are
// deployment configuration, with built-in defaults embedded in the binary.
package manifests

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"
)

//go:embed templates/*.yaml
var defaultTemplates embed.FS

const (
	serviceTemplate    = "service.yaml"
	deploymentTemplate = "deployment.yaml"
)

// Context carries the values a session's manifests are rendered with.
type Context struct {
	// FedID is the owning user.
	FedID string

	// UID and GID are the unix identity the workload runs as.
	UID int
	GID int

	// ServiceURL is the public URL of this user's session.
	ServiceURL string

	// CASServer is the SSO server the session authenticates against.
	CASServer string

	// WebsocketServer is where the session's browser client opens the
	// event channel.
	WebsocketServer string
}

// Renderer produces workload documents for a session.
type Renderer interface {
	// Service renders the per-user service document.
	Service(rc Context) (*corev1.Service, error)

	// Deployment renders the per-user deployment document.
	Deployment(rc Context) (*appsv1.Deployment, error)
}

// TemplateRenderer renders manifests from YAML templates. Templates are
// looked up in the configured directory first and fall back to the
// embedded defaults, so a deployment can override either document without
// rebuilding the launcher.
type TemplateRenderer struct {
	dir string
}

// NewTemplateRenderer creates a renderer reading overrides from dir. An
// empty dir uses only the embedded templates.
func NewTemplateRenderer(dir string) *TemplateRenderer {
	return &TemplateRenderer{dir: dir}
}

// Service renders the per-user service document.
func (r *TemplateRenderer) Service(rc Context) (*corev1.Service, error) {
	var svc corev1.Service
	if err := r.render(serviceTemplate, rc, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// Deployment renders the per-user deployment document.
func (r *TemplateRenderer) Deployment(rc Context) (*appsv1.Deployment, error) {
	var dep appsv1.Deployment
	if err := r.render(deploymentTemplate, rc, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (r *TemplateRenderer) render(name string, rc Context, out any) error {
	text, err := r.templateText(name)
	if err != nil {
		return err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse manifest template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rc); err != nil {
		return fmt.Errorf("failed to render manifest template %s: %w", name, err)
	}

	if err := yaml.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("rendered manifest %s is not a valid document: %w", name, err)
	}
	return nil
}

func (r *TemplateRenderer) templateText(name string) (string, error) {
	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read manifest template %s: %w", name, err)
		}
	}

	data, err := defaultTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("no manifest template named %s: %w", name, err)
	}
	return string(data), nil
}
