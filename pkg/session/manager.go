// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package session owns the lifecycle of hebi sessions: launching the
// per-user workload, answering whether one is running, and tearing it down
// again, either on request or when the reaper finds it inactive.
package session

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	apimwatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	watchtools "k8s.io/client-go/tools/watch"
	"k8s.io/utils/ptr"

	"github.com/diamondlightsource/hebi-launcher/pkg/activity"
	"github.com/diamondlightsource/hebi-launcher/pkg/directory"
	"github.com/diamondlightsource/hebi-launcher/pkg/ingress"
	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/manifests"
	"github.com/diamondlightsource/hebi-launcher/pkg/telemetry"
)

// Manager coordinates session state between the orchestrator, the
// directory, the ingress and the activity tracker.
type Manager struct {
	client    kubernetes.Interface
	namespace string
	directory directory.Directory
	renderer  manifests.Renderer
	ingress   *ingress.Mutator
	tracker   *activity.Tracker

	casServer       string
	websocketServer string
	podReadyTimeout time.Duration
}

// Config collects the Manager dependencies.
type Config struct {
	Client          kubernetes.Interface
	Namespace       string
	Directory       directory.Directory
	Renderer        manifests.Renderer
	Ingress         *ingress.Mutator
	Tracker         *activity.Tracker
	CASServer       string
	WebsocketServer string
	PodReadyTimeout time.Duration
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		client:          cfg.Client,
		namespace:       cfg.Namespace,
		directory:       cfg.Directory,
		renderer:        cfg.Renderer,
		ingress:         cfg.Ingress,
		tracker:         cfg.Tracker,
		casServer:       cfg.CASServer,
		websocketServer: cfg.WebsocketServer,
		podReadyTimeout: cfg.PodReadyTimeout,
	}
}

// Tracker exposes the activity tracker shared with the event channel.
func (m *Manager) Tracker() *activity.Tracker {
	return m.tracker
}

// Info describes whether a user's session is running.
type Info struct {
	Username                  string `json:"username"`
	IsSessionCurrentlyRunning bool   `json:"is_session_currently_running"`
}

// StartReport is the outcome of a start request.
type StartReport struct {
	Username           string            `json:"username"`
	WasSessionLaunched bool              `json:"was_session_launched"`
	IsHebiPodRunning   bool              `json:"is_hebi_pod_running,omitempty"`
	Message            string            `json:"message,omitempty"`
	UserLDAPInfo       *directory.Record `json:"user_ldap_info,omitempty"`
}

// StopReport is the outcome of a stop request or a reap.
type StopReport struct {
	Username          string `json:"username"`
	WasSessionStopped bool   `json:"was_session_stopped"`
	DidSessionExist   bool   `json:"did_session_exist"`
}

// RunningUsers lists all users with a live session pod. Pods being deleted
// and the launcher's own pod are not sessions.
func (m *Manager) RunningUsers(ctx context.Context) ([]string, error) {
	pods, err := m.client.CoreV1().Pods(m.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list session pods: %w", err)
	}

	var users []string
	for _, pod := range pods.Items {
		app := pod.Labels[labels.LabelApp]
		if labels.IsLauncherPod(app) || pod.DeletionTimestamp != nil {
			continue
		}
		if fedid := labels.UserFromAppLabel(app); fedid != "" {
			users = append(users, fedid)
		}
	}
	return users, nil
}

// SessionInfo reports whether the user currently has a session running.
func (m *Manager) SessionInfo(ctx context.Context, fedid string) (*Info, error) {
	users, err := m.RunningUsers(ctx)
	if err != nil {
		return nil, err
	}

	info := &Info{Username: fedid}
	for _, u := range users {
		if u == fedid {
			info.IsSessionCurrentlyRunning = true
			break
		}
	}
	return info, nil
}

// Start launches a session for the user. A second start while the session
// exists is a no-op reporting the session as already running. uidOverride,
// when non-nil, takes precedence over the directory's uid.
func (m *Manager) Start(ctx context.Context, fedid string, uidOverride *int) (*StartReport, error) {
	record, err := m.directory.Lookup(ctx, fedid)
	if err != nil {
		logger.Errorf("directory lookup failed for %s: %v", fedid, err)
		telemetry.LaunchFailures.Inc()
		return &StartReport{
			Username: fedid,
			Message:  "Invalid user, directory lookup failed",
		}, nil
	}
	logger.Infow("directory record", "fedid", fedid, "record", record)

	if !record.Eligible() {
		return &StartReport{
			Username:     fedid,
			Message:      "Invalid user, see user_ldap_info for more info",
			UserLDAPInfo: record,
		}, nil
	}

	uid := record.UID
	if uidOverride != nil {
		uid = *uidOverride
	}

	exists, err := m.sessionExists(ctx, fedid)
	if err != nil {
		return nil, err
	}
	if exists {
		return &StartReport{
			Username:         fedid,
			IsHebiPodRunning: true,
			Message:          "session exists",
		}, nil
	}

	if err := m.createResources(ctx, fedid, uid); err != nil {
		logger.Errorf("failed to create session resources for %s: %v", fedid, err)
		telemetry.LaunchFailures.Inc()
		return &StartReport{
			Username: fedid,
			Message:  "failed to create session resources",
		}, nil
	}

	if err := m.waitForPodRunning(ctx, fedid); err != nil {
		logger.Errorf("pod for %s did not become ready: %v", fedid, err)
		telemetry.LaunchFailures.Inc()
		// Roll back the partially created session so the next start can
		// begin from a clean slate.
		m.Destroy(ctx, fedid)
		return &StartReport{
			Username: fedid,
			Message:  "pod did not become ready",
		}, nil
	}

	// Seed the activity map so the reaper has a baseline before the
	// browser's first heartbeat response arrives.
	m.tracker.Touch(fedid)
	telemetry.SessionsLaunched.Inc()

	return &StartReport{
		Username:           fedid,
		WasSessionLaunched: true,
		IsHebiPodRunning:   true,
	}, nil
}

// Stop tears down the user's session on request.
func (m *Manager) Stop(ctx context.Context, fedid string) *StopReport {
	report := m.Destroy(ctx, fedid)
	if report.WasSessionStopped {
		telemetry.SessionsStopped.Inc()
	}
	return report
}

// Destroy runs the teardown sequence: deployment, then service, then the
// ingress route, then the activity entry. A missing deployment means the
// session never existed and short-circuits the rest; any other failure
// stops the sequence and leaves the remainder for a later retry.
func (m *Manager) Destroy(ctx context.Context, fedid string) *StopReport {
	report := &StopReport{Username: fedid}

	deploymentName := labels.DeploymentName(fedid)
	err := m.client.AppsV1().Deployments(m.namespace).Delete(ctx, deploymentName, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(int64(0)),
		PropagationPolicy:  ptr.To(metav1.DeletePropagationBackground),
	})
	if apierrors.IsNotFound(err) {
		logger.Infof("no session to stop for %s", fedid)
		return report
	}
	if err != nil {
		logger.Errorf("failed to delete deployment for %s: %v", fedid, err)
		report.DidSessionExist = true
		return report
	}
	report.DidSessionExist = true
	logger.Infof("Deployment deleted for %s: %s", fedid, deploymentName)

	serviceName := labels.ServiceName(fedid)
	err = m.client.CoreV1().Services(m.namespace).Delete(ctx, serviceName, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(int64(0)),
		PropagationPolicy:  ptr.To(metav1.DeletePropagationBackground),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		logger.Errorf("failed to delete service for %s: %v", fedid, err)
		return report
	}
	logger.Infof("Service deleted for %s: %s", fedid, serviceName)

	if err := m.ingress.RemoveRoute(ctx, fedid); err != nil {
		logger.Errorf("failed to remove ingress route for %s: %v", fedid, err)
		return report
	}
	logger.Infof("Ingress path removed for %s", fedid)

	m.tracker.Remove(fedid)

	report.WasSessionStopped = true
	return report
}

// sessionExists is the launch guard: a session is present when both the
// user's pod and service exist.
func (m *Manager) sessionExists(ctx context.Context, fedid string) (bool, error) {
	pods, err := m.client.CoreV1().Pods(m.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.AppSelector(fedid),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list pods for %s: %w", fedid, err)
	}

	_, err = m.client.CoreV1().Services(m.namespace).Get(ctx, labels.ServiceName(fedid), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get service for %s: %w", fedid, err)
	}

	return len(pods.Items) > 0, nil
}

// createResources materialises the session: service first, then the
// ingress route, then the deployment. A failed step aborts the sequence;
// the presence guard makes the next start retry from where this one
// stopped.
func (m *Manager) createResources(ctx context.Context, fedid string, uid int) error {
	rc := manifests.Context{
		FedID:           fedid,
		UID:             uid,
		GID:             uid,
		ServiceURL:      fmt.Sprintf("https://%s/%s/", labels.IngressHost, fedid),
		CASServer:       m.casServer,
		WebsocketServer: m.websocketServer,
	}

	svc, err := m.renderer.Service(rc)
	if err != nil {
		return err
	}
	created, err := m.client.CoreV1().Services(m.namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	logger.Infof("Service created for %s: %s", fedid, created.Name)

	if err := m.ingress.AddRoute(ctx, fedid); err != nil {
		return err
	}
	logger.Infof("Ingress path added for %s", fedid)

	dep, err := m.renderer.Deployment(rc)
	if err != nil {
		return err
	}
	createdDep, err := m.client.AppsV1().Deployments(m.namespace).Create(ctx, dep, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	logger.Infof("Deployment created for %s: %s", fedid, createdDep.Name)

	return nil
}

// waitForPodRunning blocks until the user's pod reports phase Running,
// bounded by the configured timeout.
func (m *Manager) waitForPodRunning(ctx context.Context, fedid string) error {
	selector := labels.AppSelector(fedid)
	pods := m.client.CoreV1().Pods(m.namespace)

	// The pod may already be running by the time the watch starts.
	existing, err := pods.List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return fmt.Errorf("failed to list pods for %s: %w", fedid, err)
	}
	for _, pod := range existing.Items {
		if pod.Status.Phase == corev1.PodRunning {
			return nil
		}
	}

	watcher, err := pods.Watch(ctx, metav1.ListOptions{
		LabelSelector:   selector,
		ResourceVersion: existing.ResourceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to watch pods for %s: %w", fedid, err)
	}

	isPodRunning := func(event apimwatch.Event) (bool, error) {
		pod, ok := event.Object.(*corev1.Pod)
		if !ok {
			return false, nil
		}
		return pod.Status.Phase == corev1.PodRunning, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.podReadyTimeout)
	defer cancel()

	if _, err := watchtools.UntilWithoutRetry(timeoutCtx, watcher, isPodRunning); err != nil {
		return fmt.Errorf("pod for %s not running: %w", fedid, err)
	}
	logger.Infof("Pod in %s's Deployment is now running", fedid)
	return nil
}
