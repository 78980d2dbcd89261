// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package ingress mutates the shared routing object that maps URL paths to
// per-user session services. The ingress is a singleton, so every mutation
// is a read-modify-write; a process-wide mutex serialises them and the
// update is retried when the apiserver reports a conflicting write.
package ingress

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/diamondlightsource/hebi-launcher/pkg/errors"
	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
)

const (
	// FieldManager identifies the launcher's writes on the ingress.
	FieldManager = "hebi-launcher"

	// rewritesAnnotation carries the nginx rewrite rules, one entry per
	// user service, joined by ";".
	rewritesAnnotation = "nginx.org/rewrites"

	// defaultAPIVersion is assumed when the ingress has no managed
	// fields to derive the apiVersion from.
	defaultAPIVersion = "networking.k8s.io/v1"

	maxConflictRetries = 4
)

// Mutator adds and removes per-user routes on the singleton ingress.
type Mutator struct {
	mu        sync.Mutex
	client    kubernetes.Interface
	namespace string
}

// NewMutator creates a mutator for the ingress in the given namespace.
func NewMutator(client kubernetes.Interface, namespace string) *Mutator {
	return &Mutator{client: client, namespace: namespace}
}

// AddRoute inserts the routing path for a user's service. Adding a route
// that is already present is a no-op, preserving path uniqueness.
func (m *Mutator) AddRoute(ctx context.Context, fedid string) error {
	return m.mutate(ctx, func(ing *networkingv1.Ingress) {
		addRoute(ing, fedid)
	})
}

// RemoveRoute drops the routing path for a user's service. When the last
// route goes, the rule collapses to its host-only form: the apiserver
// rejects an ingress rule carrying an empty paths list.
func (m *Mutator) RemoveRoute(ctx context.Context, fedid string) error {
	return m.mutate(ctx, func(ing *networkingv1.Ingress) {
		removeRoute(ing, fedid)
	})
}

// Routes returns the paths currently routed, keyed by path string.
func (m *Mutator) Routes(ctx context.Context) ([]string, error) {
	ing, err := m.client.NetworkingV1().Ingresses(m.namespace).Get(ctx, labels.IngressName, metav1.GetOptions{})
	if err != nil {
		return nil, errors.NewOrchestratorError("failed to read ingress", err)
	}
	var paths []string
	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, p := range rule.HTTP.Paths {
			paths = append(paths, p.Path)
		}
	}
	return paths, nil
}

// mutate runs one serialised read-modify-write cycle, retrying the whole
// cycle on write conflicts so a lost update can never slip through.
func (m *Mutator) mutate(ctx context.Context, modify func(*networkingv1.Ingress)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ingresses := m.client.NetworkingV1().Ingresses(m.namespace)

	attempt := func() error {
		ing, err := ingresses.Get(ctx, labels.IngressName, metav1.GetOptions{})
		if err != nil {
			return backoff.Permanent(err)
		}

		// Derive the apiVersion from the first manifest application when
		// the apiserver kept it, else assume the well-known default.
		apiVersion := defaultAPIVersion
		if len(ing.ManagedFields) > 0 && ing.ManagedFields[0].APIVersion != "" {
			apiVersion = ing.ManagedFields[0].APIVersion
		}
		ing.TypeMeta = metav1.TypeMeta{Kind: "Ingress", APIVersion: apiVersion}

		modify(ing)

		_, err = ingresses.Update(ctx, ing, metav1.UpdateOptions{FieldManager: FieldManager})
		if apierrors.IsConflict(err) {
			// Another writer got in between our read and write; re-read
			// and reapply.
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(attempt,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxConflictRetries), ctx))
	if err != nil {
		return errors.NewOrchestratorError("failed to patch ingress", err)
	}
	return nil
}

func addRoute(ing *networkingv1.Ingress, fedid string) {
	if len(ing.Spec.Rules) == 0 {
		ing.Spec.Rules = []networkingv1.IngressRule{{Host: labels.IngressHost}}
	}
	rule := &ing.Spec.Rules[0]
	if rule.HTTP == nil {
		rule.HTTP = &networkingv1.HTTPIngressRuleValue{}
	}

	path := labels.RoutePath(fedid)
	for _, p := range rule.HTTP.Paths {
		if p.Path == path {
			logger.Infof("ingress already routes %s, leaving it untouched", path)
			return
		}
	}

	pathType := networkingv1.PathTypePrefix
	rule.HTTP.Paths = append(rule.HTTP.Paths, networkingv1.HTTPIngressPath{
		Path:     path,
		PathType: &pathType,
		Backend: networkingv1.IngressBackend{
			Service: &networkingv1.IngressServiceBackend{
				Name: labels.ServiceName(fedid),
				Port: networkingv1.ServiceBackendPort{Number: labels.ServicePort},
			},
		},
	})

	addRewrite(ing, fedid)
}

func removeRoute(ing *networkingv1.Ingress, fedid string) {
	if len(ing.Spec.Rules) == 0 {
		return
	}
	rule := &ing.Spec.Rules[0]
	if rule.HTTP != nil {
		path := labels.RoutePath(fedid)
		kept := rule.HTTP.Paths[:0]
		for _, p := range rule.HTTP.Paths {
			if p.Path != path {
				kept = append(kept, p)
			}
		}
		rule.HTTP.Paths = kept

		if len(rule.HTTP.Paths) == 0 {
			ing.Spec.Rules[0] = networkingv1.IngressRule{Host: labels.IngressHost}
		}
	}

	removeRewrite(ing, fedid)
}

func addRewrite(ing *networkingv1.Ingress, fedid string) {
	entry := labels.RewriteAnnotation(fedid)
	if ing.Annotations == nil {
		ing.Annotations = map[string]string{}
	}

	existing, ok := ing.Annotations[rewritesAnnotation]
	if !ok || existing == "" {
		ing.Annotations[rewritesAnnotation] = entry
		return
	}

	entries := splitRewrites(existing)
	for _, e := range entries {
		if e == entry {
			return
		}
	}
	ing.Annotations[rewritesAnnotation] = joinRewrites(append(entries, entry))
}

func removeRewrite(ing *networkingv1.Ingress, fedid string) {
	existing, ok := ing.Annotations[rewritesAnnotation]
	if !ok {
		// A stop may arrive for a user with no session; nothing to remove.
		logger.Infof("no rewrite annotation to remove for %s", fedid)
		return
	}

	entry := labels.RewriteAnnotation(fedid)
	kept := make([]string, 0)
	for _, e := range splitRewrites(existing) {
		if e != entry {
			kept = append(kept, e)
		}
	}

	if len(kept) == 0 {
		// Dropping the key while it holds the final rewrite has been seen
		// to produce a patch the apiserver treats as empty and ignores;
		// removing it from an Update-submitted object avoids that path.
		delete(ing.Annotations, rewritesAnnotation)
		return
	}
	ing.Annotations[rewritesAnnotation] = joinRewrites(kept)
}
