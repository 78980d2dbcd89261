// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package ingress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
)

const testNamespace = "twi18192"

func emptyIngress() *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        labels.IngressName,
			Namespace:   testNamespace,
			Annotations: map[string]string{},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{Host: labels.IngressHost}},
		},
	}
}

func getIngress(t *testing.T, client *fake.Clientset) *networkingv1.Ingress {
	t.Helper()
	ing, err := client.NetworkingV1().Ingresses(testNamespace).Get(
		context.Background(), labels.IngressName, metav1.GetOptions{})
	require.NoError(t, err)
	return ing
}

func TestAddRouteInitialisesPaths(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)

	require.NoError(t, m.AddRoute(context.Background(), "abc12345"))

	ing := getIngress(t, client)
	require.NotNil(t, ing.Spec.Rules[0].HTTP)
	require.Len(t, ing.Spec.Rules[0].HTTP.Paths, 1)

	p := ing.Spec.Rules[0].HTTP.Paths[0]
	assert.Equal(t, "/abc12345(/|$)(.*)", p.Path)
	assert.Equal(t, networkingv1.PathTypePrefix, *p.PathType)
	assert.Equal(t, "hebi-service-abc12345", p.Backend.Service.Name)
	assert.Equal(t, int32(8080), p.Backend.Service.Port.Number)

	assert.Equal(t, "serviceName=hebi-service-abc12345 rewrite=/",
		ing.Annotations["nginx.org/rewrites"])
}

func TestAddRouteIsIdempotent(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)
	ctx := context.Background()

	require.NoError(t, m.AddRoute(ctx, "abc12345"))
	require.NoError(t, m.AddRoute(ctx, "abc12345"))

	ing := getIngress(t, client)
	assert.Len(t, ing.Spec.Rules[0].HTTP.Paths, 1)
	assert.Equal(t, "serviceName=hebi-service-abc12345 rewrite=/",
		ing.Annotations["nginx.org/rewrites"])
}

func TestAddSecondRouteAppends(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)
	ctx := context.Background()

	require.NoError(t, m.AddRoute(ctx, "abc12345"))
	require.NoError(t, m.AddRoute(ctx, "xyz99"))

	ing := getIngress(t, client)
	require.Len(t, ing.Spec.Rules[0].HTTP.Paths, 2)
	assert.Equal(t,
		"serviceName=hebi-service-abc12345 rewrite=/;serviceName=hebi-service-xyz99 rewrite=/",
		ing.Annotations["nginx.org/rewrites"])

	paths, err := m.Routes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/abc12345(/|$)(.*)", "/xyz99(/|$)(.*)"}, paths)
}

func TestRemoveRouteKeepsOthers(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)
	ctx := context.Background()

	require.NoError(t, m.AddRoute(ctx, "abc12345"))
	require.NoError(t, m.AddRoute(ctx, "xyz99"))
	require.NoError(t, m.RemoveRoute(ctx, "abc12345"))

	ing := getIngress(t, client)
	require.Len(t, ing.Spec.Rules[0].HTTP.Paths, 1)
	assert.Equal(t, "/xyz99(/|$)(.*)", ing.Spec.Rules[0].HTTP.Paths[0].Path)
	assert.Equal(t, "serviceName=hebi-service-xyz99 rewrite=/",
		ing.Annotations["nginx.org/rewrites"])
}

func TestRemoveLastRouteCollapsesRule(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)
	ctx := context.Background()

	require.NoError(t, m.AddRoute(ctx, "abc12345"))
	require.NoError(t, m.RemoveRoute(ctx, "abc12345"))

	ing := getIngress(t, client)
	require.Len(t, ing.Spec.Rules, 1)
	assert.Equal(t, labels.IngressHost, ing.Spec.Rules[0].Host)
	assert.Nil(t, ing.Spec.Rules[0].HTTP)

	_, hasRewrites := ing.Annotations["nginx.org/rewrites"]
	assert.False(t, hasRewrites)
}

func TestRemoveRouteOnAbsentSession(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(emptyIngress())
	m := NewMutator(client, testNamespace)

	require.NoError(t, m.RemoveRoute(context.Background(), "ghost"))

	ing := getIngress(t, client)
	assert.Nil(t, ing.Spec.Rules[0].HTTP)
}

func TestMutateMissingIngress(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset()
	m := NewMutator(client, testNamespace)

	err := m.AddRoute(context.Background(), "abc12345")
	require.Error(t, err)
}

func TestSplitJoinRewrites(t *testing.T) {
	t.Parallel()

	assert.Empty(t, splitRewrites(""))
	assert.Equal(t, []string{"a", "b"}, splitRewrites("a;b"))
	assert.Equal(t, []string{"a", "b"}, splitRewrites("a; b;"))
	assert.Equal(t, "a;b", joinRewrites([]string{"a", "b"}))
}
