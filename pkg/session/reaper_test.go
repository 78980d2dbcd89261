// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
)

func TestSweepDestroysIdleSession(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(testIngress(), sessionPod("abc12345", corev1.PodRunning))
	m, dir := newTestManager(t, client)
	dir.EXPECT().Lookup(gomock.Any(), "abc12345").Return(eligibleRecord(), nil)

	_, err := m.Start(context.Background(), "abc12345", nil)
	require.NoError(t, err)

	// Backdate the session's activity past the inactivity period.
	m.Tracker().Merge(map[string]time.Time{
		"abc12345": time.Now().Add(-13 * time.Hour),
	})

	r := NewReaper(m, time.Minute, 12*time.Hour)
	r.Sweep(context.Background())

	_, getErr := client.AppsV1().Deployments(testNamespace).Get(
		context.Background(), labels.DeploymentName("abc12345"), metav1.GetOptions{})
	assert.Error(t, getErr)
	_, tracked := m.Tracker().Get("abc12345")
	assert.False(t, tracked)
}

func TestSweepLeavesActiveSession(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(testIngress(), sessionPod("abc12345", corev1.PodRunning))
	m, dir := newTestManager(t, client)
	dir.EXPECT().Lookup(gomock.Any(), "abc12345").Return(eligibleRecord(), nil)

	_, err := m.Start(context.Background(), "abc12345", nil)
	require.NoError(t, err)

	r := NewReaper(m, time.Minute, 12*time.Hour)
	r.Sweep(context.Background())

	_, getErr := client.AppsV1().Deployments(testNamespace).Get(
		context.Background(), labels.DeploymentName("abc12345"), metav1.GetOptions{})
	assert.NoError(t, getErr)
}

func TestSweepSkipsUntrackedSession(t *testing.T) {
	t.Parallel()

	// A session pod with no activity entry is left alone; the entry
	// appears on the next heartbeat response.
	client := fake.NewSimpleClientset(sessionPod("abc12345", corev1.PodRunning))
	m, _ := newTestManager(t, client)

	r := NewReaper(m, time.Minute, 12*time.Hour)
	r.Sweep(context.Background())

	pods, err := client.CoreV1().Pods(testNamespace).List(
		context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, pods.Items, 1)
}
