// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package k8s creates the Kubernetes clientset for the launcher.
package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// localAPIServer is where development runs expect a kubectl proxy.
const localAPIServer = "http://localhost:8090"

// NewClient creates a clientset. In-cluster deployments use the mounted
// service account; anything else talks to a local API server proxy.
func NewClient(inCluster bool) (kubernetes.Interface, error) {
	config, err := getConfig(inCluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}

func getConfig(inCluster bool) (*rest.Config, error) {
	if inCluster {
		return rest.InClusterConfig()
	}
	return &rest.Config{Host: localAPIServer}, nil
}
