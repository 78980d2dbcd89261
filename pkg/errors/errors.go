// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error kinds used across the launcher and the
// auth gateway.
package errors

import (
	"fmt"
)

// Error types
const (
	// ErrDirectory is returned when an LDAP bind or search fails
	ErrDirectory = "directory"

	// ErrOrchestrator is returned when a Kubernetes API call fails
	ErrOrchestrator = "orchestrator"

	// ErrSnapshot is returned when the activity snapshot cannot be read or written
	ErrSnapshot = "snapshot"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewDirectoryError creates a new directory error
func NewDirectoryError(message string, cause error) *Error {
	return NewError(ErrDirectory, message, cause)
}

// NewOrchestratorError creates a new orchestrator error
func NewOrchestratorError(message string, cause error) *Error {
	return NewError(ErrOrchestrator, message, cause)
}

// NewSnapshotError creates a new snapshot error
func NewSnapshotError(message string, cause error) *Error {
	return NewError(ErrSnapshot, message, cause)
}

// IsDirectory checks if the error is a directory error
func IsDirectory(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrDirectory
}

// IsOrchestrator checks if the error is an orchestrator error
func IsOrchestrator(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrOrchestrator
}

// IsSnapshot checks if the error is a snapshot error
func IsSnapshot(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrSnapshot
}
