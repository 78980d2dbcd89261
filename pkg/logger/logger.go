// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the logging capability for the hebi launcher and
// the auth gateway.
//
// It keeps a process-wide zap logger behind a small package API so that
// handlers and background tasks can log without threading a logger value
// through every call. Use [Get] to obtain the underlying logger for
// injection into structs.
package logger

import (
	"strconv"
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	l, _ := zap.NewProduction()
	singleton.Store(l.Sugar())
}

func get() *zap.SugaredLogger {
	return singleton.Load()
}

// Get returns the underlying *zap.SugaredLogger for injection into structs.
func Get() *zap.SugaredLogger {
	return get()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use [Initialize] instead.
func Set(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// Initialize creates and configures the appropriate logger.
// If the UNSTRUCTURED_LOGS env var is set to true, it outputs console text.
// Otherwise it creates a standard structured JSON logger.
func Initialize() {
	InitializeWithGetenv(viper.GetString)
}

// InitializeWithGetenv creates and configures the logger with a custom
// environment lookup. This allows dependency injection of environment
// variable access for testing.
func InitializeWithGetenv(getenv func(string) string) {
	cfg := zap.NewProductionConfig()
	if unstructuredLogs(getenv) {
		cfg = zap.NewDevelopmentConfig()
	}
	if viper.GetBool("debug") {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		// zap only fails on invalid config, which the presets above are not,
		// but don't leave the singleton half-set either way.
		return
	}
	singleton.Store(l.Sugar())
}

func unstructuredLogs(getenv func(string) string) bool {
	unstructured, err := strconv.ParseBool(getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		// the env var wasn't set, or is "", which means we default to
		// outputting unstructured logs.
		return true
	}
	return unstructured
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a message at debug level using the singleton logger.
func Debugf(msg string, args ...any) {
	get().Debugf(msg, args...)
}

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs a message at info level using the singleton logger.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a message at info level using the singleton logger.
func Infof(msg string, args ...any) {
	get().Infof(msg, args...)
}

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a message at warning level using the singleton logger.
func Warnf(msg string, args ...any) {
	get().Warnf(msg, args...)
}

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs a message at error level using the singleton logger.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a message at error level using the singleton logger.
func Errorf(msg string, args ...any) {
	get().Errorf(msg, args...)
}

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Errorw(msg, keysAndValues...)
}

// Panicf logs a message at error level using the singleton logger and panics
// the program.
func Panicf(msg string, args ...any) {
	get().Panicf(msg, args...)
}

// Fatalf logs a message at error level using the singleton logger and exits
// the program.
func Fatalf(msg string, args ...any) {
	get().Fatalf(msg, args...)
}
