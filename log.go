// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem in log records.
type Component string

// Component identifiers.
const (
	ComponentHub     Component = "hub"
	ComponentAdapter Component = "adapter"
	ComponentDevice  Component = "device"
	ComponentCapture Component = "capture"
	ComponentServer  Component = "server"
)

// LogFormat selects the handler used by SetLogFormat.
type LogFormat int

// Log formats.
const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

var (
	logLevel  = new(slog.LevelVar)
	logMu     sync.RWMutex
	logOutput io.Writer = os.Stderr
	logger    *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelWarn)
	logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: logLevel}))
}

// SetLogLevel sets the minimum level of the package logger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel returns the minimum level of the package logger.
func LogLevel() slog.Level {
	return logLevel.Level()
}

// SetLogFormat switches the package logger between text and JSON output.
func SetLogFormat(format LogFormat) {
	logMu.Lock()
	defer logMu.Unlock()
	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case LogFormatJSON:
		logger = slog.New(slog.NewJSONHandler(logOutput, opts))
	default:
		logger = slog.New(slog.NewTextHandler(logOutput, opts))
	}
}

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = l
}

// Logger returns the package logger tagged with component.
func Logger(component Component) *slog.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	return l.With("component", string(component))
}

// NewLogger returns a text logger writing to w at the package level.
func NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// LogDebug logs at debug level for component.
func LogDebug(component Component, msg string, args ...any) {
	Logger(component).Debug(msg, args...)
}

// LogInfo logs at info level for component.
func LogInfo(component Component, msg string, args ...any) {
	Logger(component).Info(msg, args...)
}

// LogWarn logs at warn level for component.
func LogWarn(component Component, msg string, args ...any) {
	Logger(component).Warn(msg, args...)
}

// LogError logs at error level for component.
func LogError(component Component, msg string, args ...any) {
	Logger(component).Error(msg, args...)
}
