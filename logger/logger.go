// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package logger defines a minimal logging interface so library packages are
// not tied to one logging backend, plus a logrus-backed implementation for
// standalone use.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, keyValuePairs ...any)
	Info(msg string, keyValuePairs ...any)
	Warn(msg string, keyValuePairs ...any)
	Error(msg string, keyValuePairs ...any)
}

type logrusAdapter struct {
	logger *logrus.Logger
}

// New creates a logrus-backed Logger writing to output at the given level.
// An empty or unknown level falls back to info.
func New(output io.Writer, level string) Logger {
	backend := logrus.New()
	backend.SetOutput(output)
	backend.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	backend.SetLevel(parsed)

	return &logrusAdapter{logger: backend}
}

// NewLogrusLogger wraps an existing logrus logger.
func NewLogrusLogger(backend *logrus.Logger) Logger {
	return &logrusAdapter{logger: backend}
}

func (a *logrusAdapter) Debug(msg string, keyValuePairs ...any) {
	a.logger.WithFields(keyValuePairsToFields(keyValuePairs)).Debug(msg)
}

func (a *logrusAdapter) Info(msg string, keyValuePairs ...any) {
	a.logger.WithFields(keyValuePairsToFields(keyValuePairs)).Info(msg)
}

func (a *logrusAdapter) Warn(msg string, keyValuePairs ...any) {
	a.logger.WithFields(keyValuePairsToFields(keyValuePairs)).Warn(msg)
}

func (a *logrusAdapter) Error(msg string, keyValuePairs ...any) {
	a.logger.WithFields(keyValuePairsToFields(keyValuePairs)).Error(msg)
}

// keyValuePairsToFields converts key-value pairs to logrus fields. Keys that
// are not strings, and a trailing key without a value, are skipped.
func keyValuePairsToFields(keyValuePairs []any) logrus.Fields {
	fields := make(logrus.Fields, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs)-1; i += 2 {
		key, ok := keyValuePairs[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyValuePairs[i+1]
	}
	return fields
}
