// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package watch

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// LoggerAdapter writes watermill logs to zap.
type LoggerAdapter struct {
	log *zap.Logger
}

// NewLoggerAdapter wraps log.
func NewLoggerAdapter(log *zap.Logger) *LoggerAdapter {
	return &LoggerAdapter{log: log}
}

func fields(fields watermill.LogFields) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		result = append(result, zap.Any(key, value))
	}
	return result
}

// Error logs an error.
func (adapter *LoggerAdapter) Error(msg string, err error, logFields watermill.LogFields) {
	adapter.log.Error(msg, append(fields(logFields), zap.Error(err))...)
}

// Info logs at info level.
func (adapter *LoggerAdapter) Info(msg string, logFields watermill.LogFields) {
	adapter.log.Info(msg, fields(logFields)...)
}

// Debug logs at debug level.
func (adapter *LoggerAdapter) Debug(msg string, logFields watermill.LogFields) {
	adapter.log.Debug(msg, fields(logFields)...)
}

// Trace logs at debug level, zap has nothing finer.
func (adapter *LoggerAdapter) Trace(msg string, logFields watermill.LogFields) {
	adapter.log.Debug(msg, fields(logFields)...)
}

// With returns an adapter that adds logFields to every entry.
func (adapter *LoggerAdapter) With(logFields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{log: adapter.log.With(fields(logFields)...)}
}
