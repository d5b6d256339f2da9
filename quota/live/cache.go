// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package live keeps a fast copy of per-owner storage usage next to the
// usage rows persisted by the database.
package live

import (
	"context"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the default live usage errs class.
	Error = errs.Class("live usage")

	mon = monkit.Package()
)

// Cache stores the current usage of every owner.
type Cache interface {
	// GetUsage returns the usage of owner, zero when unknown.
	GetUsage(ctx context.Context, owner string) (int64, error)
	// AddUsage adds delta to the usage of owner.
	AddUsage(ctx context.Context, owner string, delta int64) error
	// SetUsage overwrites the usage of owner.
	SetUsage(ctx context.Context, owner string, total int64) error
	// GetAllTotals returns the usage of every known owner.
	GetAllTotals(ctx context.Context) (map[string]int64, error)
	// ResetTotals forgets every owner.
	ResetTotals(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// Config contains configurable values for the live usage cache.
type Config struct {
	StorageBackend string `help:"what to use for storing live usage data: plainmemory or redis://host:port?db=N" default:"plainmemory"`
}

// NewCache creates the cache selected by config.
func NewCache(ctx context.Context, log *zap.Logger, config Config) (Cache, error) {
	parts := strings.SplitN(config.StorageBackend, ":", 2)
	backendType := parts[0]
	if backendType == "" {
		backendType = "plainmemory"
	}

	switch backendType {
	case "plainmemory":
		return newPlainMemoryCache(log), nil
	case "redis":
		return newRedisCache(ctx, log, config.StorageBackend)
	default:
		return nil, Error.New("unrecognized live usage backend specifier %q", backendType)
	}
}
