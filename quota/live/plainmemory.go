// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package live

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// plainMemoryCache keeps usage in a map. It does not survive restarts, the
// database reseeds it from the persisted rows on open.
type plainMemoryCache struct {
	log *zap.Logger

	mu     sync.RWMutex
	totals map[string]int64
}

func newPlainMemoryCache(log *zap.Logger) *plainMemoryCache {
	return &plainMemoryCache{
		log:    log,
		totals: map[string]int64{},
	}
}

func (cache *plainMemoryCache) GetUsage(ctx context.Context, owner string) (int64, error) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return cache.totals[owner], nil
}

func (cache *plainMemoryCache) AddUsage(ctx context.Context, owner string, delta int64) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.totals[owner] += delta
	return nil
}

func (cache *plainMemoryCache) SetUsage(ctx context.Context, owner string, total int64) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.totals[owner] = total
	return nil
}

func (cache *plainMemoryCache) GetAllTotals(ctx context.Context) (map[string]int64, error) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	totals := make(map[string]int64, len(cache.totals))
	for owner, total := range cache.totals {
		totals[owner] = total
	}
	return totals, nil
}

func (cache *plainMemoryCache) ResetTotals(ctx context.Context) error {
	cache.log.Info("Resetting live usage data")
	cache.mu.Lock()
	cache.totals = map[string]int64{}
	cache.mu.Unlock()
	return nil
}

func (cache *plainMemoryCache) Close() error { return nil }
