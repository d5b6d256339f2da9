// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package shards

import (
	"context"

	"go.uber.org/zap"

	"storj.io/docstore/internal/sync2"
	"storj.io/docstore/pkg/docerr"
)

// Chore periodically purges stale shards.
type Chore struct {
	log    *zap.Logger
	engine *Engine
	days   int

	Loop *sync2.Cycle
}

// NewChore creates a purge chore for engine.
func NewChore(log *zap.Logger, engine *Engine, config Config) *Chore {
	return &Chore{
		log:    log,
		engine: engine,
		days:   config.PurgeOlderThanDays,
		Loop:   sync2.NewCycle(config.PurgeInterval),
	}
}

// Run runs the chore until ctx is cancelled or Close is called.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		err := chore.engine.PurgeShardObjects(ctx, chore.days)
		switch {
		case err == nil:
		case docerr.NotReady.Has(err):
			chore.log.Debug("shard engine not ready, skipping purge")
		default:
			chore.log.Error("shard purge failed", zap.Error(err))
		}
		return nil
	})
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
