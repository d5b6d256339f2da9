// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package quota_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/teststore"
	"storj.io/docstore/quota"
	"storj.io/docstore/quota/live"
)

func newEngine(t *testing.T, ctx *testcontext.Context, config quota.Config) *quota.Engine {
	log := zaptest.NewLogger(t)
	cache, err := live.NewCache(ctx, log, config.Live)
	require.NoError(t, err)
	engine, err := quota.NewEngine(log, cache, config)
	require.NoError(t, err)
	return engine
}

func TestConfig(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	engine := newEngine(t, ctx, quota.Config{DefaultLimit: "1KB", Limits: "big=1MiB, none=0"})
	defer ctx.Check(engine.Close)

	assert.Equal(t, int64(1000), engine.Limit("anyone"))
	assert.Equal(t, int64(1<<20), engine.Limit("big"))
	assert.Equal(t, int64(0), engine.Limit("none"))

	cache, err := live.NewCache(ctx, zaptest.NewLogger(t), live.Config{})
	require.NoError(t, err)
	_, err = quota.NewEngine(zaptest.NewLogger(t), cache, quota.Config{DefaultLimit: "lots"})
	require.Error(t, err)
	_, err = quota.NewEngine(zaptest.NewLogger(t), cache, quota.Config{Limits: "=5"})
	require.Error(t, err)
}

func TestCheckApply(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	engine := newEngine(t, ctx, quota.Config{Limits: "small=100"})
	defer ctx.Check(engine.Close)

	apply := func(deltas quota.Deltas) error {
		return kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
			if err := engine.Check(ctx, tx, deltas); err != nil {
				return err
			}
			return engine.Apply(ctx, tx, deltas)
		})
	}

	require.NoError(t, apply(quota.Deltas{"small": 60, "unlimited": 1 << 30}))

	err := apply(quota.Deltas{"small": 41})
	require.Error(t, err)
	assert.True(t, docerr.QuotaExceeded.Has(err))

	require.NoError(t, apply(quota.Deltas{"small": 40}))
	// shrinking is allowed even at the limit.
	require.NoError(t, apply(quota.Deltas{"small": -30}))

	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		usage, err := engine.Usage(ctx, tx, "small")
		require.NoError(t, err)
		assert.Equal(t, int64(70), usage)
		return nil
	}))

	// the live cache starts empty until it is synced.
	cached, err := engine.CachedUsage(ctx, "small")
	require.NoError(t, err)
	assert.Zero(t, cached)

	require.NoError(t, engine.Sync(ctx, store))
	cached, err = engine.CachedUsage(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, int64(70), cached)

	engine.Refresh(ctx, quota.Deltas{"small": 5})
	cached, err = engine.CachedUsage(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, int64(75), cached)
}
