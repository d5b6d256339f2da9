// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package txn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/teststore"
	"storj.io/docstore/quota"
	"storj.io/docstore/quota/live"
	"storj.io/docstore/txn"
	"storj.io/docstore/watch"
)

type env struct {
	store    *teststore.Client
	notifier *watch.Notifier
	quota    *quota.Engine
}

func newEnv(t *testing.T, ctx *testcontext.Context) *env {
	log := zaptest.NewLogger(t)

	notifier, err := watch.NewNotifier(log, watch.Config{Workers: 1})
	require.NoError(t, err)

	cache, err := live.NewCache(ctx, log, live.Config{})
	require.NoError(t, err)
	engine, err := quota.NewEngine(log, cache, quota.Config{Limits: "limited=10"})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, notifier.Close())
		require.NoError(t, engine.Close())
	})
	return &env{store: teststore.New(), notifier: notifier, quota: engine}
}

func (env *env) begin(t *testing.T, ctx context.Context) *txn.Transaction {
	tx, err := txn.Begin(ctx, zaptest.NewLogger(t), env.store, true, env.notifier, env.quota)
	require.NoError(t, err)
	return tx
}

func TestCommitOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newEnv(t, ctx)

	var order []string
	watcher := env.notifier.Watch(kvstore.Key("o/"), kvstore.Key("o0"), func(kvstore.Key) {})

	tx := env.begin(t, ctx)
	tx.OnPreCommit(func(ctx context.Context) error {
		order = append(order, "pre")
		// nothing is visible before the engine commits.
		assert.Zero(t, env.store.Len())
		return nil
	})
	tx.OnPostCommit(func(ctx context.Context) error {
		order = append(order, "post")
		assert.NotZero(t, env.store.Len())
		assert.False(t, watcher.Fired())
		return errors.New("ignored")
	})

	require.NoError(t, tx.Put(ctx, kvstore.Key("o/2"), kvstore.Value("b")))
	require.NoError(t, tx.Put(ctx, kvstore.Key("o/1"), kvstore.Value("a")))
	tx.OffsetQuota("owner", 2)

	key, ok := tx.WatcherKey(watcher)
	require.True(t, ok)
	assert.Equal(t, kvstore.Key("o/1"), key, "the lowest key wins")

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, []string{"pre", "post"}, order)

	select {
	case <-watcher.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not fire")
	}
	assert.True(t, watcher.Fired())
	assert.Equal(t, kvstore.Key("o/1"), watcher.Key())

	usage, err := env.quota.CachedUsage(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage)

	err = tx.Commit(ctx)
	assert.True(t, kvstore.ErrTxDone.Has(err))
	require.NoError(t, tx.Rollback())
}

func TestPreCommitFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newEnv(t, ctx)

	watcher := env.notifier.Watch(kvstore.Key("o/"), kvstore.Key("o0"), nil)

	tx := env.begin(t, ctx)
	require.NoError(t, tx.Put(ctx, kvstore.Key("o/1"), kvstore.Value("a")))
	tx.OnPreCommit(func(ctx context.Context) error { return errors.New("no") })
	require.Error(t, tx.Commit(ctx))

	assert.Zero(t, env.store.Len())
	assert.False(t, watcher.Fired())
	assert.True(t, watcher.Cancel())
}

func TestQuotaExceeded(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newEnv(t, ctx)

	tx := env.begin(t, ctx)
	require.NoError(t, tx.Put(ctx, kvstore.Key("o/1"), kvstore.Value("0123456789")))
	tx.OffsetQuota("limited", 10)
	require.NoError(t, tx.Commit(ctx))

	tx = env.begin(t, ctx)
	require.NoError(t, tx.Put(ctx, kvstore.Key("o/2"), kvstore.Value("x")))
	tx.OffsetQuota("limited", 1)
	assert.Equal(t, int64(1), tx.QuotaOffset("limited"))
	err := tx.Commit(ctx)
	require.Error(t, err)
	assert.True(t, docerr.QuotaExceeded.Has(err))

	require.NoError(t, kvstore.View(ctx, env.store, func(tx kvstore.Txn) error {
		_, err := tx.Get(ctx, kvstore.Key("o/2"))
		assert.True(t, kvstore.ErrKeyNotFound.Has(err))
		usage, err := env.quota.Usage(ctx, tx, "limited")
		require.NoError(t, err)
		assert.Equal(t, int64(10), usage)
		return nil
	}))
}

func TestConflictingCommit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newEnv(t, ctx)

	watcher := env.notifier.Watch(kvstore.Key("o/x"), kvstore.Key("o/y"), nil)

	first := env.begin(t, ctx)
	second := env.begin(t, ctx)

	_, err := first.Get(ctx, kvstore.Key("o/x"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err))
	_, err = second.Get(ctx, kvstore.Key("o/x"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err))

	require.NoError(t, first.Put(ctx, kvstore.Key("o/x"), kvstore.Value("1")))
	require.NoError(t, second.Put(ctx, kvstore.Key("o/x"), kvstore.Value("2")))

	require.NoError(t, second.Commit(ctx))
	select {
	case <-watcher.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not fire")
	}

	err = first.Commit(ctx)
	require.Error(t, err)
	assert.True(t, kvstore.ErrConflict.Has(err))
}
