// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package watch_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/watch"
)

func wait(t *testing.T, watcher *watch.Watcher) {
	t.Helper()
	select {
	case <-watcher.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not finish")
	}
}

func TestFiresOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	notifier, err := watch.NewNotifier(zaptest.NewLogger(t), watch.Config{Workers: 2, Buffer: 4})
	require.NoError(t, err)

	var calls atomic.Int32
	watcher := notifier.Watch(kvstore.Key("k/A/"), kvstore.Key("k/A0"), func(key kvstore.Key) {
		calls.Add(1)
	})

	assert.Empty(t, notifier.Match(kvstore.Key("k/B/x")))
	matched := notifier.Match(kvstore.Key("k/A/x"))
	require.Len(t, matched, 1)
	assert.Equal(t, watcher.ID(), matched[0].ID())

	firing := []watch.Firing{{Watcher: watcher.ID(), Key: kvstore.Key("k/A/x")}}
	require.NoError(t, notifier.Publish(ctx, firing))
	wait(t, watcher)

	// a second commit touching the same watcher does nothing.
	require.NoError(t, notifier.Publish(ctx, firing))

	assert.True(t, watcher.Fired())
	assert.Equal(t, kvstore.Key("k/A/x"), watcher.Key())
	assert.False(t, watcher.Cancel())
	assert.Zero(t, notifier.Pending())

	require.NoError(t, notifier.Close())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	notifier, err := watch.NewNotifier(zaptest.NewLogger(t), watch.Config{Workers: 1, Buffer: 4})
	require.NoError(t, err)

	var calls atomic.Int32
	cancelled := notifier.Watch(kvstore.Key("a"), nil, func(kvstore.Key) { calls.Add(1) })
	other := notifier.Watch(kvstore.Key("a"), nil, nil)

	require.True(t, cancelled.Cancel())
	assert.True(t, cancelled.Cancelled())
	wait(t, cancelled)

	require.NoError(t, notifier.Publish(ctx, []watch.Firing{
		{Watcher: cancelled.ID(), Key: kvstore.Key("b")},
		{Watcher: other.ID(), Key: kvstore.Key("b")},
	}))
	wait(t, other)
	assert.True(t, other.Fired())

	require.NoError(t, notifier.Close())
	assert.Zero(t, calls.Load())
}

func TestCloseCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	notifier, err := watch.NewNotifier(zaptest.NewLogger(t), watch.Config{})
	require.NoError(t, err)

	watcher := notifier.Watch(kvstore.Key("x"), nil, nil)
	require.NoError(t, notifier.Close())

	wait(t, watcher)
	assert.True(t, watcher.Cancelled())
}
