// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/retry"
)

var fast = retry.Config{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestSucceedsAfterConflicts(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	calls := 0
	err := retry.Do(ctx, zaptest.NewLogger(t), fast, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return docerr.Deadlock.New("conflict %d", calls)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGivesUp(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	calls := 0
	err := retry.Do(ctx, zaptest.NewLogger(t), fast, func(ctx context.Context) error {
		calls++
		return docerr.InternalIndexConflict.New("missing entry")
	})
	require.True(t, docerr.MaxRetriesExceeded.Has(err), err)
	require.True(t, docerr.InternalIndexConflict.Has(err), err)
	require.False(t, docerr.IsRetryable(err), err)
	assert.Equal(t, fast.MaxRetries+1, calls)
}

func TestNestedRetryStops(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	once := retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	calls := 0
	err := retry.Do(ctx, zaptest.NewLogger(t), fast, func(ctx context.Context) error {
		return retry.Do(ctx, zaptest.NewLogger(t), once, func(ctx context.Context) error {
			calls++
			return docerr.Deadlock.New("conflict")
		})
	})
	require.True(t, docerr.MaxRetriesExceeded.Has(err), err)
	require.True(t, docerr.Deadlock.Has(err), err)
	assert.Equal(t, once.MaxRetries+1, calls)
}

func TestPermanent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	calls := 0
	err := retry.Do(ctx, zaptest.NewLogger(t), fast, func(ctx context.Context) error {
		calls++
		return docerr.RevisionMismatch.New("stale")
	})
	require.True(t, docerr.RevisionMismatch.Has(err), err)
	require.False(t, docerr.MaxRetriesExceeded.Has(err))
	assert.Equal(t, 1, calls)
}
