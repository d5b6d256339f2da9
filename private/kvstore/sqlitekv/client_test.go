// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sqlitekv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := New(zaptest.NewLogger(t), ctx.File("sqlite", "data.db"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

func TestCommittedVisibleToReaders(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := New(zaptest.NewLogger(t), ctx.File("sqlite", "data.db"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("o/1"), kvstore.Value(`{"_id":"1"}`))
	}))

	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		value, err := tx.Get(ctx, kvstore.Key("o/1"))
		require.NoError(t, err)
		require.Equal(t, kvstore.Value(`{"_id":"1"}`), value)
		return nil
	}))
}
