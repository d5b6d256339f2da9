// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	store := New()
	defer func() { require.NoError(t, store.Close()) }()

	testsuite.RunTests(t, store)
}

func TestConflictingWriters(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := New()

	counter := kvstore.Key("m/rev")
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, counter, kvstore.Value("1"))
	}))

	first, err := store.Begin(ctx, true)
	require.NoError(t, err)
	second, err := store.Begin(ctx, true)
	require.NoError(t, err)

	for _, tx := range []kvstore.Txn{first, second} {
		_, err := tx.Get(ctx, counter)
		require.NoError(t, err)
		require.NoError(t, tx.Put(ctx, counter, kvstore.Value("2")))
	}

	require.NoError(t, first.Commit(ctx))
	err = second.Commit(ctx)
	require.True(t, kvstore.ErrConflict.Has(err), err)
	require.Equal(t, 1, store.CallCount.Conflict)
}

func TestRangeConflict(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := New()

	scanner, err := store.Begin(ctx, true)
	require.NoError(t, err)
	items, err := kvstore.Collect(ctx, scanner, kvstore.IterateOptions{Prefix: kvstore.Key("k/A/")})
	require.NoError(t, err)
	require.Empty(t, items)
	require.NoError(t, scanner.Put(ctx, kvstore.Key("summary"), kvstore.Value("0")))

	// a phantom insert into the scanned range
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("k/A/1"), kvstore.Value("1"))
	}))

	err = scanner.Commit(ctx)
	require.True(t, kvstore.ErrConflict.Has(err), err)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := New()

	reader, err := store.Begin(ctx, false)
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Rollback()) }()

	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("late"), kvstore.Value("1"))
	}))

	_, err = reader.Get(ctx, kvstore.Key("late"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err), err)
	require.Equal(t, 1, store.Len())
}
