// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains the conformance tests every kvstore.Store must pass.
package testsuite

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/private/kvstore"
)

// RunTests runs common kvstore.Store tests.
func RunTests(t *testing.T, store kvstore.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Iterate", func(t *testing.T) { testIterate(t, store) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, store) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, store) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, store) })
	t.Run("Done", func(t *testing.T) { testDone(t, store) })
}

func newItem(key, value string) kvstore.Item {
	return kvstore.Item{
		Key:   kvstore.Key(key),
		Value: kvstore.Value(value),
	}
}

func putItems(t *testing.T, ctx *testcontext.Context, store kvstore.Store, items kvstore.Items) {
	t.Helper()
	shuffled := kvstore.CloneItems(items)
	rand.Shuffle(len(shuffled), shuffled.Swap)

	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		for _, item := range shuffled {
			if err := tx.Put(ctx, item.Key, item.Value); err != nil {
				return err
			}
		}
		return nil
	}))
}

func cleanupItems(t *testing.T, ctx *testcontext.Context, store kvstore.Store, items kvstore.Items) {
	t.Helper()
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		for _, item := range items {
			_ = tx.Delete(ctx, item.Key)
		}
		return nil
	}))
}

func testCRUD(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := kvstore.Items{
		newItem("\x00", "\x00"),
		newItem("a/b", "\x01\x00"),
		newItem("a\\b", "\xFF"),
		newItem("full/path/1", "\x00\xFF\xFF\x00"),
		newItem("\xFF", "\xFF\xFF"),
	}
	putItems(t, ctx, store, items)
	defer cleanupItems(t, ctx, store, items)

	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		for _, item := range items {
			value, err := tx.Get(ctx, item.Key)
			require.NoError(t, err)
			require.Equal(t, item.Value, value)
		}
		_, err := tx.Get(ctx, kvstore.Key("missing"))
		require.True(t, kvstore.ErrKeyNotFound.Has(err), err)
		return nil
	}))

	// overwrite
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("a/b"), kvstore.Value("changed"))
	}))
	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		value, err := tx.Get(ctx, kvstore.Key("a/b"))
		require.NoError(t, err)
		require.Equal(t, kvstore.Value("changed"), value)
		return nil
	}))

	// delete
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		require.NoError(t, tx.Delete(ctx, kvstore.Key("a/b")))
		err := tx.Delete(ctx, kvstore.Key("a/b"))
		require.True(t, kvstore.ErrKeyNotFound.Has(err), err)
		return nil
	}))
	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		_, err := tx.Get(ctx, kvstore.Key("a/b"))
		require.True(t, kvstore.ErrKeyNotFound.Has(err), err)
		return nil
	}))

	// empty keys
	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		err := tx.Put(ctx, nil, kvstore.Value("x"))
		require.True(t, kvstore.ErrEmptyKey.Has(err), err)
		_, err = tx.Get(ctx, kvstore.Key{})
		require.True(t, kvstore.ErrEmptyKey.Has(err), err)
		return nil
	}))
}

func testIterate(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := kvstore.Items{
		newItem("a", "a"),
		newItem("b/1", "b/1"),
		newItem("b/2", "b/2"),
		newItem("b/3", "b/3"),
		newItem("c", "c"),
		newItem("c/", "c/"),
		newItem("c//", "c//"),
		newItem("c/1", "c/1"),
		newItem("g", "g"),
		newItem("h", "h"),
	}
	putItems(t, ctx, store, items)
	defer cleanupItems(t, ctx, store, items)

	type Test struct {
		Name     string
		Options  kvstore.IterateOptions
		Expected kvstore.Items
	}

	tests := []Test{
		{"no limits",
			kvstore.IterateOptions{},
			items,
		},
		{"no limits reverse",
			kvstore.IterateOptions{Reverse: true},
			reversed(items),
		},
		{"prefix b",
			kvstore.IterateOptions{Prefix: kvstore.Key("b/")},
			kvstore.Items{newItem("b/1", "b/1"), newItem("b/2", "b/2"), newItem("b/3", "b/3")},
		},
		{"prefix b reverse",
			kvstore.IterateOptions{Prefix: kvstore.Key("b/"), Reverse: true},
			kvstore.Items{newItem("b/3", "b/3"), newItem("b/2", "b/2"), newItem("b/1", "b/1")},
		},
		{"prefix b at 2",
			kvstore.IterateOptions{Prefix: kvstore.Key("b/"), First: kvstore.Key("b/2")},
			kvstore.Items{newItem("b/2", "b/2"), newItem("b/3", "b/3")},
		},
		{"prefix b reverse at 2",
			kvstore.IterateOptions{Prefix: kvstore.Key("b/"), First: kvstore.Key("b/2"), Reverse: true},
			kvstore.Items{newItem("b/2", "b/2"), newItem("b/1", "b/1")},
		},
		{"prefix b reverse after range",
			kvstore.IterateOptions{Prefix: kvstore.Key("b/"), First: kvstore.Key("z"), Reverse: true},
			kvstore.Items{newItem("b/3", "b/3"), newItem("b/2", "b/2"), newItem("b/1", "b/1")},
		},
		{"prefix c",
			kvstore.IterateOptions{Prefix: kvstore.Key("c/")},
			kvstore.Items{newItem("c/", "c/"), newItem("c//", "c//"), newItem("c/1", "c/1")},
		},
		{"at d",
			kvstore.IterateOptions{First: kvstore.Key("d")},
			kvstore.Items{newItem("g", "g"), newItem("h", "h")},
		},
		{"reverse at d",
			kvstore.IterateOptions{First: kvstore.Key("d"), Reverse: true},
			reversed(items[:8]),
		},
		{"prefix missing",
			kvstore.IterateOptions{Prefix: kvstore.Key("x/")},
			nil,
		},
	}

	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		for _, test := range tests {
			got, err := kvstore.Collect(ctx, tx, test.Options)
			require.NoError(t, err, test.Name)
			assert.Equal(t, test.Expected.GetKeys().Strings(), got.GetKeys().Strings(), test.Name)
			for i := range got {
				if i < len(test.Expected) {
					assert.Equal(t, test.Expected[i].Value, got[i].Value, test.Name)
				}
			}
		}
		return nil
	}))
}

func reversed(items kvstore.Items) kvstore.Items {
	result := kvstore.CloneItems(items)
	for i, k := 0, len(result)-1; i < k; i, k = i+1, k-1 {
		result[i], result[k] = result[k], result[i]
	}
	return result
}

func testRollback(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tx, err := store.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, kvstore.Key("rollback"), kvstore.Value("value")))
	require.NoError(t, tx.Rollback())
	// rollback is idempotent
	require.NoError(t, tx.Rollback())

	require.NoError(t, kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		_, err := tx.Get(ctx, kvstore.Key("rollback"))
		require.True(t, kvstore.ErrKeyNotFound.Has(err), err)
		return nil
	}))
}

func testReadYourWrites(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := kvstore.Items{newItem("ryw/a", "1"), newItem("ryw/c", "3")}
	putItems(t, ctx, store, items)
	defer cleanupItems(t, ctx, store, kvstore.Items{newItem("ryw/a", ""), newItem("ryw/b", ""), newItem("ryw/c", "")})

	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		require.NoError(t, tx.Put(ctx, kvstore.Key("ryw/b"), kvstore.Value("2")))
		require.NoError(t, tx.Delete(ctx, kvstore.Key("ryw/c")))

		value, err := tx.Get(ctx, kvstore.Key("ryw/b"))
		require.NoError(t, err)
		require.Equal(t, kvstore.Value("2"), value)

		got, err := kvstore.Collect(ctx, tx, kvstore.IterateOptions{Prefix: kvstore.Key("ryw/")})
		require.NoError(t, err)
		require.Equal(t, []string{"ryw/a", "ryw/b"}, got.GetKeys().Strings())
		return nil
	}))
}

func testReadOnly(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tx, err := store.Begin(ctx, false)
	require.NoError(t, err)
	defer func() { require.NoError(t, tx.Rollback()) }()

	require.False(t, tx.Writable())
	err = tx.Put(ctx, kvstore.Key("readonly"), kvstore.Value("x"))
	require.True(t, kvstore.ErrReadOnly.Has(err), err)
}

func testDone(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tx, err := store.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, kvstore.Key("done"), kvstore.Value("x")))
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.Get(ctx, kvstore.Key("done"))
	require.True(t, kvstore.ErrTxDone.Has(err), err)
	err = tx.Commit(ctx)
	require.True(t, kvstore.ErrTxDone.Has(err), err)

	cleanupItems(t, ctx, store, kvstore.Items{newItem("done", "")})
}
