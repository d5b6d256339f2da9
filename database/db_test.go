// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/docstore/database"
	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/pkg/revset"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/boltdb"
	"storj.io/docstore/private/kvstore/teststore"
	"storj.io/docstore/quota"
)

var noteKind = kinds.Kind{
	Name: "Note",
	Schema: map[string]any{
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"score": map[string]any{"type": "number"},
		},
	},
	Indexes: []query.Index{
		{Name: "byTag", Props: []string{"tag"}},
		{Name: "byScore", Props: []string{"score"}},
	},
	RevSets: []revset.Definition{
		{Name: "titleRev", Props: []string{"title"}},
	},
}

// run runs fn against a fresh database on every store engine.
func run(t *testing.T, fn func(t *testing.T, ctx *testcontext.Context, db *database.DB)) {
	t.Run("teststore", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		db := open(t, ctx, teststore.New(), database.Config{})
		fn(t, ctx, db)
	})

	t.Run("bolt", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		store, err := boltdb.New(zaptest.NewLogger(t), ctx.File("docstore.db"), "docstore")
		require.NoError(t, err)
		defer ctx.Check(store.Close)

		db := open(t, ctx, store, database.Config{})
		fn(t, ctx, db)
	})
}

func open(t *testing.T, ctx *testcontext.Context, store kvstore.Store, config database.Config) *database.DB {
	db, err := database.Open(ctx, zaptest.NewLogger(t), store, config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	require.NoError(t, db.PutKind(ctx, noteKind))
	return db
}

func rev(t *testing.T, obj document.Object) int64 {
	t.Helper()
	rev, ok := obj.Rev()
	require.True(t, ok, "object without revision")
	return rev
}

func TestPutGet(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "first"}, database.PutOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, stored.ID())
		first := rev(t, stored)

		got, err := db.Get(ctx, stored.ID())
		require.NoError(t, err)
		assert.Equal(t, "first", got["title"])
		assert.Equal(t, "Note", got.Kind())
		assert.Equal(t, first, rev(t, got))

		_, err = db.Put(ctx, document.Object{"_id": stored.ID(), "_kind": "Note", "title": "again"}, database.PutOptions{})
		require.True(t, docerr.RevNotSpecified.Has(err), err)

		_, err = db.Put(ctx, document.Object{"_id": stored.ID(), "_kind": "Note", "_rev": first - 1, "title": "again"}, database.PutOptions{})
		require.True(t, docerr.RevisionMismatch.Has(err), err)

		replaced, err := db.Put(ctx, document.Object{"_id": stored.ID(), "_kind": "Note", "_rev": first, "title": "again"}, database.PutOptions{})
		require.NoError(t, err)
		assert.Greater(t, rev(t, replaced), first)

		_, err = db.Put(ctx, document.Object{"_kind": "Note", "title": 5}, database.PutOptions{})
		require.True(t, docerr.InvalidObject.Has(err), err)

		_, err = db.Put(ctx, document.Object{"_kind": "Missing", "title": "x"}, database.PutOptions{})
		require.True(t, docerr.KindNotRegistered.Has(err), err)

		_, err = db.Put(ctx, document.Object{"title": "x"}, database.PutOptions{})
		require.True(t, docerr.InvalidObject.Has(err), err)

		_, err = db.Get(ctx, "missing")
		require.True(t, docerr.ObjectNotFound.Has(err), err)
	})
}

func TestBatchIsAtomic(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		batch, err := db.Begin(ctx)
		require.NoError(t, err)

		a, err := batch.Put(ctx, document.Object{"_kind": "Note", "title": "a"}, database.PutOptions{})
		require.NoError(t, err)
		b, err := batch.Put(ctx, document.Object{"_kind": "Note", "title": "b"}, database.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, rev(t, a)+1, rev(t, b))

		// visible inside the batch only
		_, err = batch.Get(ctx, a.ID())
		require.NoError(t, err)
		require.NoError(t, batch.Rollback())

		_, err = db.Get(ctx, a.ID())
		require.True(t, docerr.ObjectNotFound.Has(err), err)

		_, err = batch.Put(ctx, document.Object{"_kind": "Note", "title": "c"}, database.PutOptions{})
		require.True(t, kvstore.ErrTxDone.Has(err), err)
	})
}

func TestDeleteAndRevive(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "doomed", "tag": "x"}, database.PutOptions{})
		require.NoError(t, err)
		id := stored.ID()

		found, deletedRev, err := db.Del(ctx, id, database.DelOptions{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Greater(t, deletedRev, rev(t, stored))

		_, err = db.Get(ctx, id)
		require.True(t, docerr.ObjectNotFound.Has(err), err)

		live, _, err := db.Find(ctx, query.Query{Kind: "Note", Where: []query.Where{{Prop: "tag", Op: query.Eq, Value: "x"}}})
		require.NoError(t, err)
		assert.Empty(t, live)

		all, _, err := db.Find(ctx, query.Query{Kind: "Note", IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].Deleted())
		assert.Equal(t, "doomed", all[0]["title"])
		assert.Equal(t, deletedRev, rev(t, all[0]))
		// markers of tombstones move to the deletion
		assert.EqualValues(t, deletedRev, all[0]["titleRev"])

		// deleting again changes nothing
		found, again, err := db.Del(ctx, id, database.DelOptions{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, deletedRev, again)

		revived, err := db.Merge(ctx, document.Object{"_id": id, "title": "revived"})
		require.NoError(t, err)
		assert.False(t, revived.Deleted())
		assert.Equal(t, "revived", revived["title"])
		assert.NotContains(t, revived, "tag")
		assert.Equal(t, rev(t, revived), revived["titleRev"])

		found, _, err = db.Del(ctx, id, database.DelOptions{Purge: true})
		require.NoError(t, err)
		require.True(t, found)

		found, _, err = db.Del(ctx, id, database.DelOptions{})
		require.NoError(t, err)
		require.False(t, found)

		all, _, err = db.Find(ctx, query.Query{Kind: "Note", IncludeDeleted: true})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestPutOverTombstone(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "old"}, database.PutOptions{})
		require.NoError(t, err)
		_, _, err = db.Del(ctx, stored.ID(), database.DelOptions{})
		require.NoError(t, err)

		// no revision is needed to replace a tombstone
		replaced, err := db.Put(ctx, document.Object{"_id": stored.ID(), "_kind": "Note", "title": "new"}, database.PutOptions{})
		require.NoError(t, err)
		assert.False(t, replaced.Deleted())

		got, err := db.Get(ctx, stored.ID())
		require.NoError(t, err)
		assert.Equal(t, "new", got["title"])
	})
}

func TestMerge(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{
			"_kind": "Note",
			"title": "list",
			"items": []any{
				map[string]any{"name": "a"},
				map[string]any{"name": "b"},
			},
		}, database.PutOptions{})
		require.NoError(t, err)

		items := stored["items"].([]any)
		require.Len(t, items, 2)
		eidA := items[0].(map[string]any)["_eid"].(string)
		eidB := items[1].(map[string]any)["_eid"].(string)
		require.NotEmpty(t, eidA)
		require.NotEqual(t, eidA, eidB)

		merged, err := db.Merge(ctx, document.Object{
			"_id": stored.ID(),
			"items": []any{
				map[string]any{"_eid": eidB, "done": true},
				map[string]any{"name": "a"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "list", merged["title"])

		items = merged["items"].([]any)
		require.Len(t, items, 2)
		assert.Equal(t, eidB, items[0].(map[string]any)["_eid"])
		assert.Equal(t, "b", items[0].(map[string]any)["name"])
		assert.Equal(t, true, items[0].(map[string]any)["done"])
		assert.Equal(t, eidA, items[1].(map[string]any)["_eid"])

		// merging the same array again never grows it
		again, err := db.Merge(ctx, document.Object{"_id": stored.ID(), "items": merged["items"]})
		require.NoError(t, err)
		assert.Len(t, again["items"], 2)

		_, err = db.Merge(ctx, document.Object{"_id": stored.ID(), "_rev": rev(t, stored), "title": "stale"})
		require.True(t, docerr.RevisionMismatch.Has(err), err)

		_, err = db.Merge(ctx, document.Object{"_id": stored.ID(), "_kind": "Other", "title": "x"})
		require.True(t, docerr.InvalidObject.Has(err), err)
	})
}

func TestRevisionSets(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "a", "score": 1}, database.PutOptions{})
		require.NoError(t, err)
		created := rev(t, stored)
		assert.EqualValues(t, created, stored["titleRev"])

		untouched, err := db.Merge(ctx, document.Object{"_id": stored.ID(), "score": 2})
		require.NoError(t, err)
		assert.Greater(t, rev(t, untouched), created)
		assert.EqualValues(t, created, untouched["titleRev"])

		// writing the same title is not a change
		same, err := db.Merge(ctx, document.Object{"_id": stored.ID(), "title": "a"})
		require.NoError(t, err)
		assert.EqualValues(t, created, same["titleRev"])

		changed, err := db.Merge(ctx, document.Object{"_id": stored.ID(), "title": "b"})
		require.NoError(t, err)
		assert.EqualValues(t, rev(t, changed), changed["titleRev"])
	})
}

func TestFind(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		require.NoError(t, db.PutKind(ctx, kinds.Kind{Name: "Memo", Extends: []string{"Note"}}))

		for i, tag := range []string{"red", "blue", "red", "green", "red"} {
			_, err := db.Put(ctx, document.Object{"_kind": "Note", "title": tag, "tag": tag, "score": i}, database.PutOptions{})
			require.NoError(t, err)
		}
		_, err := db.Put(ctx, document.Object{"_kind": "Memo", "title": "memo", "tag": "red", "score": 10}, database.PutOptions{})
		require.NoError(t, err)

		red, watermark, err := db.Find(ctx, query.Query{
			Kind:    "Note",
			Where:   []query.Where{{Prop: "tag", Op: query.Eq, Value: "red"}},
			OrderBy: "score",
		})
		require.NoError(t, err)
		require.Len(t, red, 4)
		assert.EqualValues(t, []any{int64(0), int64(2), int64(4), int64(10)}, scores(red))
		assert.Equal(t, "Memo", red[3].Kind())
		for _, obj := range red {
			assert.LessOrEqual(t, rev(t, obj), watermark)
		}

		direct, _, err := db.Find(ctx, query.Query{
			Kind:            "Note",
			Where:           []query.Where{{Prop: "tag", Op: query.Eq, Value: "red"}},
			ExcludeSubKinds: true,
		})
		require.NoError(t, err)
		assert.Len(t, direct, 3)

		ranged, _, err := db.Find(ctx, query.Query{
			Kind:    "Note",
			Where:   []query.Where{{Prop: "score", Op: query.Gt, Value: 1}, {Prop: "score", Op: query.Le, Value: 4}},
			OrderBy: "score",
			Desc:    true,
			Limit:   2,
		})
		require.NoError(t, err)
		assert.EqualValues(t, []any{int64(4), int64(3)}, scores(ranged))

		notRed, _, err := db.Find(ctx, query.Query{
			Kind:  "Note",
			Where: []query.Where{{Prop: "tag", Op: query.Ne, Value: "red"}},
		})
		require.NoError(t, err)
		assert.Len(t, notRed, 2)

		_, _, err = db.Find(ctx, query.Query{Kind: "Missing"})
		require.True(t, docerr.KindNotRegistered.Has(err), err)

		_, _, err = db.Find(ctx, query.Query{Kind: "Note", Where: []query.Where{{Prop: "bad prop", Op: query.Eq}}})
		require.True(t, docerr.InvalidObject.Has(err), err)
	})
}

func scores(objs []document.Object) []any {
	var result []any
	for _, obj := range objs {
		result = append(result, obj["score"])
	}
	return result
}

func TestKinds(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		require.NoError(t, db.PutKind(ctx, kinds.Kind{Name: "Memo", Extends: []string{"Note"}}))

		err := db.DelKind(ctx, "Note")
		require.True(t, docerr.KindHasSubKinds.Has(err), err)

		_, err = db.Put(ctx, document.Object{"_kind": "Memo", "title": "m"}, database.PutOptions{})
		require.NoError(t, err)

		// the schema of the super kind applies
		_, err = db.Put(ctx, document.Object{"_kind": "Memo"}, database.PutOptions{})
		require.True(t, docerr.InvalidObject.Has(err), err)

		require.NoError(t, db.DelKind(ctx, "Memo"))
		_, err = db.GetKind(ctx, "Memo")
		require.True(t, docerr.KindNotRegistered.Has(err), err)

		got, err := db.GetKind(ctx, "Note")
		require.NoError(t, err)
		assert.Equal(t, noteKind.Indexes, got.Indexes)

		names := []string{}
		for _, kind := range db.Kinds(ctx) {
			names = append(names, kind.Name)
		}
		assert.Equal(t, []string{kinds.KindKind, "Note", kinds.ShardKind}, names)

		err = db.PutKind(ctx, kinds.Kind{Name: "bad name"})
		require.True(t, docerr.InvalidObject.Has(err), err)

		err = db.PutKind(ctx, kinds.Kind{Name: "Orphan", Extends: []string{"Missing"}})
		require.True(t, docerr.KindNotRegistered.Has(err), err)

		_, err = db.Put(ctx, document.Object{"_kind": kinds.KindKind, "name": "Sneaky"}, database.PutOptions{})
		require.True(t, docerr.InvalidObject.Has(err), err)

		user := database.WithCaller(ctx, rules.Caller{ID: "alice"})
		err = db.PutKind(user, kinds.Kind{Name: kinds.ShardKind})
		require.True(t, docerr.PermissionDenied.Has(err), err)
		_, err = db.Put(user, document.Object{"_kind": kinds.ShardKind}, database.PutOptions{})
		require.True(t, docerr.PermissionDenied.Has(err), err)
	})
}

func TestReindex(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		for _, color := range []string{"red", "blue", "red"} {
			_, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "t", "color": color}, database.PutOptions{})
			require.NoError(t, err)
		}

		kind := noteKind
		kind.Indexes = []query.Index{{Name: "byColor", Props: []string{"color"}}}
		require.NoError(t, db.PutKind(ctx, kind))

		red, _, err := db.Find(ctx, query.Query{Kind: "Note", Where: []query.Where{{Prop: "color", Op: query.Eq, Value: "red"}}})
		require.NoError(t, err)
		assert.Len(t, red, 2)
	})
}

func TestRules(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		require.NoError(t, db.PutKind(ctx, kinds.Kind{
			Name: "Secret",
			Rules: map[string]string{
				rules.OpRead:  `object.owner == caller.id`,
				rules.OpWrite: `object.owner == caller.id`,
			},
		}))

		stored, err := db.Put(ctx, document.Object{"_kind": "Secret", "owner": "alice"}, database.PutOptions{})
		require.NoError(t, err)

		alice := database.WithCaller(ctx, rules.Caller{ID: "alice"})
		bob := database.WithCaller(ctx, rules.Caller{ID: "bob"})

		_, err = db.Get(alice, stored.ID())
		require.NoError(t, err)
		_, err = db.Get(bob, stored.ID())
		require.True(t, docerr.PermissionDenied.Has(err), err)

		visible, _, err := db.Find(bob, query.Query{Kind: "Secret"})
		require.NoError(t, err)
		assert.Empty(t, visible)

		_, err = db.Put(bob, document.Object{"_kind": "Secret", "owner": "alice"}, database.PutOptions{})
		require.True(t, docerr.PermissionDenied.Has(err), err)

		// kinds created by a caller belong to it
		require.NoError(t, db.PutKind(alice, kinds.Kind{Name: "Diary"}))
		err = db.DelKind(bob, "Diary")
		require.True(t, docerr.PermissionDenied.Has(err), err)
		require.NoError(t, db.DelKind(alice, "Diary"))
	})
}

func TestWatch(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		stored, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "watched"}, database.PutOptions{})
		require.NoError(t, err)

		fired := make(chan kvstore.Key, 2)
		watcher, err := db.WatchObject(ctx, stored.ID(), func(key kvstore.Key) { fired <- key })
		require.NoError(t, err)

		kindFired := make(chan kvstore.Key, 2)
		_, err = db.Watch(ctx, query.Query{Kind: "Note"}, func(key kvstore.Key) { kindFired <- key })
		require.NoError(t, err)

		cancelled, err := db.WatchObject(ctx, stored.ID(), func(key kvstore.Key) {
			t.Error("cancelled watcher fired")
		})
		require.NoError(t, err)
		require.True(t, cancelled.Cancel())

		_, err = db.Merge(ctx, document.Object{"_id": stored.ID(), "title": "changed"})
		require.NoError(t, err)

		select {
		case key := <-fired:
			assert.True(t, strings.HasSuffix(string(key), stored.ID()))
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not fire")
		}
		select {
		case <-kindFired:
		case <-time.After(5 * time.Second):
			t.Fatal("kind watcher did not fire")
		}
		<-watcher.Done()
		assert.True(t, watcher.Fired())

		// watchers fire once
		_, err = db.Merge(ctx, document.Object{"_id": stored.ID(), "title": "again"})
		require.NoError(t, err)
		select {
		case <-fired:
			t.Fatal("watcher fired twice")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestQuota(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := open(t, ctx, teststore.New(), database.Config{Quota: quota.Config{Limits: "alice=1KB"}})
	require.NoError(t, db.PutKind(ctx, kinds.Kind{Name: "Blob", Owner: "alice"}))

	small, err := db.Put(ctx, document.Object{"_kind": "Blob", "data": "small"}, database.PutOptions{})
	require.NoError(t, err)

	used, err := db.Quota().CachedUsage(ctx, "alice")
	require.NoError(t, err)
	require.Positive(t, used)

	_, err = db.Put(ctx, document.Object{"_kind": "Blob", "data": strings.Repeat("x", 2000)}, database.PutOptions{})
	require.True(t, docerr.QuotaExceeded.Has(err), err)

	after, err := db.Quota().CachedUsage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, used, after)

	// other owners are not limited
	_, err = db.Put(ctx, document.Object{"_kind": "Note", "title": strings.Repeat("x", 2000)}, database.PutOptions{})
	require.NoError(t, err)

	// tombstones keep their size
	_, _, err = db.Del(ctx, small.ID(), database.DelOptions{})
	require.NoError(t, err)
	tombstoned, err := db.Quota().CachedUsage(ctx, "alice")
	require.NoError(t, err)
	assert.Positive(t, tombstoned)

	_, _, err = db.Del(ctx, small.ID(), database.DelOptions{Purge: true})
	require.NoError(t, err)
	purged, err := db.Quota().CachedUsage(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestConflictingBatches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := open(t, ctx, teststore.New(), database.Config{})

	first, err := db.Begin(ctx)
	require.NoError(t, err)
	second, err := db.Begin(ctx)
	require.NoError(t, err)

	_, err = first.Put(ctx, document.Object{"_kind": "Note", "title": "first"}, database.PutOptions{})
	require.NoError(t, err)
	_, err = second.Put(ctx, document.Object{"_kind": "Note", "title": "second"}, database.PutOptions{})
	require.NoError(t, err)

	require.NoError(t, first.Commit(ctx))
	err = second.Commit(ctx)
	require.True(t, docerr.Deadlock.Has(err), err)
	require.True(t, docerr.IsRetryable(err))
	require.NoError(t, db.Stopped())

	notes, _, err := db.Find(ctx, query.Query{Kind: "Note"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "first", notes[0]["title"])
}

func TestCorruptionStopsWrites(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	db := open(t, ctx, store, database.Config{})

	require.NoError(t, kvstore.Update(ctx, store, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("m/rev"), kvstore.Value("bad"))
	}))

	_, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "x"}, database.PutOptions{})
	require.True(t, docerr.IsFatal(err), err)
	require.True(t, docerr.Fatal.Has(db.Stopped()))

	_, err = db.Begin(ctx)
	require.True(t, docerr.Fatal.Has(err), err)
	err = db.PutKind(ctx, kinds.Kind{Name: "Later"})
	require.True(t, docerr.Fatal.Has(err), err)
}

func TestReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	log := zaptest.NewLogger(t)

	db, err := database.Open(ctx, log, store, database.Config{})
	require.NoError(t, err)
	require.NoError(t, db.PutKind(ctx, noteKind))
	require.NoError(t, db.PutKind(ctx, kinds.Kind{Name: "Memo", Extends: []string{"Note"}}))
	stored, err := db.Put(ctx, document.Object{"_kind": "Memo", "title": "kept", "tag": "t"}, database.PutOptions{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.Open(ctx, log, store, database.Config{})
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	kind, err := db.GetKind(ctx, "Memo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Note"}, kind.Extends)

	found, _, err := db.Find(ctx, query.Query{Kind: "Note"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stored.ID(), found[0].ID())

	// revisions continue where they stopped
	next, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "next"}, database.PutOptions{})
	require.NoError(t, err)
	assert.Greater(t, rev(t, next), rev(t, stored))
}

func TestPurgeDeleted(t *testing.T) {
	run(t, func(t *testing.T, ctx *testcontext.Context, db *database.DB) {
		a, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "a"}, database.PutOptions{})
		require.NoError(t, err)
		b, err := db.Put(ctx, document.Object{"_kind": "Note", "title": "b"}, database.PutOptions{})
		require.NoError(t, err)

		_, deleted, err := db.Del(ctx, a.ID(), database.DelOptions{})
		require.NoError(t, err)

		count, err := db.PurgeDeleted(ctx, deleted-1)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = db.PurgeDeleted(ctx, deleted)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		all, _, err := db.Find(ctx, query.Query{Kind: "Note", IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, b.ID(), all[0].ID())
	})
}
