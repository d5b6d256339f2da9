// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database

import (
	"context"

	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/shards"
)

// shardStore exposes the database to the shard engine.
type shardStore struct {
	db *DB
}

var (
	_ shards.DB     = shardStore{}
	_ shards.Writer = (*Batch)(nil)
)

func (store shardStore) PutKind(ctx context.Context, kind kinds.Kind) error {
	return store.db.PutKind(ctx, kind)
}

func (store shardStore) Find(ctx context.Context, q query.Query) ([]document.Object, error) {
	objs, _, err := store.db.Find(ctx, q)
	return objs, err
}

func (store shardStore) Put(ctx context.Context, obj document.Object) (document.Object, error) {
	return store.db.Put(ctx, obj, PutOptions{})
}

func (store shardStore) Get(ctx context.Context, id string) (document.Object, error) {
	return store.db.Get(ctx, id)
}

// OnCommit runs fn at once, every write of shardStore commits on return.
func (store shardStore) OnCommit(fn func()) { fn() }

func (store shardStore) Merge(ctx context.Context, obj document.Object) (document.Object, error) {
	return store.db.Merge(ctx, obj)
}

func (store shardStore) Purge(ctx context.Context, ids []string) (int, error) {
	return store.db.Purge(ctx, ids)
}
