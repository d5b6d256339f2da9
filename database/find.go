// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database

import (
	"context"

	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/watch"
)

// Get returns the live object with id.
func (db *DB) Get(ctx context.Context, id string) (obj document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	err = db.view(ctx, func(tx kvstore.Txn) error {
		obj, err = db.get(ctx, tx, id)
		return err
	})
	return obj, err
}

// Put stores obj in its own batch.
func (db *DB) Put(ctx context.Context, obj document.Object, opts PutOptions) (stored document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	err = db.update(ctx, func(batch *Batch) error {
		stored, err = batch.Put(ctx, obj, opts)
		return err
	})
	return stored, err
}

// Merge merges patch in its own batch.
func (db *DB) Merge(ctx context.Context, patch document.Object) (stored document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	err = db.update(ctx, func(batch *Batch) error {
		stored, err = batch.Merge(ctx, patch)
		return err
	})
	return stored, err
}

// Del deletes id in its own batch.
func (db *DB) Del(ctx context.Context, id string, opts DelOptions) (found bool, rev int64, err error) {
	defer mon.Task()(&ctx)(&err)
	err = db.update(ctx, func(batch *Batch) error {
		found, rev, err = batch.Del(ctx, id, opts)
		return err
	})
	return found, rev, err
}

// Purge physically removes the objects with ids, tombstones included, and
// returns how many existed.
func (db *DB) Purge(ctx context.Context, ids []string) (count int, err error) {
	defer mon.Task()(&ctx)(&err)
	err = db.update(ctx, func(batch *Batch) error {
		count = 0
		for _, id := range ids {
			found, _, err := batch.Del(ctx, id, DelOptions{Purge: true})
			if err != nil {
				return err
			}
			if found {
				count++
			}
		}
		return nil
	})
	return count, err
}

// Find returns the objects matching q together with the revision counter
// at the time of the read. Objects the caller may not read are left out.
func (db *DB) Find(ctx context.Context, q query.Query) (result []document.Object, watermark int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := q.Validate(); err != nil {
		return nil, 0, err
	}

	db.schemaLock.RLock()
	defer db.schemaLock.RUnlock()

	scope, err := db.scope(q)
	if err != nil {
		return nil, 0, err
	}
	caller := rules.CallerFrom(ctx)

	err = kvstore.View(ctx, db.store, func(tx kvstore.Txn) error {
		watermark, err = readRev(ctx, tx)
		if err != nil {
			return err
		}

		seen := map[string]struct{}{}
		for _, kind := range scope {
			ids, err := candidates(ctx, tx, kind, q)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}

				obj, err := loadObject(ctx, tx, id)
				if err != nil {
					return err
				}
				if obj == nil || !q.Match(obj) {
					continue
				}
				if db.rules.Check(kind.Rules, rules.OpRead, caller, obj) != nil {
					continue
				}
				result = append(result, obj)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, db.classify(err)
	}

	mon.IntVal("find_results").Observe(int64(len(result)))
	return q.Sort(result), watermark, nil
}

// scope returns the kinds a query covers.
func (db *DB) scope(q query.Query) ([]*kinds.Compiled, error) {
	kind, err := db.registry.Lookup(q.Kind)
	if err != nil {
		return nil, err
	}
	scope := []*kinds.Compiled{kind}
	if q.ExcludeSubKinds {
		return scope, nil
	}
	for _, name := range db.registry.SubKinds(q.Kind) {
		sub, err := db.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		scope = append(scope, sub)
	}
	return scope, nil
}

// candidates returns the ids of kind that may match q, using an index when
// one narrows the query.
func candidates(ctx context.Context, tx kvstore.Txn, kind *kinds.Compiled, q query.Query) ([]string, error) {
	var ids []string

	plan := query.Choose(q, kind.Indexes)
	if plan == nil {
		members := membersKey(kind.Name)
		err := tx.Iterate(ctx, kvstore.IterateOptions{Prefix: members},
			func(ctx context.Context, it kvstore.Iterator) error {
				var item kvstore.Item
				for it.Next(ctx, &item) {
					ids = append(ids, string(item.Key[len(members):]))
				}
				return nil
			})
		return ids, err
	}

	base := indexKey(kind.Name, plan.Index)
	prefix := append(kvstore.CloneKey(base), plan.Prefix...)
	first := prefix
	if plan.Lower != nil {
		first = append(kvstore.CloneKey(base), plan.Lower...)
	}

	err := tx.Iterate(ctx, kvstore.IterateOptions{Prefix: prefix, First: first},
		func(ctx context.Context, it kvstore.Iterator) error {
			var item kvstore.Item
			for it.Next(ctx, &item) {
				relative := item.Key[len(base):]
				if plan.Done(relative) {
					break
				}
				if plan.Contains(relative) {
					ids = append(ids, string(item.Value))
				}
			}
			return nil
		})
	return ids, err
}

// Watch calls fn once, after the first commit that adds, changes or removes
// an object of the query's kind. The watcher is not bound to the predicates
// of q.
func (db *DB) Watch(ctx context.Context, q query.Query, fn func(key kvstore.Key)) (_ *watch.Watcher, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := q.Validate(); err != nil {
		return nil, err
	}
	db.schemaLock.RLock()
	_, err = db.registry.Lookup(q.Kind)
	db.schemaLock.RUnlock()
	if err != nil {
		return nil, err
	}

	members := membersKey(q.Kind)
	return db.notifier.Watch(members, kvstore.AfterPrefix(members), fn), nil
}

// WatchObject calls fn once, after the first commit that changes id.
func (db *DB) WatchObject(ctx context.Context, id string, fn func(key kvstore.Key)) (_ *watch.Watcher, err error) {
	defer mon.Task()(&ctx)(&err)
	if id == "" {
		return nil, docerr.InvalidObject.New("empty id")
	}
	key := objectKey(id)
	return db.notifier.Watch(key, kvstore.NextKey(key), fn), nil
}

type tombstone struct {
	kind string
	id   string
}

// PurgeDeleted removes the tombstones with a revision up to throughRev and
// returns how many were removed.
func (db *DB) PurgeDeleted(ctx context.Context, throughRev int64) (count int, err error) {
	defer mon.Task()(&ctx)(&err)

	var found []tombstone
	err = db.view(ctx, func(tx kvstore.Txn) error {
		for _, kind := range db.registry.All() {
			if kind.Name == kinds.KindKind {
				continue
			}
			members := membersKey(kind.Name)
			items, err := kvstore.Collect(ctx, tx, kvstore.IterateOptions{Prefix: members})
			if err != nil {
				return err
			}
			for _, item := range items {
				rev, err := decodeRev(item.Value)
				if err != nil {
					return err
				}
				if rev > throughRev {
					continue
				}
				found = append(found, tombstone{kind: kind.Name, id: string(item.Key[len(members):])})
			}
		}
		return nil
	})
	if err != nil || len(found) == 0 {
		return 0, err
	}

	err = db.update(ctx, func(batch *Batch) error {
		count = 0
		for _, candidate := range found {
			obj, err := loadObject(ctx, batch.tx, candidate.id)
			if err != nil {
				return err
			}
			if obj == nil || !obj.Deleted() {
				continue
			}
			if rev, _ := obj.Rev(); rev > throughRev {
				continue
			}
			kind, err := db.registry.Lookup(candidate.kind)
			if err != nil {
				return err
			}
			if err := batch.remove(ctx, kind, obj); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.log.Debug("purged tombstones", zap.Int("count", count), zap.Int64("through", throughRev))
	return count, nil
}
