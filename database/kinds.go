// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
)

// loadKinds registers every stored kind record. Kinds are compiled after
// the kinds they extend.
func (db *DB) loadKinds(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	var pending []kinds.Kind
	err = db.classify(kvstore.View(ctx, db.store, func(tx kvstore.Txn) error {
		members := membersKey(kinds.KindKind)
		items, err := kvstore.Collect(ctx, tx, kvstore.IterateOptions{Prefix: members})
		if err != nil {
			return err
		}
		for _, item := range items {
			obj, err := loadObject(ctx, tx, string(item.Key[len(members):]))
			if err != nil {
				return err
			}
			if obj == nil || obj.Deleted() {
				continue
			}
			kind, err := kinds.FromObject(obj)
			if err != nil {
				return err
			}
			pending = append(pending, kind)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	for len(pending) > 0 {
		var waiting []kinds.Kind
		for _, kind := range pending {
			if !db.registered(kind.Extends) {
				waiting = append(waiting, kind)
				continue
			}
			compiled, err := kinds.Compile(kind, db.rules)
			if err != nil {
				return err
			}
			if err := db.registry.Set(compiled); err != nil {
				return err
			}
		}
		if len(waiting) == len(pending) {
			return docerr.KindNotRegistered.New("kind %q extends an unknown kind", waiting[0].Name)
		}
		pending = waiting
	}

	db.log.Debug("loaded kinds", zap.Int("kinds", len(db.registry.All())))
	return nil
}

func (db *DB) registered(names []string) bool {
	for _, name := range names {
		if _, err := db.registry.Lookup(name); err != nil {
			return false
		}
	}
	return true
}

// authorizeKind checks whether the caller may change the kind called name.
func authorizeKind(caller rules.Caller, name string, previous *kinds.Compiled) error {
	if caller.Admin {
		return nil
	}
	if kinds.IsReserved(name) {
		return docerr.PermissionDenied.New("%q is reserved", name)
	}
	if previous != nil && previous.Owner != "" && previous.Owner != caller.ID {
		return docerr.PermissionDenied.New("%q is owned by %q", name, previous.Owner)
	}
	return nil
}

// PutKind registers or replaces a kind and stores its record. Objects of
// the kind are reindexed when its indexes change.
func (db *DB) PutKind(ctx context.Context, kind kinds.Kind) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := db.Stopped(); err != nil {
		return err
	}
	if kind.Name == kinds.KindKind {
		return docerr.InvalidObject.New("%q is built in", kind.Name)
	}

	db.schemaLock.Lock()
	defer db.schemaLock.Unlock()

	previous, err := db.registry.Lookup(kind.Name)
	if err != nil {
		if !docerr.KindNotRegistered.Has(err) {
			return err
		}
		previous = nil
	}

	caller := rules.CallerFrom(ctx)
	if err := authorizeKind(caller, kind.Name, previous); err != nil {
		return err
	}
	if kind.Owner == "" && !caller.Admin {
		kind.Owner = caller.ID
	}
	if previous != nil && document.Canonical(previous.Kind) == document.Canonical(kind) {
		return nil
	}

	compiled, err := kinds.Compile(kind, db.rules)
	if err != nil {
		return err
	}
	if err := db.registry.Set(compiled); err != nil {
		return err
	}

	if err := db.storeKind(ctx, compiled, previous); err != nil {
		if previous != nil {
			err = errs.Combine(err, db.registry.Set(previous))
		} else {
			err = errs.Combine(err, db.registry.Remove(kind.Name))
		}
		return err
	}

	db.log.Info("kind registered", zap.String("kind", kind.Name), zap.Bool("replaced", previous != nil))
	return nil
}

func (db *DB) storeKind(ctx context.Context, compiled, previous *kinds.Compiled) (err error) {
	batch, err := db.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, batch.Rollback()) }()

	kindKind, err := db.registry.Lookup(kinds.KindKind)
	if err != nil {
		return err
	}
	record, err := compiled.Object()
	if err != nil {
		return err
	}
	existing, err := loadObject(ctx, batch.tx, record.ID())
	if err != nil {
		return err
	}
	if _, err := batch.write(ctx, kindKind, record, existing); err != nil {
		return err
	}

	if previous != nil && document.Canonical(previous.Indexes) != document.Canonical(compiled.Indexes) {
		if err := batch.reindex(ctx, compiled); err != nil {
			return err
		}
	}
	return batch.Commit(ctx)
}

// reindex rebuilds every index entry of kind.
func (batch *Batch) reindex(ctx context.Context, kind *kinds.Compiled) error {
	stale, err := kvstore.Collect(ctx, batch.tx, kvstore.IterateOptions{Prefix: indexesKey(kind.Name)})
	if err != nil {
		return err
	}
	for _, item := range stale {
		if err := batch.tx.Delete(ctx, item.Key); err != nil {
			return err
		}
	}

	members := membersKey(kind.Name)
	items, err := kvstore.Collect(ctx, batch.tx, kvstore.IterateOptions{Prefix: members})
	if err != nil {
		return err
	}
	for _, item := range items {
		obj, err := loadObject(ctx, batch.tx, string(item.Key[len(members):]))
		if err != nil {
			return err
		}
		if obj == nil {
			return docerr.InternalIndexConflict.New("member %q without object", item.Key)
		}
		for _, entry := range sortedKeys(indexEntries(kind, obj)) {
			if err := batch.tx.Put(ctx, kvstore.Key(entry), kvstore.Value(obj.ID())); err != nil {
				return err
			}
		}
	}

	batch.db.log.Info("reindexed kind", zap.String("kind", kind.Name), zap.Int("objects", len(items)))
	return nil
}

// DelKind removes a kind that no other kind extends, together with every
// object of the kind.
func (db *DB) DelKind(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := db.Stopped(); err != nil {
		return err
	}
	if kinds.IsReserved(name) {
		return docerr.PermissionDenied.New("%q is reserved", name)
	}

	db.schemaLock.Lock()
	defer db.schemaLock.Unlock()

	compiled, err := db.registry.Lookup(name)
	if err != nil {
		return err
	}
	if err := authorizeKind(rules.CallerFrom(ctx), name, compiled); err != nil {
		return err
	}
	if subs := db.registry.SubKinds(name); len(subs) > 0 {
		return docerr.KindHasSubKinds.New("%q is extended by %q", name, subs)
	}

	removed, err := db.dropKind(ctx, compiled)
	if err != nil {
		return err
	}
	if err := db.registry.Remove(name); err != nil {
		return err
	}

	db.log.Info("kind removed", zap.String("kind", name), zap.Int("objects", removed))
	return nil
}

func (db *DB) dropKind(ctx context.Context, compiled *kinds.Compiled) (removed int, err error) {
	batch, err := db.beginLocked(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = errs.Combine(err, batch.Rollback()) }()

	members := membersKey(compiled.Name)
	items, err := kvstore.Collect(ctx, batch.tx, kvstore.IterateOptions{Prefix: members})
	if err != nil {
		return 0, db.classify(err)
	}
	for _, item := range items {
		obj, err := loadObject(ctx, batch.tx, string(item.Key[len(members):]))
		if err != nil {
			return 0, db.classify(err)
		}
		if obj == nil {
			return 0, docerr.InternalIndexConflict.New("member %q without object", item.Key)
		}
		if err := batch.remove(ctx, compiled, obj); err != nil {
			return 0, db.classify(err)
		}
		removed++
	}

	kindKind, err := db.registry.Lookup(kinds.KindKind)
	if err != nil {
		return 0, err
	}
	record, err := loadObject(ctx, batch.tx, kinds.RecordID(compiled.Name))
	if err != nil {
		return 0, db.classify(err)
	}
	if record != nil {
		if err := batch.remove(ctx, kindKind, record); err != nil {
			return 0, db.classify(err)
		}
	}
	return removed, batch.Commit(ctx)
}

// GetKind returns the definition of the kind called name.
func (db *DB) GetKind(ctx context.Context, name string) (_ kinds.Kind, err error) {
	defer mon.Task()(&ctx)(&err)

	db.schemaLock.RLock()
	defer db.schemaLock.RUnlock()

	compiled, err := db.registry.Lookup(name)
	if err != nil {
		return kinds.Kind{}, err
	}
	return compiled.Kind, nil
}

// Kinds returns every registered kind sorted by name.
func (db *DB) Kinds(ctx context.Context) []kinds.Kind {
	db.schemaLock.RLock()
	defer db.schemaLock.RUnlock()

	all := db.registry.All()
	result := make([]kinds.Kind, 0, len(all))
	for _, compiled := range all {
		result = append(result, compiled.Kind)
	}
	return result
}
