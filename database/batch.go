// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database

import (
	"context"
	"sort"

	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/objectid"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/pkg/revset"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/quota"
	"storj.io/docstore/txn"
)

// PutOptions controls object creation.
type PutOptions struct {
	// Shard is the base64 designator of the shard new objects are bound to.
	Shard string
	// ShardID is used when Shard is empty.
	ShardID objectid.ShardID
}

// DelOptions controls deletion.
type DelOptions struct {
	// Purge removes the object physically instead of leaving a tombstone.
	Purge bool
}

// Batch groups record operations into one atomic commit.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	db     *DB
	tx     *txn.Transaction
	unlock func()
	done   bool

	rev       int64
	revLoaded bool
	revDirty  bool
}

func (batch *Batch) check() error {
	if batch.done {
		return kvstore.ErrTxDone.New("")
	}
	return batch.db.Stopped()
}

// Transaction returns the storage transaction of the batch, for registering
// commit hooks.
func (batch *Batch) Transaction() *txn.Transaction { return batch.tx }

// OnCommit runs fn after the batch commits. fn is dropped on rollback.
func (batch *Batch) OnCommit(fn func()) {
	batch.tx.OnPostCommit(func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Commit commits every operation of the batch.
func (batch *Batch) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if batch.done {
		return kvstore.ErrTxDone.New("")
	}
	batch.done = true
	defer batch.unlock()

	if batch.revDirty {
		if err := batch.tx.Put(ctx, revKey, encodeRev(batch.rev)); err != nil {
			return errs.Combine(batch.db.classify(err), batch.tx.Rollback())
		}
	}
	return batch.db.classify(batch.tx.Commit(ctx))
}

// Rollback discards the batch. It is safe to call after Commit.
func (batch *Batch) Rollback() error {
	if batch.done {
		return nil
	}
	batch.done = true
	defer batch.unlock()
	return batch.tx.Rollback()
}

func (batch *Batch) nextRev(ctx context.Context) (int64, error) {
	if !batch.revLoaded {
		rev, err := readRev(ctx, batch.tx)
		if err != nil {
			return 0, err
		}
		batch.rev = rev
		batch.revLoaded = true
	}
	batch.rev++
	batch.revDirty = true
	return batch.rev, nil
}

func readRev(ctx context.Context, tx kvstore.Txn) (int64, error) {
	value, err := tx.Get(ctx, revKey)
	if kvstore.ErrKeyNotFound.Has(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeRev(value)
}

func loadObject(ctx context.Context, tx kvstore.Txn, id string) (document.Object, error) {
	if id == "" {
		return nil, nil
	}
	value, err := tx.Get(ctx, objectKey(id))
	if kvstore.ErrKeyNotFound.Has(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	obj, err := document.Parse(value)
	if err != nil {
		return nil, kvstore.ErrCorrupted.New("object %q: %v", id, err)
	}
	return obj, nil
}

func checkReserved(obj document.Object) error {
	if v, ok := obj[document.FieldID]; ok {
		if id, ok := v.(string); !ok || id == "" {
			return docerr.InvalidObject.New("%s must be a non-empty string", document.FieldID)
		}
	}
	if v, ok := obj[document.FieldKind]; ok {
		if _, ok := v.(string); !ok {
			return docerr.InvalidObject.New("%s must be a string", document.FieldKind)
		}
	}
	if v, ok := obj[document.FieldRev]; ok {
		if _, ok := document.Int(v); !ok {
			return docerr.InvalidObject.New("%s must be an integer", document.FieldRev)
		}
	}
	if v, ok := obj[document.FieldDel]; ok {
		if _, ok := v.(bool); !ok {
			return docerr.InvalidObject.New("%s must be a bool", document.FieldDel)
		}
	}
	return nil
}

// writableKind resolves the kind of an object about to be written.
func (batch *Batch) writableKind(ctx context.Context, name string) (*kinds.Compiled, error) {
	if name == "" {
		return nil, docerr.InvalidObject.New("missing %s", document.FieldKind)
	}
	if name == kinds.KindKind {
		return nil, docerr.InvalidObject.New("kind records are changed with PutKind")
	}
	if kinds.IsReserved(name) && !rules.CallerFrom(ctx).Admin {
		return nil, docerr.PermissionDenied.New("%q is reserved", name)
	}
	return batch.db.registry.Lookup(name)
}

func (batch *Batch) newEID() string {
	return batch.db.ids.New(objectid.MainShard)
}

// assignID gives a new object its id and binds it to its shard.
func (batch *Batch) assignID(ctx context.Context, kind *kinds.Compiled, obj document.Object, opts PutOptions) error {
	if id := obj.ID(); id != "" {
		if kinds.IsRecordID(id) {
			return docerr.InvalidObject.New("id %q is reserved", id)
		}
		shard, err := objectid.ExtractShard(id)
		if err != nil {
			return err
		}
		return batch.bindShard(ctx, kind, shard)
	}

	shard := opts.ShardID
	if opts.Shard != "" {
		var err error
		shard, err = objectid.ParseShard(opts.Shard)
		if err != nil {
			return err
		}
	}
	if err := batch.bindShard(ctx, kind, shard); err != nil {
		return err
	}
	obj[document.FieldID] = batch.db.ids.New(shard)
	return nil
}

func (batch *Batch) bindShard(ctx context.Context, kind *kinds.Compiled, shard objectid.ShardID) error {
	if shard == objectid.MainShard {
		return nil
	}
	if _, ok := batch.db.shards.Get(shard); !ok {
		return docerr.ObjectNotFound.New("shard %d", shard)
	}
	if kind.Name == kinds.ShardKind {
		return nil
	}
	admin := rules.WithCaller(ctx, rules.Caller{Admin: true})
	return batch.db.shards.LinkShardAndKindID(admin, batch, shard, kind.Name)
}

// Put stores obj. A new object, or one replacing a tombstone, gets an id
// when it has none. Replacing a live object requires its current _rev.
func (batch *Batch) Put(ctx context.Context, obj document.Object, opts PutOptions) (_ document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := batch.check(); err != nil {
		return nil, err
	}
	defer func() { err = batch.db.classify(err) }()

	obj = obj.Clone()
	if err := checkReserved(obj); err != nil {
		return nil, err
	}
	kind, err := batch.writableKind(ctx, obj.Kind())
	if err != nil {
		return nil, err
	}

	existing, err := loadObject(ctx, batch.tx, obj.ID())
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Kind() != kind.Name {
		return nil, docerr.InvalidObject.New("%s is of kind %q", obj.ID(), existing.Kind())
	}
	delete(obj, document.FieldDel)

	if existing != nil && !existing.Deleted() {
		rev, ok := obj.Rev()
		if !ok {
			return nil, docerr.RevNotSpecified.New("%s", obj.ID())
		}
		if current, _ := existing.Rev(); rev != current {
			return nil, docerr.RevisionMismatch.New("%s: got %d, stored %d", obj.ID(), rev, current)
		}
		return batch.write(ctx, kind, obj, existing)
	}

	delete(obj, document.FieldRev)
	if existing == nil {
		if err := batch.assignID(ctx, kind, obj, opts); err != nil {
			return nil, err
		}
	}
	return batch.write(ctx, kind, obj, existing)
}

// Merge applies patch onto the stored object with the same id. The _rev of
// the patch is optional; when present it must match. Merging onto a
// tombstone revives the object with the patch as its content, and merging
// an unknown id creates the object.
func (batch *Batch) Merge(ctx context.Context, patch document.Object) (_ document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := batch.check(); err != nil {
		return nil, err
	}
	defer func() { err = batch.db.classify(err) }()

	if err := checkReserved(patch); err != nil {
		return nil, err
	}

	existing, err := loadObject(ctx, batch.tx, patch.ID())
	if err != nil {
		return nil, err
	}

	if existing == nil {
		kind, err := batch.writableKind(ctx, patch.Kind())
		if err != nil {
			return nil, err
		}
		obj := document.Merge(nil, patch, batch.newEID)
		obj[document.FieldKind] = kind.Name
		if id := patch.ID(); id != "" {
			obj[document.FieldID] = id
		}
		if err := batch.assignID(ctx, kind, obj, PutOptions{}); err != nil {
			return nil, err
		}
		return batch.write(ctx, kind, obj, nil)
	}

	if name := patch.Kind(); name != "" && name != existing.Kind() {
		return nil, docerr.InvalidObject.New("%s is of kind %q", existing.ID(), existing.Kind())
	}
	kind, err := batch.writableKind(ctx, existing.Kind())
	if err != nil {
		return nil, err
	}

	if existing.Deleted() {
		obj := document.Merge(nil, patch, batch.newEID)
		obj[document.FieldID] = existing.ID()
		obj[document.FieldKind] = kind.Name
		return batch.write(ctx, kind, obj, existing)
	}

	if rev, ok := patch.Rev(); ok {
		if current, _ := existing.Rev(); rev != current {
			return nil, docerr.RevisionMismatch.New("%s: got %d, stored %d", existing.ID(), rev, current)
		}
	}
	return batch.write(ctx, kind, document.Merge(existing, patch, batch.newEID), existing)
}

// write assigns the next revision to obj and stores it. old is the stored
// version, nil for a new object.
func (batch *Batch) write(ctx context.Context, kind *kinds.Compiled, obj, old document.Object) (document.Object, error) {
	if err := batch.db.rules.Check(kind.Rules, rules.OpWrite, rules.CallerFrom(ctx), obj); err != nil {
		return nil, err
	}
	if err := batch.db.registry.Validate(kind, obj); err != nil {
		return nil, err
	}
	if !kinds.IsReserved(kind.Name) {
		document.AssignElementIDs(obj, batch.newEID)
	}

	rev, err := batch.nextRev(ctx)
	if err != nil {
		return nil, err
	}
	obj.SetRev(rev)

	previous := old
	if previous != nil && previous.Deleted() {
		previous = nil
	}
	sets, err := batch.db.revsets(kind)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		set.Update(obj, previous)
	}

	if err := batch.store(ctx, kind, obj, old); err != nil {
		return nil, err
	}
	return obj.Clone(), nil
}

// store writes obj with its membership and index entries, replacing old.
func (batch *Batch) store(ctx context.Context, kind *kinds.Compiled, obj, old document.Object) error {
	id := obj.ID()
	rev, _ := obj.Rev()

	data, err := obj.Marshal()
	if err != nil {
		return err
	}
	key := objectKey(id)
	if err := batch.tx.Put(ctx, key, data); err != nil {
		return err
	}
	if err := batch.tx.Put(ctx, memberKey(kind.Name, id), encodeRev(rev)); err != nil {
		return err
	}

	before := indexEntries(kind, old)
	after := indexEntries(kind, obj)
	for _, entry := range sortedKeys(before) {
		if _, keep := after[entry]; keep {
			continue
		}
		if err := batch.deleteIndexEntry(ctx, entry); err != nil {
			return err
		}
	}
	for _, entry := range sortedKeys(after) {
		if _, exists := before[entry]; exists {
			continue
		}
		if err := batch.tx.Put(ctx, kvstore.Key(entry), kvstore.Value(id)); err != nil {
			return err
		}
	}

	if !kind.NoQuota {
		oldSize, err := storedSize(old)
		if err != nil {
			return err
		}
		batch.tx.OffsetQuota(owner(kind), int64(len(key)+len(data))-oldSize)
	}
	return nil
}

// remove deletes obj physically.
func (batch *Batch) remove(ctx context.Context, kind *kinds.Compiled, obj document.Object) error {
	id := obj.ID()
	if err := batch.tx.Delete(ctx, objectKey(id)); err != nil {
		return err
	}
	if err := batch.tx.Delete(ctx, memberKey(kind.Name, id)); err != nil {
		if kvstore.ErrKeyNotFound.Has(err) {
			return docerr.InternalIndexConflict.New("membership of %s", id)
		}
		return err
	}
	for _, entry := range sortedKeys(indexEntries(kind, obj)) {
		if err := batch.deleteIndexEntry(ctx, entry); err != nil {
			return err
		}
	}

	if !kind.NoQuota {
		size, err := storedSize(obj)
		if err != nil {
			return err
		}
		batch.tx.OffsetQuota(owner(kind), -size)
	}
	return nil
}

func (batch *Batch) deleteIndexEntry(ctx context.Context, entry string) error {
	err := batch.tx.Delete(ctx, kvstore.Key(entry))
	if kvstore.ErrKeyNotFound.Has(err) {
		return docerr.InternalIndexConflict.New("missing index entry %q", entry)
	}
	return err
}

// Del deletes the object with id, leaving a tombstone unless opts.Purge is
// set. It returns whether the object existed and its final revision.
// Deleting a tombstone again changes nothing.
func (batch *Batch) Del(ctx context.Context, id string, opts DelOptions) (found bool, rev int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := batch.check(); err != nil {
		return false, 0, err
	}
	defer func() { err = batch.db.classify(err) }()

	existing, err := loadObject(ctx, batch.tx, id)
	if err != nil || existing == nil {
		return false, 0, err
	}
	kind, err := batch.writableKind(ctx, existing.Kind())
	if err != nil {
		return true, 0, err
	}
	if err := batch.db.rules.Check(kind.Rules, rules.OpDelete, rules.CallerFrom(ctx), existing); err != nil {
		return true, 0, err
	}

	current, _ := existing.Rev()
	if opts.Purge {
		return true, current, batch.remove(ctx, kind, existing)
	}
	if existing.Deleted() {
		return true, current, nil
	}

	tombstone := existing.Clone()
	tombstone[document.FieldDel] = true
	rev, err = batch.nextRev(ctx)
	if err != nil {
		return true, 0, err
	}
	tombstone.SetRev(rev)

	sets, err := batch.db.revsets(kind)
	if err != nil {
		return true, 0, err
	}
	for _, set := range sets {
		set.Mark(tombstone)
	}

	return true, rev, batch.store(ctx, kind, tombstone, existing)
}

// Get returns the live object with id as seen by the batch.
func (batch *Batch) Get(ctx context.Context, id string) (_ document.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := batch.check(); err != nil {
		return nil, err
	}
	defer func() { err = batch.db.classify(err) }()

	return batch.db.get(ctx, batch.tx, id)
}

func (db *DB) get(ctx context.Context, tx kvstore.Txn, id string) (document.Object, error) {
	obj, err := loadObject(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if obj == nil || obj.Deleted() {
		return nil, docerr.ObjectNotFound.New("%s", id)
	}

	kind, err := db.registry.Lookup(obj.Kind())
	if err != nil {
		return nil, err
	}
	if err := db.rules.Check(kind.Rules, rules.OpRead, rules.CallerFrom(ctx), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// revsets returns the revision sets of kind and of every kind it extends.
func (db *DB) revsets(kind *kinds.Compiled) ([]*revset.Set, error) {
	sets := append([]*revset.Set(nil), kind.RevSets()...)
	supers, err := db.registry.Supers(kind.Name)
	if err != nil {
		return nil, err
	}
	for _, name := range supers {
		super, err := db.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		sets = append(sets, super.RevSets()...)
	}
	return sets, nil
}

// indexEntries returns the index keys of a live object.
func indexEntries(kind *kinds.Compiled, obj document.Object) map[string]struct{} {
	entries := map[string]struct{}{}
	if obj == nil || obj.Deleted() {
		return entries
	}
	id := obj.ID()
	for _, index := range kind.Indexes {
		for _, tuple := range query.Tuples(obj, index.Props) {
			entries[string(indexEntryKey(kind.Name, index.Name, tuple, id))] = struct{}{}
		}
	}
	return entries
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func storedSize(obj document.Object) (int64, error) {
	if obj == nil {
		return 0, nil
	}
	data, err := obj.Marshal()
	if err != nil {
		return 0, err
	}
	return int64(len(objectKey(obj.ID())) + len(data)), nil
}

func owner(kind *kinds.Compiled) string {
	if kind.Owner != "" {
		return kind.Owner
	}
	return quota.DefaultOwner
}
