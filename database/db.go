// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package database implements the document store.
//
// Every record operation holds the schema lock in read mode for the life of
// its transaction; kind definitions change only under the write lock.
// Revisions come from a single counter stored next to the data, so the
// counter moves atomically with the write that consumed it.
package database

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/objectid"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/quota"
	"storj.io/docstore/quota/live"
	"storj.io/docstore/shards"
	"storj.io/docstore/txn"
	"storj.io/docstore/watch"
)

var (
	// Error is the default database errs class.
	Error = errs.Class("database")

	mon = monkit.Package()
)

// Config contains configurable values for the document store.
type Config struct {
	Quota  quota.Config
	Watch  watch.Config
	Shards shards.Config
}

// WithCaller attaches the identity of the caller to ctx. Operations without
// a caller run with admin rights.
func WithCaller(ctx context.Context, caller rules.Caller) context.Context {
	return rules.WithCaller(ctx, caller)
}

// DB is the document store.
type DB struct {
	log    *zap.Logger
	store  kvstore.Store
	config Config

	schemaLock sync.RWMutex
	registry   *kinds.Registry

	rules    *rules.Engine
	ids      *objectid.Generator
	notifier *watch.Notifier
	quota    *quota.Engine
	shards   *shards.Engine

	stopped atomic.Bool
	fatal   atomic.Value // error
}

// Open opens the document store on top of store.
func Open(ctx context.Context, log *zap.Logger, store kvstore.Store, config Config) (_ *DB, err error) {
	defer mon.Task()(&ctx)(&err)

	db := &DB{
		log:      log,
		store:    store,
		config:   config,
		registry: kinds.NewRegistry(),
		ids:      objectid.NewGenerator(),
		shards:   shards.NewEngine(log.Named("shards"), config.Shards),
	}

	db.rules, err = rules.NewEngine()
	if err != nil {
		return nil, err
	}

	db.notifier, err = watch.NewNotifier(log.Named("watch"), config.Watch)
	if err != nil {
		return nil, err
	}

	cache, err := live.NewCache(ctx, log.Named("live"), config.Quota.Live)
	if err != nil {
		return nil, errs.Combine(err, db.notifier.Close())
	}
	db.quota, err = quota.NewEngine(log.Named("quota"), cache, config.Quota)
	if err != nil {
		return nil, errs.Combine(err, cache.Close(), db.notifier.Close())
	}

	if err := db.init(ctx); err != nil {
		return nil, errs.Combine(err, db.quota.Close(), db.notifier.Close())
	}
	return db, nil
}

func (db *DB) init(ctx context.Context) error {
	kindKind, err := kinds.Compile(kinds.Kind{Name: kinds.KindKind, NoQuota: true}, db.rules)
	if err != nil {
		return err
	}
	if err := db.registry.Set(kindKind); err != nil {
		return err
	}

	if err := db.loadKinds(ctx); err != nil {
		return err
	}
	if err := db.quota.Sync(ctx, db.store); err != nil {
		return err
	}
	return db.shards.Init(ctx, shardStore{db: db})
}

// Close releases the notifier and the quota cache. It does not close the
// underlying store.
func (db *DB) Close() error {
	return errs.Combine(db.notifier.Close(), db.quota.Close())
}

// Shards returns the shard engine.
func (db *DB) Shards() *shards.Engine { return db.shards }

// Quota returns the quota engine.
func (db *DB) Quota() *quota.Engine { return db.quota }

// classify maps engine errors onto the database error taxonomy.
func (db *DB) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case kvstore.ErrConflict.Has(err):
		return docerr.Deadlock.Wrap(err)
	case kvstore.ErrCorrupted.Has(err):
		db.stop(err)
		return docerr.Fatal.Wrap(err)
	default:
		return err
	}
}

func (db *DB) stop(err error) {
	if db.stopped.CompareAndSwap(false, true) {
		db.fatal.Store(err)
		db.log.Error("storage corrupted, refusing further writes", zap.Error(err))
	}
}

// Stopped returns the error that stopped the database, nil while it is healthy.
func (db *DB) Stopped() error {
	if !db.stopped.Load() {
		return nil
	}
	err, _ := db.fatal.Load().(error)
	return docerr.Fatal.New("database stopped: %v", err)
}

// Begin starts a batch. The batch holds the schema lock in read mode until
// it is committed or rolled back, so PutKind and DelKind must not be called
// while the same goroutine holds a batch.
func (db *DB) Begin(ctx context.Context) (_ *Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := db.Stopped(); err != nil {
		return nil, err
	}

	db.schemaLock.RLock()
	tx, err := txn.Begin(ctx, db.log.Named("txn"), db.store, true, db.notifier, db.quota)
	if err != nil {
		db.schemaLock.RUnlock()
		return nil, db.classify(err)
	}
	return &Batch{db: db, tx: tx, unlock: db.schemaLock.RUnlock}, nil
}

// beginLocked starts a batch for a caller that already holds the schema lock.
func (db *DB) beginLocked(ctx context.Context) (*Batch, error) {
	if err := db.Stopped(); err != nil {
		return nil, err
	}
	tx, err := txn.Begin(ctx, db.log.Named("txn"), db.store, true, db.notifier, db.quota)
	if err != nil {
		return nil, db.classify(err)
	}
	return &Batch{db: db, tx: tx, unlock: func() {}}, nil
}

// update runs fn in a new batch and commits it when fn succeeds.
func (db *DB) update(ctx context.Context, fn func(batch *Batch) error) (err error) {
	batch, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, batch.Rollback()) }()

	if err := fn(batch); err != nil {
		return err
	}
	return batch.Commit(ctx)
}

// view runs fn in a read-only transaction under the schema read lock.
func (db *DB) view(ctx context.Context, fn func(tx kvstore.Txn) error) error {
	db.schemaLock.RLock()
	defer db.schemaLock.RUnlock()
	return db.classify(kvstore.View(ctx, db.store, fn))
}
