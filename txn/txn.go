// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package txn implements the storage transaction used by the database.
//
// A Transaction wraps a kvstore.Txn and adds what the engines do not know
// about: pre and post commit hooks, quota accounting and watcher firing.
// Commit runs, in order, the pre-commit hooks, the quota check and usage
// update, the durable engine commit, the post-commit hooks and finally the
// watcher notifications. Only the first three steps can fail the commit.
package txn

import (
	"bytes"
	"context"
	"sort"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/quota"
	"storj.io/docstore/watch"
)

var mon = monkit.Package()

// Quota checks and records usage inside a transaction.
type Quota interface {
	Check(ctx context.Context, tx kvstore.Txn, deltas quota.Deltas) error
	Apply(ctx context.Context, tx kvstore.Txn, deltas quota.Deltas) error
	Refresh(ctx context.Context, deltas quota.Deltas)
}

// Hook runs around the durable commit.
type Hook func(ctx context.Context) error

// Transaction is a storage transaction. It implements kvstore.Txn.
type Transaction struct {
	log      *zap.Logger
	tx       kvstore.Txn
	notifier *watch.Notifier
	quota    Quota

	deltas   quota.Deltas
	watchers map[*watch.Watcher]kvstore.Key
	pre      []Hook
	post     []Hook
	done     bool
}

var _ kvstore.Txn = (*Transaction)(nil)

// New wraps tx. notifier and quota may be nil.
func New(log *zap.Logger, tx kvstore.Txn, notifier *watch.Notifier, quota Quota) *Transaction {
	return &Transaction{
		log:      log,
		tx:       tx,
		notifier: notifier,
		quota:    quota,
		deltas:   map[string]int64{},
		watchers: map[*watch.Watcher]kvstore.Key{},
	}
}

// Begin starts a transaction on store.
func Begin(ctx context.Context, log *zap.Logger, store kvstore.Store, writable bool, notifier *watch.Notifier, quota Quota) (*Transaction, error) {
	tx, err := store.Begin(ctx, writable)
	if err != nil {
		return nil, err
	}
	return New(log, tx, notifier, quota), nil
}

// Writable returns whether the transaction accepts writes.
func (tx *Transaction) Writable() bool { return tx.tx.Writable() }

// Get returns the value of key.
func (tx *Transaction) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	return tx.tx.Get(ctx, key)
}

// Put sets the value of key and registers the watchers interested in key.
func (tx *Transaction) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
	if err := tx.tx.Put(ctx, key, value); err != nil {
		return err
	}
	tx.touch(key)
	return nil
}

// Delete removes key and registers the watchers interested in key.
func (tx *Transaction) Delete(ctx context.Context, key kvstore.Key) error {
	if err := tx.tx.Delete(ctx, key); err != nil {
		return err
	}
	tx.touch(key)
	return nil
}

// Iterate iterates over the items selected by opts.
func (tx *Transaction) Iterate(ctx context.Context, opts kvstore.IterateOptions, fn func(context.Context, kvstore.Iterator) error) error {
	return tx.tx.Iterate(ctx, opts, fn)
}

func (tx *Transaction) touch(key kvstore.Key) {
	if tx.notifier == nil {
		return
	}
	for _, watcher := range tx.notifier.Match(key) {
		tx.AddWatcher(watcher, key)
	}
}

// AddWatcher records that watcher must fire once the transaction commits.
// When a watcher is added several times the lowest key is kept.
func (tx *Transaction) AddWatcher(watcher *watch.Watcher, key kvstore.Key) {
	if existing, ok := tx.watchers[watcher]; ok && bytes.Compare(existing, key) <= 0 {
		return
	}
	tx.watchers[watcher] = kvstore.CloneKey(key)
}

// WatcherKey returns the key watcher is registered with.
func (tx *Transaction) WatcherKey(watcher *watch.Watcher) (kvstore.Key, bool) {
	key, ok := tx.watchers[watcher]
	return key, ok
}

// OffsetQuota accumulates a usage change of owner. It does nothing when the
// transaction has no quota engine.
func (tx *Transaction) OffsetQuota(owner string, delta int64) {
	if tx.quota == nil {
		return
	}
	tx.deltas.Add(owner, delta)
}

// QuotaOffset returns the accumulated usage change of owner.
func (tx *Transaction) QuotaOffset(owner string) int64 { return tx.deltas[owner] }

// OnPreCommit adds a hook that runs before the durable commit. A failing
// hook aborts the transaction.
func (tx *Transaction) OnPreCommit(hook Hook) { tx.pre = append(tx.pre, hook) }

// OnPostCommit adds a hook that runs after the durable commit. Failures are
// logged, the transaction stays committed.
func (tx *Transaction) OnPostCommit(hook Hook) { tx.post = append(tx.post, hook) }

// Commit commits the transaction.
func (tx *Transaction) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	tx.done = true

	if !tx.tx.Writable() {
		return tx.tx.Commit(ctx)
	}

	for _, hook := range tx.pre {
		if err := hook(ctx); err != nil {
			return errs.Combine(err, tx.tx.Rollback())
		}
	}

	if tx.quota != nil && len(tx.deltas) > 0 {
		if err := tx.quota.Check(ctx, tx.tx, tx.deltas); err != nil {
			return errs.Combine(err, tx.tx.Rollback())
		}
		if err := tx.quota.Apply(ctx, tx.tx, tx.deltas); err != nil {
			return errs.Combine(err, tx.tx.Rollback())
		}
	}

	if err := tx.tx.Commit(ctx); err != nil {
		if kvstore.ErrConflict.Has(err) {
			mon.Counter("commit_conflicts").Inc(1)
		}
		_ = tx.tx.Rollback()
		return err
	}
	mon.Counter("commits").Inc(1)

	var group errs.Group
	for _, hook := range tx.post {
		group.Add(hook(ctx))
	}
	if err := group.Err(); err != nil {
		tx.log.Warn("post-commit hook failed", zap.Error(err))
	}
	if tx.quota != nil && len(tx.deltas) > 0 {
		tx.quota.Refresh(ctx, tx.deltas)
	}

	tx.fire(ctx)
	return nil
}

func (tx *Transaction) fire(ctx context.Context) {
	if tx.notifier == nil || len(tx.watchers) == 0 {
		return
	}

	firings := make([]watch.Firing, 0, len(tx.watchers))
	for watcher, key := range tx.watchers {
		firings = append(firings, watch.Firing{Watcher: watcher.ID(), Key: key})
	}
	sort.Slice(firings, func(i, k int) bool { return firings[i].Watcher < firings[k].Watcher })

	if err := tx.notifier.Publish(ctx, firings); err != nil {
		tx.log.Error("failed to publish commit event", zap.Int("watchers", len(firings)), zap.Error(err))
	}
}

// Rollback discards the transaction. It is safe to call after Commit.
func (tx *Transaction) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.tx.Rollback()
}
