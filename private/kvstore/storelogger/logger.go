// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/docstore/private/kvstore"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger for kvstore.Store.
type Logger struct {
	log   *zap.Logger
	store kvstore.Store
}

// New creates a new Logger with log and store.
func New(log *zap.Logger, store kvstore.Store) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// Begin starts a logged transaction.
func (store *Logger) Begin(ctx context.Context, writable bool) (_ kvstore.Txn, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Begin", zap.Bool("writable", writable))
	tx, err := store.store.Begin(ctx, writable)
	if err != nil {
		store.log.Debug("Begin failed", zap.Error(err))
		return nil, err
	}
	return &txn{log: store.log, tx: tx}, nil
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}

type txn struct {
	log *zap.Logger
	tx  kvstore.Txn
}

func (tx *txn) Writable() bool { return tx.tx.Writable() }

// Get gets a value to store.
func (tx *txn) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	tx.log.Debug("Get", zap.ByteString("key", key))
	return tx.tx.Get(ctx, key)
}

// Put adds a value to store.
func (tx *txn) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	tx.log.Debug("Put", zap.ByteString("key", key), zap.Int("value length", len(value)), zap.Binary("truncated value", truncate(value)))
	return tx.tx.Put(ctx, key, value)
}

// Delete deletes key and the value.
func (tx *txn) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	tx.log.Debug("Delete", zap.ByteString("key", key))
	return tx.tx.Delete(ctx, key)
}

// Iterate iterates over items based on opts.
func (tx *txn) Iterate(ctx context.Context, opts kvstore.IterateOptions, fn func(context.Context, kvstore.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	tx.log.Debug("Iterate",
		zap.ByteString("prefix", opts.Prefix),
		zap.ByteString("first", opts.First),
		zap.Bool("reverse", opts.Reverse),
	)
	return tx.tx.Iterate(ctx, opts, func(ctx context.Context, it kvstore.Iterator) error {
		return fn(ctx, kvstore.IteratorFunc(func(ctx context.Context, item *kvstore.Item) bool {
			ok := it.Next(ctx, item)
			if ok {
				tx.log.Debug("  ",
					zap.ByteString("key", item.Key),
					zap.Int("value length", len(item.Value)),
					zap.Binary("truncated value", truncate(item.Value)),
				)
			}
			return ok
		}))
	})
}

// Commit commits the transaction.
func (tx *txn) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	tx.log.Debug("Commit")
	err = tx.tx.Commit(ctx)
	if err != nil {
		tx.log.Debug("Commit failed", zap.Error(err))
	}
	return err
}

// Rollback discards the transaction.
func (tx *txn) Rollback() error {
	tx.log.Debug("Rollback")
	return tx.tx.Rollback()
}

func truncate(v kvstore.Value) (t []byte) {
	if len(v)-1 < 10 {
		t = []byte(v)
	} else {
		t = v[:10]
	}
	return t
}
