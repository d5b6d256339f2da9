// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/private/kvstore"
)

var mon = monkit.Package()

// Error is the default boltdb errs class.
var Error = errs.Class("boltdb")

var (
	defaultTimeout = 1 * time.Second
)

const (
	// fileMode sets permissions so owner can read and write.
	fileMode = 0600
)

// Client is the entrypoint into a bolt data store.
type Client struct {
	log    *zap.Logger
	db     *bolt.DB
	Path   string
	Bucket []byte
}

// New instantiates a new BoltDB client.
func New(log *zap.Logger, path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, convertError(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, errs.Combine(convertError(err), db.Close())
	}

	log.Debug("opened bolt store", zap.String("path", path), zap.String("bucket", bucket))

	return &Client{
		log:    log,
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

// Close closes a BoltDB client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// Begin starts a bolt transaction. Bolt allows a single writer at a time, so
// writable transactions block until the previous one finishes.
func (client *Client) Begin(ctx context.Context, writable bool) (_ kvstore.Txn, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := client.db.Begin(writable)
	if err != nil {
		return nil, convertError(err)
	}

	bucket := tx.Bucket(client.Bucket)
	if bucket == nil {
		_ = tx.Rollback()
		return nil, kvstore.ErrCorrupted.New("bucket %q missing", client.Bucket)
	}

	return &txn{tx: tx, bucket: bucket}, nil
}

type txn struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	done   bool
}

func (tx *txn) Writable() bool { return tx.tx.Writable() }

// Get looks up the provided key returning either an error or the result.
func (tx *txn) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return nil, kvstore.ErrTxDone.New("")
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	value := tx.bucket.Get(key)
	if value == nil {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	// bolt values are only valid for the life of the transaction.
	return kvstore.CloneValue(value), nil
}

// Put adds a key/value to the bucket.
func (tx *txn) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return convertError(tx.bucket.Put(key, value))
}

// Delete deletes a key/value pair.
func (tx *txn) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	if !tx.tx.Writable() {
		return kvstore.ErrReadOnly.New("")
	}
	if tx.bucket.Get(key) == nil {
		return kvstore.ErrKeyNotFound.New("%q", key)
	}
	return convertError(tx.bucket.Delete(key))
}

// Iterate iterates over items based on opts.
func (tx *txn) Iterate(ctx context.Context, opts kvstore.IterateOptions, fn func(context.Context, kvstore.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}

	cursor := tx.bucket.Cursor()
	if opts.Reverse {
		return fn(ctx, iterateReverse(cursor, opts))
	}
	return fn(ctx, iterateForward(cursor, opts))
}

func iterateForward(cursor *bolt.Cursor, opts kvstore.IterateOptions) kvstore.Iterator {
	start := opts.Prefix
	if opts.First != nil && bytes.Compare(opts.First, opts.Prefix) > 0 {
		start = opts.First
	}

	started := false
	return kvstore.IteratorFunc(func(ctx context.Context, item *kvstore.Item) bool {
		var key, value []byte
		if !started {
			key, value = cursor.Seek(start)
			started = true
		} else {
			key, value = cursor.Next()
		}
		if key == nil || !bytes.HasPrefix(key, opts.Prefix) {
			return false
		}
		item.Key = append(item.Key[:0], key...)
		item.Value = append(item.Value[:0], value...)
		return true
	})
}

func iterateReverse(cursor *bolt.Cursor, opts kvstore.IterateOptions) kvstore.Iterator {
	// position on the last key that is <= first, or the last key of the
	// prefix range when first is not set.
	after := kvstore.AfterPrefix(opts.Prefix)
	if len(opts.Prefix) == 0 {
		after = nil
	}

	position := func() ([]byte, []byte) {
		if opts.First != nil && (after == nil || bytes.Compare(opts.First, after) < 0) {
			key, value := cursor.Seek(opts.First)
			switch {
			case key == nil:
				return cursor.Last()
			case bytes.Equal(key, opts.First):
				return key, value
			default:
				return cursor.Prev()
			}
		}

		if after == nil {
			return cursor.Last()
		}
		key, _ := cursor.Seek(after)
		if key == nil {
			return cursor.Last()
		}
		return cursor.Prev()
	}

	started := false
	return kvstore.IteratorFunc(func(ctx context.Context, item *kvstore.Item) bool {
		var key, value []byte
		if !started {
			key, value = position()
			started = true
		} else {
			key, value = cursor.Prev()
		}
		if key == nil || !bytes.HasPrefix(key, opts.Prefix) {
			return false
		}
		item.Key = append(item.Key[:0], key...)
		item.Value = append(item.Value[:0], value...)
		return true
	})
}

// Commit commits the bolt transaction. Read-only transactions are released.
func (tx *txn) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	tx.done = true

	if !tx.tx.Writable() {
		return convertError(tx.tx.Rollback())
	}
	return convertError(tx.tx.Commit())
}

// Rollback discards the bolt transaction.
func (tx *txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return convertError(tx.tx.Rollback())
}

// convertError maps bolt failures onto the kvstore error classes.
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errs.Is(err, bolt.ErrTxClosed):
		return kvstore.ErrTxDone.Wrap(err)
	case errs.Is(err, bolt.ErrTxNotWritable):
		return kvstore.ErrReadOnly.Wrap(err)
	case errs.Is(err, bolt.ErrKeyRequired):
		return kvstore.ErrEmptyKey.Wrap(err)
	case errs.Is(err, bolt.ErrInvalid), errs.Is(err, bolt.ErrChecksum), errs.Is(err, bolt.ErrVersionMismatch):
		return kvstore.ErrCorrupted.Wrap(err)
	case errs.Is(err, bolt.ErrTimeout):
		return kvstore.ErrConflict.Wrap(err)
	default:
		return Error.Wrap(err)
	}
}
