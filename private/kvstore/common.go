// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kvstore

import (
	"bytes"
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Delimiter separates nested paths in storage.
const Delimiter = '/'

var (
	// ErrKeyNotFound used when something doesn't exist.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used in Put.
	ErrEmptyKey = errs.Class("empty key")

	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errs.Class("transaction done")

	// ErrReadOnly is returned when a read-only transaction is asked to write.
	ErrReadOnly = errs.Class("read-only transaction")

	// ErrConflict is returned when the engine aborts a transaction because it
	// conflicts with a concurrently committed one.
	ErrConflict = errs.Class("transaction conflict")

	// ErrCorrupted is returned when the engine detects on-disk corruption.
	ErrCorrupted = errs.Class("storage corrupted")
)

// Key is the type for the keys in a `Store`.
type Key []byte

// Value is the type for the values in a `Store`.
type Value []byte

// Keys is the type for a slice of keys in a `Store`.
type Keys []Key

// Items keeps all Item.
type Items []Item

// Item is a single key and value pair.
type Item struct {
	Key   Key
	Value Value
}

// IterateOptions contains options for iterator.
type IterateOptions struct {
	// Prefix ensure.
	Prefix Key
	// First will be the first item iterator returns or the next item (previous when reverse).
	First Key
	// Reverse iterates in reverse order.
	Reverse bool
}

// Iterator iterates over a sequence of Items.
type Iterator interface {
	// Next prepares the next list item.
	// It returns true on success, or false if there is no next result row or an error happened while preparing it.
	Next(ctx context.Context, item *Item) bool
}

// IteratorFunc implements basic iterator.
type IteratorFunc func(ctx context.Context, item *Item) bool

// Next returns the next item.
func (next IteratorFunc) Next(ctx context.Context, item *Item) bool { return next(ctx, item) }

// Store describes transactional ordered key/value engines like boltdb and sqlite.
type Store interface {
	// Begin starts a new transaction. Only writable transactions may modify the store.
	Begin(ctx context.Context, writable bool) (Txn, error)
	// Close closes the store.
	Close() error
}

// Txn is a single atomic unit of work against a Store.
//
// Items handed out by Iterate are valid only until the next call to Next.
// The store must not be modified from within an Iterate callback.
type Txn interface {
	// Get gets the value of key.
	Get(ctx context.Context, key Key) (Value, error)
	// Put adds a value to the store.
	Put(ctx context.Context, key Key, value Value) error
	// Delete deletes key and the value. It fails with ErrKeyNotFound when the key is missing.
	Delete(ctx context.Context, key Key) error
	// Iterate iterates over items based on opts.
	Iterate(ctx context.Context, opts IterateOptions, fn func(context.Context, Iterator) error) error
	// Commit makes every change of the transaction durable.
	Commit(ctx context.Context) error
	// Rollback discards the transaction. It is a no-op after Commit.
	Rollback() error
	// Writable returns whether the transaction may modify the store.
	Writable() bool
}

// IsZero returns true if the value struct is a zero value.
func (value Value) IsZero() bool {
	return len(value) == 0
}

// IsZero returns true if the key struct is a zero value.
func (key Key) IsZero() bool {
	return len(key) == 0
}

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// Strings returns everything as strings.
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// GetKeys gets all the Keys in []Item and converts them to Keys.
func (items Items) GetKeys() Keys {
	if len(items) == 0 {
		return nil
	}
	var keys Keys
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

// Len is the number of elements in the collection.
func (items Items) Len() int { return len(items) }

// Less reports whether the element with
// index i should sort before the element with index j.
func (items Items) Less(i, k int) bool { return items[i].Less(items[k]) }

// Swap swaps the elements with indexes i and j.
func (items Items) Swap(i, k int) { items[i], items[k] = items[k], items[i] }

// Less returns whether item should be sorted before b.
func (item Item) Less(b Item) bool { return item.Key.Less(b.Key) }

// Less returns whether key should be sorted before b.
func (key Key) Less(b Key) bool { return bytes.Compare([]byte(key), []byte(b)) < 0 }

// Equal returns whether key and b are equal.
func (key Key) Equal(b Key) bool { return bytes.Equal([]byte(key), []byte(b)) }
