// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kvstore

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

// NextKey returns the successive key.
func NextKey(key Key) Key {
	return append(CloneKey(key), 0)
}

// AfterPrefix returns the key after prefix.
// It returns nil when no such key exists, i.e. every key has the prefix.
func AfterPrefix(prefix Key) Key {
	after := CloneKey(prefix)
	for len(after) > 0 {
		last := len(after) - 1
		if after[last] != 0xff {
			after[last]++
			return after
		}
		after = after[:last]
	}
	return nil
}

// HasPrefix returns whether key starts with prefix.
func (key Key) HasPrefix(prefix Key) bool {
	return bytes.HasPrefix(key, prefix)
}

// CloneKey creates a copy of key.
func CloneKey(key Key) Key { return append(key[:0:0], key...) }

// CloneValue creates a copy of value.
func CloneValue(value Value) Value { return append(value[:0:0], value...) }

// CloneItem creates a deep copy of item.
func CloneItem(item Item) Item {
	return Item{
		Key:   CloneKey(item.Key),
		Value: CloneValue(item.Value),
	}
}

// CloneItems creates a deep copy of items.
func CloneItems(items Items) Items {
	var result = make(Items, len(items))
	for i, item := range items {
		result[i] = CloneItem(item)
	}
	return result
}

// View runs fn inside a read-only transaction.
func View(ctx context.Context, store Store, fn func(Txn) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := store.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, tx.Rollback()) }()

	return fn(tx)
}

// Update runs fn inside a writable transaction and commits when fn succeeds.
func Update(ctx context.Context, store Store, fn func(Txn) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := store.Begin(ctx, true)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return errs.Combine(err, tx.Rollback())
	}
	return tx.Commit(ctx)
}

// Collect returns all items matching opts, in iteration order.
func Collect(ctx context.Context, tx Txn, opts IterateOptions) (items Items, err error) {
	err = tx.Iterate(ctx, opts, func(ctx context.Context, it Iterator) error {
		var item Item
		for it.Next(ctx, &item) {
			items = append(items, CloneItem(item))
		}
		return nil
	})
	return items, err
}

// InRange returns whether key falls inside the half-open range [first, end).
// A nil end means the range is unbounded above.
func InRange(key, first, end Key) bool {
	if bytes.Compare(key, first) < 0 {
		return false
	}
	return end == nil || bytes.Compare(key, end) < 0
}
