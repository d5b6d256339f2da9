// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/docstore/private/kvstore"
)

var mon = monkit.Package()

// Client implements in-memory key value store.
//
// Transactions see a snapshot of the store taken at Begin. On commit the
// keys and ranges read by the transaction are checked against everything
// committed since, and the commit fails with kvstore.ErrConflict when any of
// them changed.
type Client struct {
	mu sync.Mutex

	items    kvstore.Items
	versions map[string]uint64
	version  uint64
	closed   bool

	CallCount struct {
		Begin    int
		Commit   int
		Rollback int
		Conflict int
	}
}

// New creates a new in-memory key-value store.
func New() *Client {
	return &Client{versions: map[string]uint64{}}
}

// Begin starts a new transaction.
func (store *Client) Begin(ctx context.Context, writable bool) (_ kvstore.Txn, err error) {
	defer mon.Task()(&ctx)(&err)

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil, errs.New("store closed")
	}
	store.CallCount.Begin++

	return &txn{
		store:    store,
		writable: writable,
		snapshot: store.items,
		version:  store.version,
		reads:    map[string]struct{}{},
		writes:   map[string]*kvstore.Value{},
	}, nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.closed = true
	return nil
}

// Len returns the number of committed items.
func (store *Client) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.items)
}

// indexOf finds index of key or where it could be inserted.
func indexOf(items kvstore.Items, key kvstore.Key) (int, bool) {
	i := sort.Search(len(items), func(k int) bool {
		return !items[k].Key.Less(key)
	})

	if i >= len(items) {
		return i, false
	}
	return i, items[i].Key.Equal(key)
}

// commit applies writes on top of the current items, never modifying the
// existing slice so that snapshots held by other transactions stay valid.
func (store *Client) commit(tx *txn) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return errs.New("store closed")
	}
	store.CallCount.Commit++

	if tx.conflicts() {
		store.CallCount.Conflict++
		return kvstore.ErrConflict.New("concurrent modification")
	}
	if len(tx.writes) == 0 {
		return nil
	}

	store.version++

	next := make(kvstore.Items, 0, len(store.items)+len(tx.writes))
	changes := tx.sortedWrites()

	i := 0
	for _, change := range changes {
		for i < len(store.items) && store.items[i].Key.Less(change.Key) {
			next = append(next, store.items[i])
			i++
		}
		if i < len(store.items) && store.items[i].Key.Equal(change.Key) {
			i++
		}
		if change.Value != nil {
			next = append(next, kvstore.Item{Key: change.Key, Value: *change.Value})
		}
		store.versions[string(change.Key)] = store.version
	}
	next = append(next, store.items[i:]...)

	store.items = next
	return nil
}

type readRange struct {
	first kvstore.Key
	end   kvstore.Key
}

type change struct {
	Key   kvstore.Key
	Value *kvstore.Value
}

type txn struct {
	store    *Client
	writable bool
	done     bool

	snapshot kvstore.Items
	version  uint64

	reads  map[string]struct{}
	ranges []readRange
	// writes maps a key to its new value, nil meaning deleted.
	writes map[string]*kvstore.Value
}

func (tx *txn) Writable() bool { return tx.writable }

func (tx *txn) check(write bool) error {
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	if write && !tx.writable {
		return kvstore.ErrReadOnly.New("")
	}
	return nil
}

func (tx *txn) lookup(key kvstore.Key) (kvstore.Value, bool) {
	if value, ok := tx.writes[string(key)]; ok {
		if value == nil {
			return nil, false
		}
		return *value, true
	}
	i, found := indexOf(tx.snapshot, key)
	if !found {
		return nil, false
	}
	return tx.snapshot[i].Value, true
}

// Get gets the value of key.
func (tx *txn) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(false); err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	tx.reads[string(key)] = struct{}{}
	value, ok := tx.lookup(key)
	if !ok {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return kvstore.CloneValue(value), nil
}

// Put adds a value to store.
func (tx *txn) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(true); err != nil {
		return err
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	cloned := kvstore.CloneValue(value)
	tx.writes[string(key)] = &cloned
	return nil
}

// Delete deletes key and the value.
func (tx *txn) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(true); err != nil {
		return err
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	tx.reads[string(key)] = struct{}{}
	if _, ok := tx.lookup(key); !ok {
		return kvstore.ErrKeyNotFound.New("%q", key)
	}
	tx.writes[string(key)] = nil
	return nil
}

// Iterate iterates over items based on opts.
func (tx *txn) Iterate(ctx context.Context, opts kvstore.IterateOptions, fn func(context.Context, kvstore.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(false); err != nil {
		return err
	}

	first, end := opts.Prefix, kvstore.AfterPrefix(opts.Prefix)
	if len(opts.Prefix) == 0 {
		first, end = nil, nil
	}
	tx.ranges = append(tx.ranges, readRange{first: kvstore.CloneKey(first), end: end})

	items := tx.view(first, end)
	if opts.Reverse {
		for i, k := 0, len(items)-1; i < k; i, k = i+1, k-1 {
			items[i], items[k] = items[k], items[i]
		}
	}

	next := 0
	if opts.First != nil {
		next = sort.Search(len(items), func(k int) bool {
			c := bytes.Compare(items[k].Key, opts.First)
			if opts.Reverse {
				return c <= 0
			}
			return c >= 0
		})
	}

	return fn(ctx, kvstore.IteratorFunc(func(ctx context.Context, item *kvstore.Item) bool {
		if next >= len(items) {
			return false
		}
		item.Key = append(item.Key[:0], items[next].Key...)
		item.Value = append(item.Value[:0], items[next].Value...)
		next++
		return true
	}))
}

// view merges the snapshot with the pending writes inside [first, end).
func (tx *txn) view(first, end kvstore.Key) kvstore.Items {
	start, _ := indexOf(tx.snapshot, first)

	var items kvstore.Items
	for _, item := range tx.snapshot[start:] {
		if end != nil && !item.Key.Less(end) {
			break
		}
		if _, changed := tx.writes[string(item.Key)]; changed {
			continue
		}
		items = append(items, item)
	}
	for _, change := range tx.sortedWrites() {
		if change.Value == nil || !kvstore.InRange(change.Key, first, end) {
			continue
		}
		items = append(items, kvstore.Item{Key: change.Key, Value: *change.Value})
	}
	sort.Sort(items)
	return items
}

func (tx *txn) sortedWrites() []change {
	changes := make([]change, 0, len(tx.writes))
	for key, value := range tx.writes {
		changes = append(changes, change{Key: kvstore.Key(key), Value: value})
	}
	sort.Slice(changes, func(i, k int) bool {
		return changes[i].Key.Less(changes[k].Key)
	})
	return changes
}

// conflicts must be called with the store lock held.
func (tx *txn) conflicts() bool {
	if !tx.writable || tx.store.version == tx.version {
		return false
	}
	for key := range tx.reads {
		if tx.store.versions[key] > tx.version {
			return true
		}
	}
	for key := range tx.writes {
		if tx.store.versions[key] > tx.version {
			return true
		}
	}
	for key, version := range tx.store.versions {
		if version <= tx.version {
			continue
		}
		for _, r := range tx.ranges {
			if kvstore.InRange(kvstore.Key(key), r.first, r.end) {
				return true
			}
		}
	}
	return false
}

// Commit makes every change of the transaction visible.
func (tx *txn) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	tx.done = true
	return tx.store.commit(tx)
}

// Rollback discards the transaction.
func (tx *txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true

	tx.store.mu.Lock()
	tx.store.CallCount.Rollback++
	tx.store.mu.Unlock()
	return nil
}
