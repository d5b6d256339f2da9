// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package watch

import (
	"sync"
	"sync/atomic"

	"storj.io/docstore/private/kvstore"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Watcher is a one-shot notification for the first committed change of a
// key inside [First, End).
type Watcher struct {
	id       uint64
	notifier *Notifier

	first kvstore.Key
	end   kvstore.Key
	fn    func(key kvstore.Key)

	state atomic.Int32
	key   kvstore.Key
	done  chan struct{}
	once  sync.Once
}

// ID returns the watcher id, unique within its notifier.
func (watcher *Watcher) ID() uint64 { return watcher.id }

// Contains returns whether key is inside the watched range.
func (watcher *Watcher) Contains(key kvstore.Key) bool {
	return kvstore.InRange(key, watcher.first, watcher.end)
}

// Done is closed once the watcher fired or was cancelled. For a fired
// watcher it is closed after the callback returned.
func (watcher *Watcher) Done() <-chan struct{} { return watcher.done }

// Fired returns whether the watcher fired.
func (watcher *Watcher) Fired() bool { return watcher.state.Load() == stateFired }

// Cancelled returns whether the watcher was cancelled before firing.
func (watcher *Watcher) Cancelled() bool { return watcher.state.Load() == stateCancelled }

// Key returns the lowest key of the commit that fired the watcher. It is
// only valid after Done is closed and Fired is true.
func (watcher *Watcher) Key() kvstore.Key { return watcher.key }

// Cancel stops the watcher. It returns false when the watcher already fired
// or was cancelled. A cancelled watcher never calls its callback.
func (watcher *Watcher) Cancel() bool {
	if !watcher.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	watcher.notifier.remove(watcher)
	watcher.once.Do(func() { close(watcher.done) })
	return true
}

// fire moves the watcher to the fired state. Only the first call succeeds.
func (watcher *Watcher) fire(key kvstore.Key) bool {
	if !watcher.state.CompareAndSwap(statePending, stateFired) {
		return false
	}
	watcher.key = key
	return true
}

func (watcher *Watcher) finish() {
	watcher.once.Do(func() { close(watcher.done) })
}
