// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package watch delivers change notifications after commits.
//
// A committed transaction publishes a commit event listing the watchers it
// touched, together with the lowest touched key of each. The notifier
// consumes those events on its own goroutine and runs the callbacks on a
// bounded worker pool, so a slow callback never holds up a commit.
package watch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/docstore/private/kvstore"
)

var (
	// Error is the default watch errs class.
	Error = errs.Class("watch")

	mon = monkit.Package()
)

// Topic is the topic commit events are published on.
const Topic = "commits"

// Config contains configurable values for notification delivery.
type Config struct {
	Workers int `help:"number of goroutines running watcher callbacks" default:"4"`
	Buffer  int `help:"number of commit events buffered before publishing blocks" default:"64"`
}

// Firing is a watcher touched by a commit.
type Firing struct {
	Watcher uint64 `json:"watcher"`
	Key     []byte `json:"key"`
}

// Event is the payload of a commit message.
type Event struct {
	Firings []Firing `json:"firings"`
}

// Notifier owns the registered watchers.
type Notifier struct {
	log    *zap.Logger
	pubsub *gochannel.GoChannel
	pool   *ants.Pool

	mu       sync.Mutex
	nextID   uint64
	watchers map[uint64]*Watcher

	cancel context.CancelFunc
	group  errgroup.Group
}

// NewNotifier starts a notifier.
func NewNotifier(log *zap.Logger, config Config) (_ *Notifier, err error) {
	if config.Workers <= 0 {
		config.Workers = 1
	}

	notifier := &Notifier{
		log:      log,
		watchers: map[uint64]*Watcher{},
	}

	notifier.pool, err = ants.NewPool(config.Workers, ants.WithPanicHandler(func(v any) {
		log.Error("watcher callback panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	notifier.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(config.Buffer),
	}, NewLoggerAdapter(log))

	ctx, cancel := context.WithCancel(context.Background())
	notifier.cancel = cancel

	messages, err := notifier.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		notifier.pool.Release()
		return nil, errs.Combine(Error.Wrap(err), notifier.pubsub.Close())
	}

	notifier.group.Go(func() error {
		notifier.run(messages)
		return nil
	})
	return notifier, nil
}

// Watch registers a watcher for [first, end). A nil end means no upper bound.
// fn may be nil when the caller only waits on Done.
func (notifier *Notifier) Watch(first, end kvstore.Key, fn func(key kvstore.Key)) *Watcher {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	notifier.nextID++
	watcher := &Watcher{
		id:       notifier.nextID,
		notifier: notifier,
		first:    kvstore.CloneKey(first),
		end:      kvstore.CloneKey(end),
		fn:       fn,
		done:     make(chan struct{}),
	}
	notifier.watchers[watcher.id] = watcher
	return watcher
}

// Match returns the pending watchers whose range contains key.
func (notifier *Notifier) Match(key kvstore.Key) []*Watcher {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	var matched []*Watcher
	for _, watcher := range notifier.watchers {
		if watcher.Contains(key) {
			matched = append(matched, watcher)
		}
	}
	sort.Slice(matched, func(i, k int) bool { return matched[i].id < matched[k].id })
	return matched
}

// Pending returns the number of registered watchers.
func (notifier *Notifier) Pending() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return len(notifier.watchers)
}

func (notifier *Notifier) remove(watcher *Watcher) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	delete(notifier.watchers, watcher.id)
}

func (notifier *Notifier) lookup(id uint64) (*Watcher, bool) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	watcher, ok := notifier.watchers[id]
	return watcher, ok
}

// Publish announces a commit that touched the given watchers. It must only
// be called after the commit is durable.
func (notifier *Notifier) Publish(ctx context.Context, firings []Firing) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(firings) == 0 {
		return nil
	}

	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(Event{Firings: firings})
	if err != nil {
		return Error.Wrap(err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return Error.Wrap(notifier.pubsub.Publish(Topic, msg))
}

func (notifier *Notifier) run(messages <-chan *message.Message) {
	for msg := range messages {
		var event Event
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(msg.Payload, &event); err != nil {
			notifier.log.Error("invalid commit event", zap.String("uuid", msg.UUID), zap.Error(err))
			msg.Ack()
			continue
		}
		for _, firing := range event.Firings {
			notifier.deliver(firing)
		}
		msg.Ack()
	}
}

func (notifier *Notifier) deliver(firing Firing) {
	watcher, ok := notifier.lookup(firing.Watcher)
	if !ok || !watcher.fire(firing.Key) {
		return
	}
	notifier.remove(watcher)
	mon.Counter("watcher_fired").Inc(1)

	callback := func() {
		defer watcher.finish()
		if watcher.fn != nil {
			watcher.fn(watcher.key)
		}
	}
	if err := notifier.pool.Submit(callback); err != nil {
		notifier.log.Warn("watcher pool unavailable, running callback inline", zap.Error(err))
		callback()
	}
}

// Close stops delivery. Watchers that are still pending are cancelled.
func (notifier *Notifier) Close() error {
	err := notifier.pubsub.Close()
	notifier.cancel()
	_ = notifier.group.Wait()

	notifier.mu.Lock()
	pending := make([]*Watcher, 0, len(notifier.watchers))
	for _, watcher := range notifier.watchers {
		pending = append(pending, watcher)
	}
	notifier.mu.Unlock()
	for _, watcher := range pending {
		watcher.Cancel()
	}

	return errs.Combine(Error.Wrap(err), Error.Wrap(notifier.pool.ReleaseTimeout(3*time.Second)))
}
