// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package quota enforces per-owner storage limits.
//
// Usage is persisted as one row per owner in the same key space as the
// objects, so it commits atomically with the writes it accounts for. The
// live cache mirrors those rows for cheap reads.
package quota

import (
	"context"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/quota/live"
)

var (
	// Error is the default quota errs class.
	Error = errs.Class("quota")

	mon = monkit.Package()
)

// DefaultOwner accounts for kinds without an owner.
const DefaultOwner = "default"

// UsagePrefix prefixes persisted usage rows.
const UsagePrefix = "q/"

// UsageKey returns the key of the usage row of owner.
func UsageKey(owner string) kvstore.Key {
	return kvstore.Key(UsagePrefix + owner)
}

// Config contains configurable values for quota enforcement.
type Config struct {
	DefaultLimit string `help:"storage limit of every owner without an explicit limit, 0 means unlimited" default:"0"`
	Limits       string `help:"comma separated owner=size limits, e.g. contacts=64MB,notes=1GiB" default:""`
	Live         live.Config
}

// Deltas maps owners to usage changes in bytes.
type Deltas map[string]int64

// Add accumulates delta for owner.
func (deltas Deltas) Add(owner string, delta int64) {
	if delta == 0 {
		return
	}
	deltas[owner] += delta
}

// owners returns the owners with a non-zero delta in a stable order.
func (deltas Deltas) owners() []string {
	owners := make([]string, 0, len(deltas))
	for owner, delta := range deltas {
		if delta != 0 {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners
}

// Engine checks and records usage.
type Engine struct {
	log   *zap.Logger
	cache live.Cache

	defaultLimit int64
	limits       map[string]int64
}

// NewEngine creates an engine that mirrors usage into cache.
func NewEngine(log *zap.Logger, cache live.Cache, config Config) (*Engine, error) {
	defaultLimit, err := parseSize(config.DefaultLimit)
	if err != nil {
		return nil, err
	}

	limits := map[string]int64{}
	for _, entry := range strings.Split(config.Limits, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		owner, size, ok := strings.Cut(entry, "=")
		if !ok || owner == "" {
			return nil, Error.New("invalid limit %q", entry)
		}
		limit, err := parseSize(size)
		if err != nil {
			return nil, err
		}
		limits[owner] = limit
	}

	return &Engine{
		log:          log,
		cache:        cache,
		defaultLimit: defaultLimit,
		limits:       limits,
	}, nil
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, Error.New("invalid size %q: %v", s, err)
	}
	return int64(size), nil
}

// Limit returns the limit of owner, zero meaning unlimited.
func (engine *Engine) Limit(owner string) int64 {
	if limit, ok := engine.limits[owner]; ok {
		return limit
	}
	return engine.defaultLimit
}

// Usage returns the persisted usage of owner as seen by tx.
func (engine *Engine) Usage(ctx context.Context, tx kvstore.Txn, owner string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := tx.Get(ctx, UsageKey(owner))
	if kvstore.ErrKeyNotFound.Has(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, kvstore.ErrCorrupted.New("usage of %q", owner)
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

// Check fails with QuotaExceeded when applying deltas would take an owner
// over its limit. Shrinking usage is always allowed.
func (engine *Engine) Check(ctx context.Context, tx kvstore.Txn, deltas Deltas) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, owner := range deltas.owners() {
		delta := deltas[owner]
		limit := engine.Limit(owner)
		if delta <= 0 || limit <= 0 {
			continue
		}
		usage, err := engine.Usage(ctx, tx, owner)
		if err != nil {
			return err
		}
		if usage+delta > limit {
			mon.Counter("quota_rejections").Inc(1)
			return docerr.QuotaExceeded.New("%s: %s used, %s requested, limit %s",
				owner,
				humanize.IBytes(uint64(max(usage, 0))),
				humanize.IBytes(uint64(delta)),
				humanize.IBytes(uint64(limit)))
		}
	}
	return nil
}

// Apply writes the new usage rows into tx.
func (engine *Engine) Apply(ctx context.Context, tx kvstore.Txn, deltas Deltas) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, owner := range deltas.owners() {
		usage, err := engine.Usage(ctx, tx, owner)
		if err != nil {
			return err
		}
		usage = max(usage+deltas[owner], 0)

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(usage))
		if err := tx.Put(ctx, UsageKey(owner), buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Refresh mirrors committed deltas into the live cache. Failures only make
// the cache stale, so they are logged and the next Sync repairs them.
func (engine *Engine) Refresh(ctx context.Context, deltas Deltas) {
	for _, owner := range deltas.owners() {
		if err := engine.cache.AddUsage(ctx, owner, deltas[owner]); err != nil {
			engine.log.Warn("failed to refresh live usage", zap.String("owner", owner), zap.Error(err))
		}
	}
}

// CachedUsage returns the usage of owner from the live cache.
func (engine *Engine) CachedUsage(ctx context.Context, owner string) (int64, error) {
	return engine.cache.GetUsage(ctx, owner)
}

// Sync replaces the live cache content with the persisted usage rows.
func (engine *Engine) Sync(ctx context.Context, store kvstore.Store) (err error) {
	defer mon.Task()(&ctx)(&err)

	var rows kvstore.Items
	err = kvstore.View(ctx, store, func(tx kvstore.Txn) error {
		rows, err = kvstore.Collect(ctx, tx, kvstore.IterateOptions{Prefix: kvstore.Key(UsagePrefix)})
		return err
	})
	if err != nil {
		return err
	}

	if err := engine.cache.ResetTotals(ctx); err != nil {
		return Error.Wrap(err)
	}
	for _, row := range rows {
		if len(row.Value) != 8 {
			return kvstore.ErrCorrupted.New("usage row %q", row.Key)
		}
		owner := strings.TrimPrefix(string(row.Key), UsagePrefix)
		if err := engine.cache.SetUsage(ctx, owner, int64(binary.BigEndian.Uint64(row.Value))); err != nil {
			return Error.Wrap(err)
		}
	}
	engine.log.Debug("synced live usage", zap.Int("owners", len(rows)))
	return nil
}

// Close closes the live cache.
func (engine *Engine) Close() error {
	return engine.cache.Close()
}
