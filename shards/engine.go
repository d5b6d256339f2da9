// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package shards manages removable media shards and the objects stored on them.
//
// Shard records are ordinary objects of the reserved ShardInfo kind. The
// engine keeps every record in a cache keyed by shard id; the cache is the
// only source for Get and for id allocation.
package shards

import (
	"context"
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/objectid"
	"storj.io/docstore/pkg/query"
)

var (
	// Error is the default shards errs class.
	Error = errs.Class("shards")

	mon = monkit.Package()
)

const (
	// maxPrefix is the largest value of the top byte of allocated ids.
	maxPrefix = 127
	// maxRounds bounds how many times the device uuid is perturbed.
	maxRounds    = 1024
	checksumMask = 0xffffff
)

// Config contains configurable values for shard maintenance.
type Config struct {
	PurgeInterval      time.Duration `help:"how often inactive shards are purged" default:"24h"`
	PurgeOlderThanDays int           `help:"purge inactive shards not seen for this many days" default:"30"`
	PurgeBatch         int           `help:"number of objects removed per transaction when purging" default:"100"`
	ReserveFor         time.Duration `help:"how long an allocated shard id stays reserved without being put" default:"1h"`
}

// Writer reads and stores shard records inside a caller's batch.
type Writer interface {
	Get(ctx context.Context, id string) (document.Object, error)
	Merge(ctx context.Context, obj document.Object) (document.Object, error)
	// OnCommit runs fn once the writes made through the writer are durable.
	// fn never runs when they are discarded.
	OnCommit(fn func())
}

// DB is the subset of the database the engine needs.
type DB interface {
	Writer
	PutKind(ctx context.Context, kind kinds.Kind) error
	Find(ctx context.Context, q query.Query) ([]document.Object, error)
	Put(ctx context.Context, obj document.Object) (document.Object, error)
	Purge(ctx context.Context, ids []string) (int, error)
}

// Existence is the outcome of Exists.
type Existence int

const (
	// NotFound means the id is free.
	NotFound Existence = iota
	// Exists means the id is used or reserved.
	Exists
	// NotReady means Init has not completed.
	NotReady
)

// String implements fmt.Stringer.
func (existence Existence) String() string {
	switch existence {
	case NotFound:
		return "not found"
	case Exists:
		return "exists"
	case NotReady:
		return "not ready"
	}
	return "existence(" + strconv.Itoa(int(existence)) + ")"
}

type entry struct {
	info Info
	// record is the id of the shard record, empty while not persisted.
	record string
}

// Engine is the shard registry.
type Engine struct {
	log    *zap.Logger
	config Config
	now    func() time.Time

	mu       sync.Mutex
	db       DB
	ready    bool
	cache    map[objectid.ShardID]*entry
	reserved map[objectid.ShardID]reservation
}

// reservation is a shard id handed out by AllocateID and not yet put.
type reservation struct {
	device string
	until  time.Time
}

// NewEngine creates an engine. It is unusable until Init.
func NewEngine(log *zap.Logger, config Config) *Engine {
	if config.PurgeBatch <= 0 {
		config.PurgeBatch = 100
	}
	if config.ReserveFor <= 0 {
		config.ReserveFor = time.Hour
	}
	return &Engine{
		log:      log,
		config:   config,
		now:      time.Now,
		cache:    map[objectid.ShardID]*entry{},
		reserved: map[objectid.ShardID]reservation{},
	}
}

// SetNow replaces the clock.
func (engine *Engine) SetNow(now func() time.Time) { engine.now = now }

// Init registers the shard kind, marks every shard inactive and fills the cache.
func (engine *Engine) Init(ctx context.Context, db DB) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := db.PutKind(ctx, Kind()); err != nil {
		return err
	}

	records, err := db.Find(ctx, query.Query{Kind: kinds.ShardKind, ExcludeSubKinds: true})
	if err != nil {
		return err
	}

	cache := make(map[objectid.ShardID]*entry, len(records))
	for _, record := range records {
		info, err := infoFromObject(record)
		if err != nil {
			return err
		}

		if info.Active || info.MountPath != "" {
			info.Active = false
			info.MountPath = ""
			if _, err := db.Merge(ctx, document.Object{
				document.FieldID:   record.ID(),
				document.FieldKind: kinds.ShardKind,
				"active":           false,
				"mountPath":        "",
			}); err != nil {
				return err
			}
		}
		cache[info.ShardID] = &entry{info: info, record: record.ID()}
	}

	engine.mu.Lock()
	engine.db = db
	engine.cache = cache
	engine.ready = true
	engine.mu.Unlock()

	engine.log.Info("shards initialized", zap.Int("shards", len(cache)))
	return nil
}

func (engine *Engine) checkReady() (DB, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.ready {
		return nil, docerr.NotReady.New("shard engine")
	}
	return engine.db, nil
}

// Get returns the cached shard with id.
func (engine *Engine) Get(id objectid.ShardID) (Info, bool) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	e, ok := engine.cache[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// GetBase64 returns the cached shard with the base64 id.
func (engine *Engine) GetBase64(id string) (Info, bool, error) {
	shard, err := objectid.ParseShard(id)
	if err != nil {
		return Info{}, false, err
	}
	info, ok := engine.Get(shard)
	return info, ok, nil
}

// All returns every cached shard sorted by id.
func (engine *Engine) All() []Info {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	result := make([]Info, 0, len(engine.cache))
	for _, e := range engine.cache {
		result = append(result, e.info)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ShardID < result[k].ShardID })
	return result
}

// Put stores info, creating the record when the shard is new.
func (engine *Engine) Put(ctx context.Context, info Info) (err error) {
	defer mon.Task()(&ctx)(&err)

	db, err := engine.checkReady()
	if err != nil {
		return err
	}
	if info.ShardID == objectid.MainShard {
		return docerr.InvalidObject.New("shard id must not be the main shard")
	}

	info.Timestamp = engine.now().UnixMicro()
	if info.IDBase64 == "" {
		info.IDBase64 = info.ShardID.Base64()
	}

	obj, err := info.object()
	if err != nil {
		return err
	}

	engine.mu.Lock()
	existing, ok := engine.cache[info.ShardID]
	engine.mu.Unlock()

	var stored document.Object
	if ok && existing.record != "" {
		// the kind set is only changed by linking.
		delete(obj, "kindIds")
		info.KindIDs = existing.info.KindIDs
		obj[document.FieldID] = existing.record
		stored, err = db.Merge(ctx, obj)
	} else {
		stored, err = db.Put(ctx, obj)
	}
	if err != nil {
		return err
	}

	engine.mu.Lock()
	engine.cache[info.ShardID] = &entry{info: info, record: stored.ID()}
	delete(engine.reserved, info.ShardID)
	engine.mu.Unlock()
	return nil
}

// GetAllActive returns the active shards as stored.
func (engine *Engine) GetAllActive(ctx context.Context) (_ []Info, err error) {
	defer mon.Task()(&ctx)(&err)

	db, err := engine.checkReady()
	if err != nil {
		return nil, err
	}

	records, err := db.Find(ctx, query.Query{
		Kind:            kinds.ShardKind,
		Where:           []query.Where{{Prop: "active", Op: query.Eq, Value: true}},
		OrderBy:         "shardId",
		ExcludeSubKinds: true,
	})
	if err != nil {
		return nil, err
	}

	result := make([]Info, 0, len(records))
	for _, record := range records {
		info, err := infoFromObject(record)
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

// Update merges the fields of info into the stored record with the same
// shard id.
func (engine *Engine) Update(ctx context.Context, info Info) (err error) {
	defer mon.Task()(&ctx)(&err)

	db, err := engine.checkReady()
	if err != nil {
		return err
	}

	records, err := db.Find(ctx, query.Query{
		Kind:            kinds.ShardKind,
		Where:           []query.Where{{Prop: "shardId", Op: query.Eq, Value: int64(info.ShardID)}},
		ExcludeSubKinds: true,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return docerr.ObjectNotFound.New("shard %d", info.ShardID)
	}

	if info.IDBase64 == "" {
		info.IDBase64 = info.ShardID.Base64()
	}
	obj, err := info.object()
	if err != nil {
		return err
	}
	obj[document.FieldID] = records[0].ID()
	delete(obj, "kindIds")

	stored, err := db.Merge(ctx, obj)
	if err != nil {
		return err
	}
	merged, err := infoFromObject(stored)
	if err != nil {
		return err
	}

	engine.mu.Lock()
	engine.cache[info.ShardID] = &entry{info: merged, record: stored.ID()}
	engine.mu.Unlock()
	return nil
}

// Exists reports whether id is used by a shard or reserved by AllocateID.
func (engine *Engine) Exists(id objectid.ShardID) Existence {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if !engine.ready {
		return NotReady
	}
	if _, ok := engine.cache[id]; ok {
		return Exists
	}
	engine.dropExpiredLocked()
	if _, ok := engine.reserved[id]; ok {
		return Exists
	}
	return NotFound
}

// dropExpiredLocked forgets reservations that were never put in time.
func (engine *Engine) dropExpiredLocked() {
	now := engine.now()
	for id, r := range engine.reserved {
		if now.After(r.until) {
			engine.log.Debug("shard reservation expired",
				zap.Uint32("shard", uint32(id)), zap.String("device", r.device))
			delete(engine.reserved, id)
		}
	}
}

// AllocateID returns a free shard id derived from the device uuid. The id is
// reserved until Put stores it or ReserveFor passes. A device holds at most
// one reservation; allocating again replaces it.
func (engine *Engine) AllocateID(ctx context.Context, deviceUUID string) (_ objectid.ShardID, err error) {
	defer mon.Task()(&ctx)(&err)

	engine.mu.Lock()
	for id, r := range engine.reserved {
		if r.device == deviceUUID {
			delete(engine.reserved, id)
		}
	}
	engine.mu.Unlock()

	seed := deviceUUID
	for round := 0; round < maxRounds; round++ {
		checksum := crc32.ChecksumIEEE([]byte(seed)) & checksumMask
		for prefix := uint32(1); prefix <= maxPrefix; prefix++ {
			id := objectid.ShardID(prefix<<24 | checksum)
			switch engine.Exists(id) {
			case NotReady:
				return 0, docerr.NotReady.New("shard engine")
			case NotFound:
				engine.mu.Lock()
				_, used := engine.cache[id]
				if _, taken := engine.reserved[id]; taken || used {
					engine.mu.Unlock()
					continue
				}
				engine.reserved[id] = reservation{
					device: deviceUUID,
					until:  engine.now().Add(engine.config.ReserveFor),
				}
				engine.mu.Unlock()
				return id, nil
			}
		}
		seed = deviceUUID + "-" + strconv.Itoa(round+1)
	}
	return 0, Error.New("no free shard id for %q", deviceUUID)
}

// GetShardID returns the shard id of a device, allocating one for a new device.
func (engine *Engine) GetShardID(ctx context.Context, deviceUUID string) (_ objectid.ShardID, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := engine.checkReady(); err != nil {
		return 0, err
	}

	engine.mu.Lock()
	for id, e := range engine.cache {
		if e.info.DeviceID == deviceUUID {
			engine.mu.Unlock()
			return id, nil
		}
	}
	engine.dropExpiredLocked()
	for id, r := range engine.reserved {
		if r.device == deviceUUID {
			engine.mu.Unlock()
			return id, nil
		}
	}
	engine.mu.Unlock()

	return engine.AllocateID(ctx, deviceUUID)
}

// LinkShardAndKindID records, through w, that shard holds objects of kind.
func (engine *Engine) LinkShardAndKindID(ctx context.Context, w Writer, shard objectid.ShardID, kind string) error {
	return engine.setKind(ctx, w, shard, kind, true)
}

// UnlinkShardAndKindID removes kind from the kind set of shard.
func (engine *Engine) UnlinkShardAndKindID(ctx context.Context, w Writer, shard objectid.ShardID, kind string) error {
	return engine.setKind(ctx, w, shard, kind, false)
}

func (engine *Engine) setKind(ctx context.Context, w Writer, shard objectid.ShardID, kind string, link bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := engine.checkReady(); err != nil {
		return err
	}

	engine.mu.Lock()
	e, ok := engine.cache[shard]
	if !ok || e.record == "" {
		engine.mu.Unlock()
		return docerr.ObjectNotFound.New("shard %d", shard)
	}
	// the cache only holds committed kind sets.
	if e.info.HasKind(kind) == link {
		engine.mu.Unlock()
		return nil
	}
	record := e.record
	engine.mu.Unlock()

	// the writer's view may already hold uncommitted changes of the set.
	stored, err := w.Get(ctx, record)
	if err != nil {
		return err
	}
	info, err := infoFromObject(stored)
	if err != nil {
		return err
	}
	if info.HasKind(kind) != link {
		info.setKind(kind, link)
		_, err = w.Merge(ctx, document.Object{
			document.FieldID:   record,
			document.FieldKind: kinds.ShardKind,
			"kindIds":          info.KindIDs,
		})
		if err != nil {
			return err
		}
	}

	w.OnCommit(func() {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		if current, ok := engine.cache[shard]; ok {
			current.info.setKind(kind, link)
		}
	})
	return nil
}

// RemoveShardObjects removes every object stored on the given shards. Shards
// that are inactive and transient are retired as well.
func (engine *Engine) RemoveShardObjects(ctx context.Context, ids ...objectid.ShardID) (err error) {
	defer mon.Task()(&ctx)(&err)

	db, err := engine.checkReady()
	if err != nil {
		return err
	}

	for _, id := range ids {
		info, ok := engine.Get(id)
		if !ok {
			return docerr.ObjectNotFound.New("shard %d", id)
		}

		removed := 0
		for _, kind := range info.Kinds() {
			n, err := engine.removeKindObjects(ctx, db, id, kind)
			if err != nil {
				return err
			}
			removed += n
		}
		engine.log.Info("removed shard objects",
			zap.Uint32("shard", uint32(id)),
			zap.Strings("kinds", info.Kinds()),
			zap.Int("objects", removed))

		if !info.Active && info.Transient {
			if err := engine.removeShardInfo(ctx, db, id); err != nil {
				return err
			}
			continue
		}
		for _, kind := range info.Kinds() {
			if err := engine.UnlinkShardAndKindID(ctx, db, id, kind); err != nil {
				return err
			}
		}
	}
	return nil
}

func (engine *Engine) removeKindObjects(ctx context.Context, db DB, shard objectid.ShardID, kind string) (int, error) {
	objects, err := db.Find(ctx, query.Query{Kind: kind, IncludeDeleted: true, ExcludeSubKinds: true})
	if docerr.KindNotRegistered.Has(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, obj := range objects {
		owner, err := objectid.ExtractShard(obj.ID())
		if err != nil || owner != shard {
			continue
		}
		ids = append(ids, obj.ID())
	}

	removed := 0
	for len(ids) > 0 {
		batch := ids[:min(len(ids), engine.config.PurgeBatch)]
		ids = ids[len(batch):]

		n, err := db.Purge(ctx, batch)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (engine *Engine) removeShardInfo(ctx context.Context, db DB, id objectid.ShardID) error {
	engine.mu.Lock()
	e, ok := engine.cache[id]
	engine.mu.Unlock()
	if !ok {
		return nil
	}

	if e.record != "" {
		if _, err := db.Purge(ctx, []string{e.record}); err != nil {
			return err
		}
	}

	engine.mu.Lock()
	delete(engine.cache, id)
	engine.mu.Unlock()
	engine.log.Info("retired shard", zap.Uint32("shard", uint32(id)))
	return nil
}

// PurgeShardObjects removes the objects of every inactive shard that was not
// put for more than olderThanDays days.
func (engine *Engine) PurgeShardObjects(ctx context.Context, olderThanDays int) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := engine.checkReady(); err != nil {
		return err
	}

	cutoff := engine.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	var stale []objectid.ShardID
	for _, info := range engine.All() {
		if !info.Active && info.Time().Before(cutoff) {
			stale = append(stale, info.ShardID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return engine.RemoveShardObjects(ctx, stale...)
}
