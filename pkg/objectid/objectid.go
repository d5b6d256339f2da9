// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objectid generates object ids.
//
// A short id is 8 bytes: the top 50 bits hold the creation time in units of
// 4 microseconds and the bottom 14 bits are random. A long id prefixes the
// short form with a 4-byte shard id in host byte order. Both forms are
// base64 encoded with the standard alphabet and no padding.
//
// The shard prefix is stored in host byte order, so long ids are only
// meaningful on machines of the same endianness.
package objectid

import (
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"storj.io/docstore/pkg/docerr"
)

// ShardID identifies a shard. MainShard means the id carries no shard prefix.
type ShardID uint32

// MainShard is the shard of objects that do not live on removable media.
const MainShard ShardID = 0

const (
	// ShortSize is the byte length of an id without a shard prefix.
	ShortSize = 8
	// LongSize is the byte length of an id with a shard prefix.
	LongSize = 12
	// ShardSize is the byte length of the shard prefix.
	ShardSize = LongSize - ShortSize

	// ShortEncodedSize is the length of the encoded short form.
	ShortEncodedSize = 11
	// LongEncodedSize is the length of the encoded long form.
	LongEncodedSize = 16

	randomBits = 14
	randomMask = 1<<randomBits - 1
)

var encoding = base64.RawStdEncoding

// Generator creates ids. It is safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last uint64

	now func() time.Time
}

// NewGenerator returns a generator seeded from the current time.
func NewGenerator() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

var defaultGenerator = NewGenerator()

// New returns a new id for shard using the package generator.
func New(shard ShardID) string { return defaultGenerator.New(shard) }

// New returns a new id for shard.
func (gen *Generator) New(shard ShardID) string {
	micros := gen.now().UnixMicro()

	gen.mu.Lock()
	random := gen.rng.Uint32()
	payload := uint64(micros>>2)<<randomBits | uint64(random&randomMask)
	// within one process ids never repeat and never go backwards.
	if payload <= gen.last {
		payload = gen.last + 1
	}
	gen.last = payload
	gen.mu.Unlock()

	if shard == MainShard {
		var buf [ShortSize]byte
		binary.BigEndian.PutUint64(buf[:], payload)
		return encoding.EncodeToString(buf[:])
	}

	var buf [LongSize]byte
	binary.NativeEndian.PutUint32(buf[:ShardSize], uint32(shard))
	binary.BigEndian.PutUint64(buf[ShardSize:], payload)
	return encoding.EncodeToString(buf[:])
}

// NewFromString returns a new id for a shard given in its base64 form.
// An empty designator means MainShard.
func (gen *Generator) NewFromString(shard string) (string, error) {
	if shard == "" {
		return gen.New(MainShard), nil
	}
	id, err := ParseShard(shard)
	if err != nil {
		return "", err
	}
	return gen.New(id), nil
}

// ExtractShard returns the shard an id belongs to.
func ExtractShard(id string) (ShardID, error) {
	data, err := encoding.DecodeString(id)
	if err != nil {
		return MainShard, docerr.InvalidEncoding.New("id %q: %v", id, err)
	}
	switch len(data) {
	case ShortSize:
		return MainShard, nil
	case LongSize:
		return ShardID(binary.NativeEndian.Uint32(data[:ShardSize])), nil
	default:
		return MainShard, docerr.InvalidEncoding.New("id %q: decoded length %d", id, len(data))
	}
}

// Timestamp returns the creation time encoded in an id, truncated to 4µs.
func Timestamp(id string) (time.Time, error) {
	data, err := encoding.DecodeString(id)
	if err != nil {
		return time.Time{}, docerr.InvalidEncoding.New("id %q: %v", id, err)
	}
	switch len(data) {
	case ShortSize:
	case LongSize:
		data = data[ShardSize:]
	default:
		return time.Time{}, docerr.InvalidEncoding.New("id %q: decoded length %d", id, len(data))
	}

	payload := binary.BigEndian.Uint64(data)
	micros := int64(payload>>randomBits) << 2
	return time.UnixMicro(micros), nil
}

// Base64 returns the base64 designator of a shard.
func (shard ShardID) Base64() string {
	var buf [ShardSize]byte
	binary.NativeEndian.PutUint32(buf[:], uint32(shard))
	return encoding.EncodeToString(buf[:])
}

// ParseShard decodes a base64 shard designator.
func ParseShard(s string) (ShardID, error) {
	data, err := encoding.DecodeString(s)
	if err != nil {
		return MainShard, docerr.InvalidEncoding.New("shard %q: %v", s, err)
	}
	if len(data) != ShardSize {
		return MainShard, docerr.InvalidEncoding.New("shard %q: decoded length %d", s, len(data))
	}
	return ShardID(binary.NativeEndian.Uint32(data)), nil
}
