// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package database

import (
	"encoding/binary"

	"storj.io/docstore/private/kvstore"
)

// Key space:
//
//	o/<id>                        encoded object, tombstones included
//	k/<kind>/<id>                 kind membership, value is the object _rev
//	i/<kind>/<index>/<tuple><id>  index entry, value is the id
//	m/rev                         revision counter
//	q/<owner>                     quota usage, see package quota
const (
	objectPrefix = "o/"
	memberPrefix = "k/"
	indexPrefix  = "i/"
)

var revKey = kvstore.Key("m/rev")

func objectKey(id string) kvstore.Key {
	return kvstore.Key(objectPrefix + id)
}

func membersKey(kind string) kvstore.Key {
	return kvstore.Key(memberPrefix + kind + "/")
}

func memberKey(kind, id string) kvstore.Key {
	return kvstore.Key(memberPrefix + kind + "/" + id)
}

func indexesKey(kind string) kvstore.Key {
	return kvstore.Key(indexPrefix + kind + "/")
}

func indexKey(kind, index string) kvstore.Key {
	return kvstore.Key(indexPrefix + kind + "/" + index + "/")
}

func indexEntryKey(kind, index string, tuple []byte, id string) kvstore.Key {
	key := indexKey(kind, index)
	key = append(key, tuple...)
	return append(key, id...)
}

func encodeRev(rev int64) kvstore.Value {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(rev))
	return buf[:]
}

func decodeRev(value kvstore.Value) (int64, error) {
	if len(value) != 8 {
		return 0, kvstore.ErrCorrupted.New("revision of length %d", len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}
