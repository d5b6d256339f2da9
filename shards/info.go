// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package shards

import (
	"sort"
	"strings"
	"time"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/objectid"
	"storj.io/docstore/pkg/query"
)

// Info describes a removable media unit.
type Info struct {
	ShardID    objectid.ShardID `json:"shardId"`
	IDBase64   string           `json:"idBase64"`
	Active     bool             `json:"active"`
	Transient  bool             `json:"transient"`
	DeviceID   string           `json:"deviceId"`
	DeviceURI  string           `json:"deviceUri"`
	MountPath  string           `json:"mountPath"`
	DeviceName string           `json:"deviceName"`
	// Timestamp is the time of the last put in microseconds.
	Timestamp int64 `json:"timestamp"`
	// KindIDs is the comma separated set of kinds with objects on the shard.
	KindIDs string `json:"kindIds"`
}

// Kind returns the definition of the reserved shard kind.
func Kind() kinds.Kind {
	return kinds.Kind{
		Name: kinds.ShardKind,
		Indexes: []query.Index{
			{Name: "byShardId", Props: []string{"shardId"}},
			{Name: "byDeviceId", Props: []string{"deviceId"}},
			{Name: "byActive", Props: []string{"active"}},
		},
		NoQuota: true,
	}
}

// Time returns Timestamp as a time.
func (info *Info) Time() time.Time { return time.UnixMicro(info.Timestamp) }

// Kinds returns the kinds touched by the shard.
func (info *Info) Kinds() []string {
	if info.KindIDs == "" {
		return nil
	}
	return strings.Split(info.KindIDs, ",")
}

// HasKind returns whether kind is in the kind set.
func (info *Info) HasKind(kind string) bool {
	for _, k := range info.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// setKind adds kind to the kind set, or removes it when link is false.
func (info *Info) setKind(kind string, link bool) {
	names := info.Kinds()
	if link {
		info.SetKinds(append(names, kind))
		return
	}
	kept := names[:0]
	for _, name := range names {
		if name != kind {
			kept = append(kept, name)
		}
	}
	info.SetKinds(kept)
}

// SetKinds replaces the kind set.
func (info *Info) SetKinds(names []string) {
	set := map[string]struct{}{}
	for _, name := range names {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(set))
	for name := range set {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	info.KindIDs = strings.Join(sorted, ",")
}

func (info *Info) object() (document.Object, error) {
	obj, err := document.FromValue(info)
	if err != nil {
		return nil, err
	}
	obj[document.FieldKind] = kinds.ShardKind
	return obj, nil
}

func infoFromObject(obj document.Object) (Info, error) {
	var info Info
	if err := document.Decode(obj, &info); err != nil {
		return Info{}, docerr.InvalidObject.Wrap(err)
	}
	return info, nil
}
