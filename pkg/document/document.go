// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package document implements the in-memory JSON tree stored by the database.
//
// Values inside an Object are limited to nil, bool, int64, float64, string,
// []any and map[string]any. Parse and FromValue produce trees of that shape.
package document

import (
	"encoding/json"
	"math"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
)

// Error is the default document errs class.
var Error = errs.Class("document")

// Reserved properties.
const (
	FieldID   = "_id"
	FieldKind = "_kind"
	FieldRev  = "_rev"
	FieldDel  = "_del"
	// FieldEID identifies an object element inside an array.
	FieldEID = "_eid"
)

var codec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Object is a JSON document.
type Object map[string]any

// Parse decodes a JSON object.
func Parse(data []byte) (Object, error) {
	var raw map[string]any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, docerr.InvalidObject.Wrap(err)
	}
	if raw == nil {
		return nil, docerr.InvalidObject.New("not an object")
	}
	return Object(normalizeMap(raw)), nil
}

// FromValue converts any JSON-marshalable value into an Object.
func FromValue(v any) (Object, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, docerr.InvalidObject.Wrap(err)
	}
	return Parse(data)
}

// Decode converts obj into a Go value such as a struct.
func Decode(obj Object, v any) error {
	data, err := codec.Marshal(obj)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(codec.Unmarshal(data, v))
}

// Marshal encodes obj with sorted keys.
func (obj Object) Marshal() ([]byte, error) {
	data, err := codec.Marshal(map[string]any(obj))
	return data, Error.Wrap(err)
}

// ID returns the object id.
func (obj Object) ID() string {
	id, _ := obj[FieldID].(string)
	return id
}

// Kind returns the object kind.
func (obj Object) Kind() string {
	kind, _ := obj[FieldKind].(string)
	return kind
}

// Rev returns the object revision and whether it is set.
func (obj Object) Rev() (int64, bool) {
	return Int(obj[FieldRev])
}

// SetRev sets the object revision.
func (obj Object) SetRev(rev int64) { obj[FieldRev] = rev }

// Deleted returns whether obj is a tombstone.
func (obj Object) Deleted() bool {
	deleted, _ := obj[FieldDel].(bool)
	return deleted
}

// Clone returns a deep copy of obj.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	return Object(cloneMap(obj))
}

// Int converts a JSON number to int64.
func Int(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<63 {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}

func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		return normalizeMap(v)
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	for key, value := range m {
		m[key] = normalize(value)
	}
	return m
}

func clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case Object:
		return cloneMap(v)
	case []any:
		result := make([]any, len(v))
		for i := range v {
			result[i] = clone(v[i])
		}
		return result
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for key, value := range m {
		result[key] = clone(value)
	}
	return result
}

// Canonical returns the canonical JSON encoding of v, used for comparisons.
func Canonical(v any) string {
	if obj, ok := v.(Object); ok {
		v = map[string]any(obj)
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Equal returns whether a and b encode to the same JSON.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

// Values returns every value reachable through a dotted path. Arrays met on
// the way, including at the end of the path, fan out over their elements.
func Values(v any, path []string) []any {
	if len(path) == 0 {
		if list, ok := v.([]any); ok {
			var result []any
			for _, elem := range list {
				result = append(result, Values(elem, nil)...)
			}
			return result
		}
		return []any{v}
	}

	switch v := v.(type) {
	case Object:
		child, ok := v[path[0]]
		if !ok {
			return nil
		}
		return Values(child, path[1:])
	case map[string]any:
		child, ok := v[path[0]]
		if !ok {
			return nil
		}
		return Values(child, path[1:])
	case []any:
		var result []any
		for _, elem := range v {
			result = append(result, Values(elem, path)...)
		}
		return result
	default:
		return nil
	}
}

// ValueSet returns the sorted set of canonical encodings of values.
func ValueSet(values []any) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[Canonical(v)] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for v := range set {
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
