// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package document_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
)

func sequence() func() string {
	next := 0
	return func() string {
		next++
		return fmt.Sprintf("e%d", next)
	}
}

func TestParse(t *testing.T) {
	obj, err := document.Parse([]byte(`{"_id":"abc","_rev":12,"n":1.5,"big":9007199254740993,"nested":{"list":[1,"x",null,true]}}`))
	require.NoError(t, err)

	require.Equal(t, "abc", obj.ID())
	rev, ok := obj.Rev()
	require.True(t, ok)
	require.Equal(t, int64(12), rev)
	require.Equal(t, 1.5, obj["n"])
	require.Equal(t, int64(9007199254740993), obj["big"])

	want := map[string]any{"list": []any{int64(1), "x", nil, true}}
	if diff := cmp.Diff(want, obj["nested"]); diff != "" {
		t.Fatal(diff)
	}

	_, err = document.Parse([]byte(`[1,2]`))
	require.True(t, docerr.InvalidObject.Has(err), err)
	_, err = document.Parse([]byte(`null`))
	require.True(t, docerr.InvalidObject.Has(err), err)
}

func TestMarshalSorted(t *testing.T) {
	obj := document.Object{"b": int64(1), "a": map[string]any{"z": true, "y": nil}}
	data, err := obj.Marshal()
	require.NoError(t, err)
	require.Equal(t, `{"a":{"y":null,"z":true},"b":1}`, string(data))
}

func TestFromValue(t *testing.T) {
	type shard struct {
		ShardID int32  `json:"shardId"`
		Active  bool   `json:"active"`
		Name    string `json:"deviceName"`
	}
	obj, err := document.FromValue(shard{ShardID: 7, Active: true, Name: "usb"})
	require.NoError(t, err)
	require.Equal(t, document.Object{"shardId": int64(7), "active": true, "deviceName": "usb"}, obj)

	var back shard
	require.NoError(t, document.Decode(obj, &back))
	require.Equal(t, shard{ShardID: 7, Active: true, Name: "usb"}, back)
}

func TestClone(t *testing.T) {
	obj := document.Object{"list": []any{map[string]any{"a": int64(1)}}}
	copied := obj.Clone()
	copied["list"].([]any)[0].(map[string]any)["a"] = int64(2)
	require.Equal(t, int64(1), obj["list"].([]any)[0].(map[string]any)["a"])
}

func TestValues(t *testing.T) {
	obj, err := document.Parse([]byte(`{
		"name": "n",
		"tags": ["a", "b"],
		"items": [{"sku": 1, "dims": {"w": 2}}, {"sku": 3}],
		"deep": [[{"x": 1}], [{"x": 2}]]
	}`))
	require.NoError(t, err)

	require.Equal(t, []any{"n"}, document.Values(obj, []string{"name"}))
	require.Equal(t, []any{"a", "b"}, document.Values(obj, []string{"tags"}))
	require.Equal(t, []any{int64(1), int64(3)}, document.Values(obj, []string{"items", "sku"}))
	require.Equal(t, []any{int64(2)}, document.Values(obj, []string{"items", "dims", "w"}))
	require.Equal(t, []any{int64(1), int64(2)}, document.Values(obj, []string{"deep", "x"}))
	require.Empty(t, document.Values(obj, []string{"missing"}))

	require.Equal(t, document.ValueSet([]any{"b", "a"}), document.ValueSet([]any{"a", "b", "a"}))
}

func TestMergeObjects(t *testing.T) {
	base := document.Object{"_id": "x", "_rev": int64(3), "a": int64(1), "nested": map[string]any{"keep": true, "change": "old"}}
	patch := document.Object{"_id": "y", "_rev": int64(99), "b": nil, "nested": map[string]any{"change": "new"}}

	merged := document.Merge(base, patch, sequence())
	want := document.Object{
		"_id": "x", "_rev": int64(3),
		"a":      int64(1),
		"b":      nil,
		"nested": map[string]any{"keep": true, "change": "new"},
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatal(diff)
	}
	// base is untouched
	require.Equal(t, "old", base["nested"].(map[string]any)["change"])
}

func TestMergeArrayNonAdditive(t *testing.T) {
	eids := sequence()
	patch := document.Object{"items": []any{
		map[string]any{"sku": int64(1)},
		map[string]any{"sku": int64(2)},
	}}

	once := document.Merge(document.Object{}, patch, eids)
	twice := document.Merge(once, patch, eids)

	require.Len(t, once["items"], 2)
	require.Len(t, twice["items"], 2)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatal(diff)
	}
}

func TestMergeArrayByElementID(t *testing.T) {
	eids := sequence()
	base := document.Object{"items": []any{
		map[string]any{"_eid": "a", "sku": int64(1), "qty": int64(5)},
		map[string]any{"_eid": "b", "sku": int64(2), "qty": int64(1)},
	}}

	patch := document.Object{"items": []any{
		map[string]any{"_eid": "b", "qty": int64(7)},
		map[string]any{"sku": int64(3)},
	}}

	merged := document.Merge(base, patch, eids)
	want := []any{
		map[string]any{"_eid": "b", "sku": int64(2), "qty": int64(7)},
		map[string]any{"_eid": "e1", "sku": int64(3)},
	}
	if diff := cmp.Diff(want, merged["items"]); diff != "" {
		t.Fatal(diff)
	}
}

func TestAssignElementIDs(t *testing.T) {
	obj := document.Object{
		"items":  []any{map[string]any{"sku": int64(1)}, map[string]any{"_eid": "kept"}, "scalar"},
		"nested": map[string]any{"list": []any{map[string]any{}}},
	}
	document.AssignElementIDs(obj, sequence())

	items := obj["items"].([]any)
	first := items[0].(map[string]any)["_eid"]
	require.NotEmpty(t, first)
	require.Equal(t, "kept", items[1].(map[string]any)["_eid"])
	require.Equal(t, "scalar", items[2])

	nested := obj["nested"].(map[string]any)["list"].([]any)[0].(map[string]any)["_eid"]
	require.NotEmpty(t, nested)
	require.NotEqual(t, first, nested)
}
