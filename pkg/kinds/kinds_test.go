// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package kinds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/pkg/revset"
	"storj.io/docstore/pkg/rules"
)

func compile(t *testing.T, kind kinds.Kind) *kinds.Compiled {
	t.Helper()
	compiled, err := kinds.Compile(kind, nil)
	require.NoError(t, err)
	return compiled
}

func TestCompile(t *testing.T) {
	engine, err := rules.NewEngine()
	require.NoError(t, err)

	good := kinds.Kind{
		Name:    "Contact:1",
		Schema:  map[string]any{"type": "object"},
		Indexes: []query.Index{{Name: "byName", Props: []string{"name"}}},
		RevSets: []revset.Definition{{Name: "nameRev", Props: []string{"name"}}},
		Rules:   map[string]string{rules.OpWrite: `caller.domain == "contacts"`},
	}
	compiled, err := kinds.Compile(good, engine)
	require.NoError(t, err)
	require.Len(t, compiled.RevSets(), 1)
	index, ok := compiled.Index("byName")
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, index.Props)

	for name, kind := range map[string]kinds.Kind{
		"name":         {Name: "1bad"},
		"extends self": {Name: "A", Extends: []string{"A"}},
		"schema":       {Name: "A", Schema: map[string]any{"type": 5}},
		"index":        {Name: "A", Indexes: []query.Index{{Name: "x"}}},
		"index prop":   {Name: "A", Indexes: []query.Index{{Name: "x", Props: []string{"a..b"}}}},
		"index name":   {Name: "A", Indexes: []query.Index{{Name: "x/y", Props: []string{"a"}}}},
		"revset":       {Name: "A", RevSets: []revset.Definition{{Name: "_rev", Props: []string{"a"}}}},
		"rule op":      {Name: "A", Rules: map[string]string{"drop": "true"}},
		"rule":         {Name: "A", Rules: map[string]string{rules.OpRead: "caller.("}},
	} {
		_, err := kinds.Compile(kind, engine)
		require.Error(t, err, name)
		assert.True(t, docerr.InvalidObject.Has(err), name)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	kind := kinds.Kind{
		Name:    "Note:1",
		Owner:   "notes",
		Indexes: []query.Index{{Name: "byTitle", Props: []string{"title"}}},
		NoQuota: true,
	}
	obj, err := kind.Object()
	require.NoError(t, err)
	assert.Equal(t, "_kinds/Note:1", obj.ID())
	assert.Equal(t, kinds.KindKind, obj.Kind())
	assert.True(t, kinds.IsRecordID(obj.ID()))

	obj.SetRev(7)
	decoded, err := kinds.FromObject(obj)
	require.NoError(t, err)
	assert.Equal(t, kind, decoded)
}

func TestRegistry(t *testing.T) {
	registry := kinds.NewRegistry()

	_, err := registry.Lookup("Base")
	assert.True(t, docerr.KindNotRegistered.Has(err))

	err = registry.Set(compile(t, kinds.Kind{Name: "Child", Extends: []string{"Base"}}))
	assert.True(t, docerr.KindNotRegistered.Has(err))

	require.NoError(t, registry.Set(compile(t, kinds.Kind{Name: "Base"})))
	require.NoError(t, registry.Set(compile(t, kinds.Kind{Name: "Child", Extends: []string{"Base"}})))
	require.NoError(t, registry.Set(compile(t, kinds.Kind{Name: "GrandChild", Extends: []string{"Child"}})))

	supers, err := registry.Supers("GrandChild")
	require.NoError(t, err)
	assert.Equal(t, []string{"Child", "Base"}, supers)
	assert.Equal(t, []string{"Child", "GrandChild"}, registry.SubKinds("Base"))

	// redefining Base to extend GrandChild would create a cycle.
	err = registry.Set(compile(t, kinds.Kind{Name: "Base", Extends: []string{"GrandChild"}}))
	require.Error(t, err)
	base, err := registry.Lookup("Base")
	require.NoError(t, err)
	assert.Empty(t, base.Extends)

	err = registry.Remove("Base")
	assert.True(t, docerr.KindHasSubKinds.Has(err))
	require.NoError(t, registry.Remove("GrandChild"))
	require.NoError(t, registry.Remove("Child"))
	require.NoError(t, registry.Remove("Base"))
	assert.Empty(t, registry.All())
}

func TestValidate(t *testing.T) {
	registry := kinds.NewRegistry()
	require.NoError(t, registry.Set(compile(t, kinds.Kind{
		Name: "Base",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
		},
	})))
	child := compile(t, kinds.Kind{
		Name:    "Child",
		Extends: []string{"Base"},
		Schema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"name": map[string]any{"type": "string"}, "age": map[string]any{"type": "integer"}},
			"additionalProperties": false,
		},
		RevSets: []revset.Definition{{Name: "ageRev", Props: []string{"age"}}},
	})
	require.NoError(t, registry.Set(child))

	parse := func(data string) document.Object {
		obj, err := document.Parse([]byte(data))
		require.NoError(t, err)
		return obj
	}

	// reserved properties and revision markers are not part of the payload.
	require.NoError(t, registry.Validate(child, parse(`{"_id":"x","_rev":3,"ageRev":3,"name":"a","age":4}`)))

	err := registry.Validate(child, parse(`{"age":4}`))
	assert.True(t, docerr.InvalidObject.Has(err), "super schema requires name")

	err = registry.Validate(child, parse(`{"name":"a","age":"old"}`))
	assert.True(t, docerr.InvalidObject.Has(err))

	err = registry.Validate(child, parse(`{"name":"a","extra":true}`))
	assert.True(t, docerr.InvalidObject.Has(err))
}
