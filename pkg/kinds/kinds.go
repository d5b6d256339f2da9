// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package kinds implements kind records: the schema, indexes, revision sets
// and permission rules that govern a class of documents.
package kinds

import (
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/query"
	"storj.io/docstore/pkg/revset"
	"storj.io/docstore/pkg/rules"
)

// Error is the default kinds errs class.
var Error = errs.Class("kinds")

// Reserved kinds.
const (
	// KindKind is the kind of kind records.
	KindKind = "Kind:1"
	// ShardKind is the kind of shard records.
	ShardKind = "ShardInfo:1"
)

// RecordPrefix prefixes the ids of kind records.
const RecordPrefix = "_kinds/"

var (
	nameRegexp  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*(:[0-9]+)?$`)
	indexRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// Kind is a kind definition as stored in its record.
type Kind struct {
	Name    string              `json:"name"`
	Owner   string              `json:"owner,omitempty"`
	Extends []string            `json:"extends,omitempty"`
	Schema  map[string]any      `json:"schema,omitempty"`
	Indexes []query.Index       `json:"indexes,omitempty"`
	RevSets []revset.Definition `json:"revSets,omitempty"`
	Rules   map[string]string   `json:"rules,omitempty"`
	NoQuota bool                `json:"noQuota,omitempty"`
}

// IsReserved returns whether name is one of the built-in kinds.
func IsReserved(name string) bool {
	return name == KindKind || name == ShardKind
}

// RecordID returns the id of the record describing kind name.
func RecordID(name string) string { return RecordPrefix + name }

// IsRecordID returns whether id names a kind record.
func IsRecordID(id string) bool { return strings.HasPrefix(id, RecordPrefix) }

// Object returns the kind record.
func (kind Kind) Object() (document.Object, error) {
	obj, err := document.FromValue(kind)
	if err != nil {
		return nil, err
	}
	obj[document.FieldID] = RecordID(kind.Name)
	obj[document.FieldKind] = KindKind
	return obj, nil
}

// FromObject decodes a kind record.
func FromObject(obj document.Object) (Kind, error) {
	var kind Kind
	if err := document.Decode(obj, &kind); err != nil {
		return Kind{}, docerr.InvalidObject.Wrap(err)
	}
	return kind, nil
}

// Compiled is a validated kind ready for use by the database.
type Compiled struct {
	Kind

	schema  *gojsonschema.Schema
	revsets []*revset.Set
}

// Compile validates kind and compiles its schema, revision sets and rules.
func Compile(kind Kind, engine *rules.Engine) (*Compiled, error) {
	if !nameRegexp.MatchString(kind.Name) {
		return nil, docerr.InvalidObject.New("kind name %q", kind.Name)
	}
	for _, super := range kind.Extends {
		if super == kind.Name {
			return nil, docerr.InvalidObject.New("kind %q extends itself", kind.Name)
		}
	}

	compiled := &Compiled{Kind: kind}

	if len(kind.Schema) > 0 {
		text := document.Canonical(kind.Schema)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			return nil, docerr.InvalidObject.New("kind %q: schema: %v", kind.Name, err)
		}
		compiled.schema = schema
	}

	names := map[string]bool{}
	for _, index := range kind.Indexes {
		if !indexRegexp.MatchString(index.Name) || names[index.Name] || len(index.Props) == 0 {
			return nil, docerr.InvalidObject.New("kind %q: invalid index %q", kind.Name, index.Name)
		}
		names[index.Name] = true
		for _, prop := range index.Props {
			if !query.ValidProp(prop) {
				return nil, docerr.InvalidObject.New("kind %q: index %q: invalid property %q", kind.Name, index.Name, prop)
			}
		}
	}

	for _, def := range kind.RevSets {
		if strings.HasPrefix(def.Name, "_") {
			return nil, docerr.InvalidObject.New("kind %q: revision set %q is reserved", kind.Name, def.Name)
		}
		set, err := revset.New(def)
		if err != nil {
			return nil, err
		}
		compiled.revsets = append(compiled.revsets, set)
	}

	for op, expression := range kind.Rules {
		switch op {
		case rules.OpRead, rules.OpWrite, rules.OpDelete:
		default:
			return nil, docerr.InvalidObject.New("kind %q: unknown rule %q", kind.Name, op)
		}
		if engine == nil {
			continue
		}
		if err := engine.Compile(expression); err != nil {
			return nil, err
		}
	}

	return compiled, nil
}

// RevSets returns the compiled revision sets.
func (compiled *Compiled) RevSets() []*revset.Set { return compiled.revsets }

// Index returns the index definition called name.
func (compiled *Compiled) Index(name string) (query.Index, bool) {
	for _, index := range compiled.Indexes {
		if index.Name == name {
			return index, true
		}
	}
	return query.Index{}, false
}

// validate checks the payload of an object, i.e. without reserved properties
// and revision markers, against the schema.
func (compiled *Compiled) validate(payload map[string]any) error {
	if compiled.schema == nil {
		return nil
	}

	result, err := compiled.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return docerr.InvalidObject.New("kind %q: %v", compiled.Name, err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return docerr.InvalidObject.New("kind %q: %s", compiled.Name, strings.Join(problems, "; "))
}
