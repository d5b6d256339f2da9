// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package revset maintains revision markers for groups of object properties.
//
// A revision set named N over properties P stores, in property N of every
// object, the _rev of the last write that changed any value reachable
// through P. Sync clients query N > R to find what changed in that group
// since revision R without diffing whole documents.
package revset

import (
	"regexp"
	"strings"

	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
)

// Error is the default revset errs class.
var Error = errs.Class("revset")

var nameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Definition describes a revision set.
type Definition struct {
	Name  string   `json:"name"`
	Props []string `json:"props"`
}

// Set is a compiled revision set.
type Set struct {
	name  string
	paths [][]string
}

// New compiles a definition.
func New(def Definition) (*Set, error) {
	if !nameRegexp.MatchString(def.Name) {
		return nil, docerr.InvalidObject.New("revision set name %q", def.Name)
	}
	if len(def.Props) == 0 {
		return nil, docerr.InvalidObject.New("revision set %q has no properties", def.Name)
	}

	set := &Set{name: def.Name}
	for _, prop := range def.Props {
		path := strings.Split(prop, ".")
		for _, part := range path {
			if part == "" {
				return nil, docerr.InvalidObject.New("revision set %q: invalid path %q", def.Name, prop)
			}
		}
		set.paths = append(set.paths, path)
	}
	return set, nil
}

// Name returns the name of the marker property.
func (set *Set) Name() string { return set.name }

// Update sets the marker of newObj. It must be called after the revision of
// newObj has been assigned. oldObj is nil for the first write of an object.
// It returns whether the marker moved to the new revision.
func (set *Set) Update(newObj, oldObj document.Object) bool {
	rev, ok := newObj.Rev()
	if !ok {
		return false
	}

	if oldObj != nil {
		previous, hasMarker := document.Int(oldObj[set.name])
		if hasMarker && !set.changed(newObj, oldObj) {
			newObj[set.name] = previous
			return false
		}
	}

	newObj[set.name] = rev
	return true
}

// Mark sets the marker to the current revision unconditionally.
func (set *Set) Mark(obj document.Object) {
	if rev, ok := obj.Rev(); ok {
		obj[set.name] = rev
	}
}

func (set *Set) changed(newObj, oldObj document.Object) bool {
	for _, path := range set.paths {
		before := document.ValueSet(document.Values(oldObj, path))
		after := document.ValueSet(document.Values(newObj, path))
		if len(before) != len(after) {
			return true
		}
		for i := range before {
			if before[i] != after[i] {
				return true
			}
		}
	}
	return false
}
