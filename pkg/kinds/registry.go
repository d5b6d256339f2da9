// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package kinds

import (
	"sort"
	"strings"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
)

// Registry maps kind names to compiled kinds.
//
// Registry does no locking of its own. The database mutates it only while
// holding its schema lock in write mode.
type Registry struct {
	kinds map[string]*Compiled
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: map[string]*Compiled{}}
}

// Lookup returns the kind called name.
func (registry *Registry) Lookup(name string) (*Compiled, error) {
	compiled, ok := registry.kinds[name]
	if !ok {
		return nil, docerr.KindNotRegistered.New("%q", name)
	}
	return compiled, nil
}

// Set adds or replaces a kind. Every kind it extends must be registered and
// the inheritance graph must stay acyclic.
func (registry *Registry) Set(compiled *Compiled) error {
	for _, super := range compiled.Extends {
		if _, ok := registry.kinds[super]; !ok {
			return docerr.KindNotRegistered.New("%q extends %q", compiled.Name, super)
		}
	}

	previous, existed := registry.kinds[compiled.Name]
	registry.kinds[compiled.Name] = compiled
	if _, err := registry.Supers(compiled.Name); err != nil {
		if existed {
			registry.kinds[compiled.Name] = previous
		} else {
			delete(registry.kinds, compiled.Name)
		}
		return err
	}
	return nil
}

// Remove removes a kind that no other kind extends.
func (registry *Registry) Remove(name string) error {
	if _, ok := registry.kinds[name]; !ok {
		return docerr.KindNotRegistered.New("%q", name)
	}
	for _, other := range registry.kinds {
		for _, super := range other.Extends {
			if super == name {
				return docerr.KindHasSubKinds.New("%q is extended by %q", name, other.Name)
			}
		}
	}
	delete(registry.kinds, name)
	return nil
}

// Supers returns every kind name extends, directly or not, in breadth first order.
func (registry *Registry) Supers(name string) ([]string, error) {
	var result []string
	seen := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		compiled, ok := registry.kinds[current]
		if !ok {
			return nil, docerr.KindNotRegistered.New("%q", current)
		}
		for _, super := range compiled.Extends {
			if super == name {
				return nil, docerr.InvalidObject.New("kind %q: inheritance cycle through %q", name, current)
			}
			if seen[super] {
				continue
			}
			seen[super] = true
			result = append(result, super)
			queue = append(queue, super)
		}
	}
	return result, nil
}

// SubKinds returns the sorted names of every kind that extends name, directly or not.
func (registry *Registry) SubKinds(name string) []string {
	var result []string
	for other := range registry.kinds {
		if other == name {
			continue
		}
		supers, err := registry.Supers(other)
		if err != nil {
			continue
		}
		for _, super := range supers {
			if super == name {
				result = append(result, other)
				break
			}
		}
	}
	sort.Strings(result)
	return result
}

// All returns every kind sorted by name.
func (registry *Registry) All() []*Compiled {
	result := make([]*Compiled, 0, len(registry.kinds))
	for _, compiled := range registry.kinds {
		result = append(result, compiled)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result
}

// Validate checks obj against the schema of its kind and of every kind it extends.
func (registry *Registry) Validate(compiled *Compiled, obj document.Object) error {
	supers, err := registry.Supers(compiled.Name)
	if err != nil {
		return err
	}

	chain := []*Compiled{compiled}
	for _, super := range supers {
		chain = append(chain, registry.kinds[super])
	}

	markers := map[string]bool{}
	for _, kind := range chain {
		for _, set := range kind.revsets {
			markers[set.Name()] = true
		}
	}

	payload := make(map[string]any, len(obj))
	for key, value := range obj {
		if strings.HasPrefix(key, "_") || markers[key] {
			continue
		}
		payload[key] = value
	}

	for _, kind := range chain {
		if err := kind.validate(payload); err != nil {
			return err
		}
	}
	return nil
}
