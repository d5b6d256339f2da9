// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package document

// Merge applies patch onto a copy of base and returns the result.
//
// Nested objects merge property by property; properties missing from the
// patch are kept and explicit nulls are stored as null. Arrays are replaced
// by the patch's elements in patch order. An object element whose _eid names
// an element of the base array, or that equals one of them apart from _eid,
// is merged into that element. Every other object element is inserted as new
// with a fresh _eid. Base elements absent from the patch are dropped, so
// merging the same array twice never grows it.
//
// Reserved properties of the top level object are not touched.
func Merge(base, patch Object, newEID func() string) Object {
	result := base.Clone()
	if result == nil {
		result = Object{}
	}
	for key, value := range patch {
		switch key {
		case FieldID, FieldKind, FieldRev, FieldDel:
			continue
		}
		result[key] = mergeValue(result[key], value, newEID)
	}
	return result
}

func mergeValue(base, patch any, newEID func() string) any {
	switch patch := patch.(type) {
	case map[string]any:
		baseMap, ok := base.(map[string]any)
		if !ok {
			return assignEIDs(clone(patch), newEID)
		}
		for key, value := range patch {
			baseMap[key] = mergeValue(baseMap[key], value, newEID)
		}
		return baseMap
	case []any:
		baseList, _ := base.([]any)
		return mergeArray(baseList, patch, newEID)
	default:
		return clone(patch)
	}
}

func mergeArray(base, patch []any, newEID func() string) []any {
	byEID := map[string]map[string]any{}
	for _, elem := range base {
		if m, ok := elem.(map[string]any); ok {
			if eid, ok := m[FieldEID].(string); ok && eid != "" {
				byEID[eid] = m
			}
		}
	}
	claimed := map[string]bool{}

	result := make([]any, 0, len(patch))
	for _, elem := range patch {
		m, ok := elem.(map[string]any)
		if !ok {
			result = append(result, assignEIDs(clone(elem), newEID))
			continue
		}

		if eid, ok := m[FieldEID].(string); ok && eid != "" && !claimed[eid] {
			if existing, found := byEID[eid]; found {
				claimed[eid] = true
				merged := cloneMap(existing)
				for key, value := range m {
					merged[key] = mergeValue(merged[key], value, newEID)
				}
				result = append(result, merged)
				continue
			}
		}

		if eid := matchElement(base, m, claimed); eid != "" {
			claimed[eid] = true
			result = append(result, cloneMap(byEID[eid]))
			continue
		}

		fresh := assignEIDs(clone(m), newEID).(map[string]any)
		if eid, ok := fresh[FieldEID].(string); !ok || eid == "" || claimed[eid] || byEID[eid] != nil {
			fresh[FieldEID] = newEID()
		}
		claimed[fresh[FieldEID].(string)] = true
		result = append(result, fresh)
	}
	return result
}

// matchElement finds an unclaimed base element equal to elem ignoring _eid.
func matchElement(base []any, elem map[string]any, claimed map[string]bool) string {
	if _, hasEID := elem[FieldEID]; hasEID {
		return ""
	}
	want := Canonical(elem)
	for _, candidate := range base {
		m, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		eid, _ := m[FieldEID].(string)
		if eid == "" || claimed[eid] {
			continue
		}
		stripped := cloneMap(m)
		delete(stripped, FieldEID)
		if Canonical(stripped) == want {
			return eid
		}
	}
	return ""
}

// AssignElementIDs gives every object element of every array inside obj an
// _eid if it does not have one yet.
func AssignElementIDs(obj Object, newEID func() string) {
	for key, value := range obj {
		obj[key] = assignEIDs(value, newEID)
	}
}

func assignEIDs(v any, newEID func() string) any {
	switch v := v.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = assignEIDs(value, newEID)
		}
		return v
	case []any:
		for i, elem := range v {
			if m, ok := elem.(map[string]any); ok {
				if eid, ok := m[FieldEID].(string); !ok || eid == "" {
					m[FieldEID] = newEID()
				}
			}
			v[i] = assignEIDs(elem, newEID)
		}
		return v
	default:
		return v
	}
}
