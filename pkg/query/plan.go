// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package query

import (
	"bytes"
)

// Index is a secondary index definition.
type Index struct {
	Name  string   `json:"name"`
	Props []string `json:"props"`
}

// Plan describes a scan over one index. Keys are relative to the start of
// the index, i.e. they begin with the encoded tuple.
type Plan struct {
	Index string
	// Prefix is shared by every candidate entry.
	Prefix []byte
	// Lower is the inclusive start, nil meaning Prefix.
	Lower []byte
	// Upper is the exclusive end, nil meaning the end of Prefix.
	Upper []byte
}

// Contains returns whether the relative index key is inside the plan.
func (plan *Plan) Contains(key []byte) bool {
	if !bytes.HasPrefix(key, plan.Prefix) {
		return false
	}
	if plan.Lower != nil && bytes.Compare(key, plan.Lower) < 0 {
		return false
	}
	return plan.Upper == nil || bytes.Compare(key, plan.Upper) < 0
}

// Done returns whether a forward scan can stop at key.
func (plan *Plan) Done(key []byte) bool {
	if !bytes.HasPrefix(key, plan.Prefix) {
		return true
	}
	return plan.Upper != nil && bytes.Compare(key, plan.Upper) >= 0
}

// Choose picks the index that narrows q the most. Leading equality
// predicates count twice as much as a range on the following property.
// It returns nil when no index helps, and the caller scans the whole kind.
// The plan only narrows the candidates: every candidate still has to pass
// q.Match.
func Choose(q Query, indexes []Index) *Plan {
	if q.IncludeDeleted {
		return nil
	}

	var best *Plan
	bestScore := 0
	for _, index := range indexes {
		plan, score := planIndex(q, index)
		if score > bestScore {
			best, bestScore = plan, score
		}
	}
	return best
}

func planIndex(q Query, index Index) (*Plan, int) {
	plan := &Plan{Index: index.Name}
	score := 0

	for _, prop := range index.Props {
		if eq, ok := find(q.Where, prop, Eq); ok {
			plan.Prefix = AppendValue(plan.Prefix, eq.Value)
			score += 2
			continue
		}

		for _, where := range q.Where {
			if where.Prop != prop {
				continue
			}
			encoded := AppendValue(append([]byte(nil), plan.Prefix...), where.Value)
			switch where.Op {
			case Gt:
				plan.Lower = maxKey(plan.Lower, after(encoded))
			case Ge:
				plan.Lower = maxKey(plan.Lower, encoded)
			case Lt:
				plan.Upper = minKey(plan.Upper, encoded)
			case Le:
				plan.Upper = minKey(plan.Upper, after(encoded))
			default:
				continue
			}
			if score%2 == 0 {
				score++
			}
		}
		break
	}
	return plan, score
}

func find(wheres []Where, prop string, op Op) (Where, bool) {
	for _, where := range wheres {
		if where.Prop == prop && where.Op == op {
			return where, true
		}
	}
	return Where{}, false
}

// after returns the smallest key greater than every key starting with prefix.
func after(prefix []byte) []byte {
	result := append([]byte(nil), prefix...)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] != 0xff {
			result[i]++
			return result[:i+1]
		}
	}
	return nil
}

func maxKey(a, b []byte) []byte {
	if a == nil || bytes.Compare(b, a) > 0 {
		return b
	}
	return a
}

func minKey(a, b []byte) []byte {
	if b == nil {
		return a
	}
	if a == nil || bytes.Compare(b, a) < 0 {
		return b
	}
	return a
}
