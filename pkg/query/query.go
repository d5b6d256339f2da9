// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package query implements the minimal predicate and index selection used by
// database.Find.
package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/errs"

	"storj.io/docstore/pkg/docerr"
	"storj.io/docstore/pkg/document"
)

// Error is the default query errs class.
var Error = errs.Class("query")

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	Eq Op = "=="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

// Where is a single predicate on a dotted property path.
type Where struct {
	Prop  string
	Op    Op
	Value any
}

// Query selects objects of one kind.
type Query struct {
	Kind  string
	Where []Where

	OrderBy string
	Desc    bool
	// Limit of zero means no limit.
	Limit int

	// IncludeDeleted returns tombstones as well.
	IncludeDeleted bool
	// ExcludeSubKinds restricts the query to Kind itself.
	ExcludeSubKinds bool
}

var propRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidProp returns whether prop is a well formed dotted property path.
func ValidProp(prop string) bool { return propRegexp.MatchString(prop) }

// Validate checks that the query is well formed.
func (q Query) Validate() error {
	if q.Kind == "" {
		return docerr.InvalidObject.New("query without kind")
	}
	if q.Limit < 0 {
		return docerr.InvalidObject.New("negative limit")
	}
	for _, where := range q.Where {
		if !propRegexp.MatchString(where.Prop) {
			return docerr.InvalidObject.New("invalid property %q", where.Prop)
		}
		switch where.Op {
		case Eq, Ne, Lt, Le, Gt, Ge:
		default:
			return docerr.InvalidObject.New("invalid operator %q", where.Op)
		}
	}
	if q.OrderBy != "" && !propRegexp.MatchString(q.OrderBy) {
		return docerr.InvalidObject.New("invalid order property %q", q.OrderBy)
	}
	return nil
}

// Path splits a dotted property into its parts.
func Path(prop string) []string { return strings.Split(prop, ".") }

func values(obj document.Object, prop string) []any {
	vals := document.Values(obj, Path(prop))
	if len(vals) == 0 {
		return []any{nil}
	}
	return vals
}

// Match returns whether obj satisfies where. When the path reaches several
// values, any of them may satisfy the predicate, except for Ne which requires
// that none is equal.
func (where Where) Match(obj document.Object) bool {
	vals := values(obj, where.Prop)
	if where.Op == Ne {
		for _, v := range vals {
			if Compare(v, where.Value) == 0 {
				return false
			}
		}
		return true
	}
	for _, v := range vals {
		if compareOp(v, where.Op, where.Value) {
			return true
		}
	}
	return false
}

func compareOp(v any, op Op, value any) bool {
	c := Compare(v, value)
	switch op {
	case Eq:
		return c == 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	}
	return false
}

// Match returns whether obj satisfies every predicate of q.
func (q Query) Match(obj document.Object) bool {
	if obj.Deleted() && !q.IncludeDeleted {
		return false
	}
	for _, where := range q.Where {
		if !where.Match(obj) {
			return false
		}
	}
	return true
}

// Sort orders objs by q.OrderBy, falling back to _id for ties, and applies the limit.
func (q Query) Sort(objs []document.Object) []document.Object {
	if q.OrderBy != "" {
		sort.SliceStable(objs, func(i, k int) bool {
			c := Compare(first(objs[i], q.OrderBy), first(objs[k], q.OrderBy))
			if c == 0 {
				c = strings.Compare(objs[i].ID(), objs[k].ID())
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(objs) > q.Limit {
		objs = objs[:q.Limit]
	}
	return objs
}

func first(obj document.Object, prop string) any {
	return values(obj, prop)[0]
}

// Compare orders JSON values: null < false < true < numbers < strings < others.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNumber:
		ia, aInt := a.(int64)
		ib, bInt := b.(int64)
		if aInt && bInt {
			return cmpOrdered(ia, ib)
		}
		return cmpOrdered(toFloat(a), toFloat(b))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankOther:
		return strings.Compare(document.Canonical(a), document.Canonical(b))
	}
	return 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

const (
	rankNull = iota
	rankFalse
	rankTrue
	rankNumber
	rankString
	rankOther
)

func rank(v any) int {
	switch v := v.(type) {
	case nil:
		return rankNull
	case bool:
		if v {
			return rankTrue
		}
		return rankFalse
	case int64, int, int32, uint32, float64:
		return rankNumber
	case string:
		return rankString
	default:
		return rankOther
	}
}

func toFloat(v any) float64 {
	switch v := v.(type) {
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case uint32:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
