package docstore

import (
	"cmp"
	"slices"
	"strings"
)

type Op string

const (
	OpEqual        Op = "=="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection. The zero OrderBy keeps backend
// order.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(slices.Clone(q.Filters), Filter{Field: field, Op: op, Value: value})
	return q
}

// Order returns a copy of q ordered by field.
func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending

	return q
}

// Matches evaluates every filter of q against d.
func (q Query) Matches(d Data) bool {
	for _, f := range q.Filters {
		v, ok := d[f.Field]
		if !ok {
			return false
		}

		c, comparable := Compare(v, f.Value)
		if !comparable {
			return false
		}

		switch f.Op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterEqual:
			if c < 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessEqual:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// Sort orders docs in place according to q and applies the limit.
func (q Query) Sort(docs []Document) []Document {
	if q.OrderBy != "" {
		slices.SortStableFunc(docs, func(a, b Document) int {
			c, _ := Compare(a.Data[q.OrderBy], b.Data[q.OrderBy])
			if q.Descending {
				c = -c
			}

			if c == 0 {
				return strings.Compare(a.ID, b.ID)
			}

			return c
		})
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	return docs
}

// Compare orders two field values of the same kind. The second result is
// false when the values cannot be compared.
func Compare(a, b any) (int, bool) {
	if ta, ok := AsTime(a); ok {
		if tb, ok := AsTime(b); ok {
			return ta.Compare(tb), true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}

		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}

		if av == bv {
			return 0, true
		}

		if !av {
			return -1, true
		}

		return 1, true
	case float64, float32, int, int32, int64:
		switch b.(type) {
		case float64, float32, int, int32, int64:
			return cmp.Compare(AsFloat(a), AsFloat(b)), true
		}
	}

	return 0, false
}
