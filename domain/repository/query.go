// Package repository holds the store contract and query options shared by
// every persisted aggregate.
package repository

import "fmt"

// Option applies a modification to a Query.
type Option func(Query) Query

// Operator is the comparison a Condition applies.
type Operator int

// Operator values.
const (
	OpEqual Operator = iota
	OpIn
	OpContains
)

// Query holds conditions, ordering, and pagination for store lookups.
type Query struct {
	conditions []Condition
	orders     []Order
	limit      int
	offset     int
}

// Build creates a Query from a set of options.
func Build(options ...Option) Query {
	q := Query{}
	for _, opt := range options {
		if opt != nil {
			q = opt(q)
		}
	}
	return q
}

// Conditions returns the query conditions.
func (q Query) Conditions() []Condition {
	result := make([]Condition, len(q.conditions))
	copy(result, q.conditions)
	return result
}

// Orders returns the ordering specifications.
func (q Query) Orders() []Order {
	result := make([]Order, len(q.orders))
	copy(result, q.orders)
	return result
}

// LimitValue returns the limit (0 means no limit).
func (q Query) LimitValue() int { return q.limit }

// OffsetValue returns the offset.
func (q Query) OffsetValue() int { return q.offset }

// Value returns the value of the first equality condition on field.
func (q Query) Value(field string) (any, bool) {
	for _, c := range q.conditions {
		if c.field == field && c.op == OpEqual {
			return c.value, true
		}
	}
	return nil, false
}

// Condition is a single filter. A Contains condition may name several fields,
// which are OR-ed together.
type Condition struct {
	field  string
	fields []string
	value  any
	op     Operator
}

// Field returns the condition field name.
func (c Condition) Field() string { return c.field }

// Fields returns every field the condition applies to.
func (c Condition) Fields() []string {
	if len(c.fields) > 0 {
		return c.fields
	}
	return []string{c.field}
}

// Value returns the condition value.
func (c Condition) Value() any { return c.value }

// Operator returns the comparison operator.
func (c Condition) Operator() Operator { return c.op }

// In reports whether this is an IN condition.
func (c Condition) In() bool { return c.op == OpIn }

// String returns a readable representation.
func (c Condition) String() string {
	switch c.op {
	case OpIn:
		return fmt.Sprintf("%s IN %v", c.field, c.value)
	case OpContains:
		return fmt.Sprintf("%v CONTAINS %v", c.Fields(), c.value)
	default:
		return fmt.Sprintf("%s = %v", c.field, c.value)
	}
}

// Order is a sort specification.
type Order struct {
	field     string
	ascending bool
}

// Field returns the order field name.
func (o Order) Field() string { return o.field }

// Ascending returns true for ASC, false for DESC.
func (o Order) Ascending() bool { return o.ascending }

// WithCondition adds a field = value condition.
func WithCondition(field string, value any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, value: value})
		return q
	}
}

// WithConditionIn adds a field IN (values) condition.
func WithConditionIn(field string, values any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, value: values, op: OpIn})
		return q
	}
}

// WithContains adds a case-insensitive substring match over one or more
// fields. An empty needle adds nothing.
func WithContains(needle string, fields ...string) Option {
	return func(q Query) Query {
		if needle == "" || len(fields) == 0 {
			return q
		}
		q.conditions = append(q.conditions, Condition{field: fields[0], fields: fields, value: needle, op: OpContains})
		return q
	}
}

// WithID filters by the "id" column.
func WithID(id int64) Option {
	return WithCondition("id", id)
}

// WithLimit sets the maximum number of results.
func WithLimit(n int) Option {
	return func(q Query) Query {
		q.limit = n
		return q
	}
}

// WithOffset sets the result offset.
func WithOffset(n int) Option {
	return func(q Query) Query {
		q.offset = n
		return q
	}
}

// WithOrderAsc adds ascending ordering on a field.
func WithOrderAsc(field string) Option {
	return func(q Query) Query {
		q.orders = append(q.orders, Order{field: field, ascending: true})
		return q
	}
}

// WithOrderDesc adds descending ordering on a field.
func WithOrderDesc(field string) Option {
	return func(q Query) Query {
		q.orders = append(q.orders, Order{field: field, ascending: false})
		return q
	}
}

// WithPagination returns limit and offset options for a page.
func WithPagination(limit, offset int) []Option {
	return []Option{WithLimit(limit), WithOffset(offset)}
}
