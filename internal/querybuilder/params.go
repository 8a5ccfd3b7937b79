// Package querybuilder compiles structured queries, conditions and DML/DDL
// requests into dialect-specific SQL with named :qpN parameters.
package querybuilder

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"strconv"
)

// ParamPrefix starts every placeholder generated by the builder.
const ParamPrefix = ":qp"

// Params maps placeholder names (":qp0", ":name") to bound values.
type Params map[string]any

// Bind stores value under the next free :qpN placeholder and returns it.
// The counter starts at len(p), so names stay distinct within one build call.
func (p Params) Bind(value any) string {
	n := len(p)
	for {
		name := ParamPrefix + strconv.Itoa(n)
		if _, exists := p[name]; !exists {
			p[name] = value
			return name
		}
		n++
	}
}

// Merge copies other into p. Existing names are overwritten.
func (p Params) Merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// Columns is an insertion-ordered column → value map. Insert, update and
// upsert statements list columns in this order.
type Columns struct {
	names  []string
	values map[string]any
}

// Cols builds Columns from alternating name/value pairs:
//
//	querybuilder.Cols("name", "Sam", "age", 30)
//
// It panics on an odd argument count or a non-string name.
func Cols(pairs ...any) *Columns {
	if len(pairs)%2 != 0 {
		panic("querybuilder.Cols requires name/value pairs")
	}
	c := &Columns{values: make(map[string]any, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("querybuilder.Cols: column name must be a string, got %T", pairs[i]))
		}
		c.Set(name, pairs[i+1])
	}
	return c
}

// ColsFromMap converts a map into Columns with names in sorted order.
func ColsFromMap(m map[string]any) *Columns {
	c := &Columns{values: make(map[string]any, len(m))}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Set(name, m[name])
	}
	return c
}

// Set adds or replaces a column. A replaced column keeps its position.
func (c *Columns) Set(name string, value any) *Columns {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	c.values[name] = value
	return c
}

// Get returns the value of a column.
func (c *Columns) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Names returns the column names in insertion order.
func (c *Columns) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.names)
}

// Len returns the number of columns.
func (c *Columns) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// All iterates over the columns in insertion order.
func (c *Columns) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if c == nil {
			return
		}
		for _, name := range c.names {
			if !yield(name, c.values[name]) {
				return
			}
		}
	}
}

// toColumns accepts *Columns, map[string]any and Params-like maps.
func toColumns(v any) (*Columns, bool) {
	switch c := v.(type) {
	case *Columns:
		return c, true
	case map[string]any:
		return ColsFromMap(c), true
	case Params:
		return ColsFromMap(c), true
	}
	return nil, false
}
