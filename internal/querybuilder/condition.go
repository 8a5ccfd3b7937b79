// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package querybuilder

import (
	"github.com/coregx/dbal/internal/dberr"
)

// Condition is a compiled node of a WHERE, HAVING or ON clause.
//
// Conditions are usually written in the operator form accepted by
// QueryBuilder.BuildCondition:
//
//	[]any{"between", "age", 1, 30}          // "age" BETWEEN :qp0 AND :qp1
//	[]any{"or", cond1, cond2}               // (cond1) OR (cond2)
//	map[string]any{"status": 1, "x": nil}   // "status"=:qp0 AND "x" IS NULL
//
// or built directly with the constructors below.
type Condition interface {
	Expression
	isCondition()
}

// ConditionFactory creates a condition from the operand list of the operator form.
type ConditionFactory func(operator string, operands []any) (Condition, error)

// DefaultConditions returns the operator → factory map used by new builders.
// Operators missing from the map compile to a SimpleCondition.
func DefaultConditions() map[string]ConditionFactory {
	return map[string]ConditionFactory{
		"NOT":         newNotCondition,
		"AND":         newConjunctionCondition,
		"OR":          newConjunctionCondition,
		"BETWEEN":     newBetweenCondition,
		"NOT BETWEEN": newBetweenCondition,
		"IN":          newInCondition,
		"NOT IN":      newInCondition,
		"LIKE":        newLikeCondition,
		"NOT LIKE":    newLikeCondition,
		"OR LIKE":     newLikeCondition,
		"OR NOT LIKE": newLikeCondition,
		"EXISTS":      newExistsCondition,
		"NOT EXISTS":  newExistsCondition,
	}
}

// ConjunctionCondition joins conditions with AND or OR. Empty parts are dropped.
type ConjunctionCondition struct {
	Operator    string
	Expressions []any
}

// And joins conditions with AND.
func And(conds ...any) *ConjunctionCondition {
	return &ConjunctionCondition{Operator: "AND", Expressions: conds}
}

// Or joins conditions with OR.
func Or(conds ...any) *ConjunctionCondition {
	return &ConjunctionCondition{Operator: "OR", Expressions: conds}
}

func newConjunctionCondition(operator string, operands []any) (Condition, error) {
	return &ConjunctionCondition{Operator: operator, Expressions: operands}, nil
}

// NotCondition negates a condition.
type NotCondition struct {
	Condition any
}

// Not negates cond.
func Not(cond any) *NotCondition {
	return &NotCondition{Condition: cond}
}

func newNotCondition(operator string, operands []any) (Condition, error) {
	if len(operands) != 1 {
		return nil, dberr.Argument("operator %q requires exactly one operand", operator)
	}
	return &NotCondition{Condition: operands[0]}, nil
}

// BetweenCondition is "column BETWEEN start AND end".
type BetweenCondition struct {
	Column        any
	Operator      string
	IntervalStart any
	IntervalEnd   any
}

// Between creates a BETWEEN condition.
func Between(column any, start, end any) *BetweenCondition {
	return &BetweenCondition{Column: column, Operator: "BETWEEN", IntervalStart: start, IntervalEnd: end}
}

// NotBetween creates a NOT BETWEEN condition.
func NotBetween(column any, start, end any) *BetweenCondition {
	return &BetweenCondition{Column: column, Operator: "NOT BETWEEN", IntervalStart: start, IntervalEnd: end}
}

func newBetweenCondition(operator string, operands []any) (Condition, error) {
	if len(operands) != 3 {
		return nil, dberr.Argument("operator %q requires three operands", operator)
	}
	return &BetweenCondition{Column: operands[0], Operator: operator, IntervalStart: operands[1], IntervalEnd: operands[2]}, nil
}

// BetweenColumnsCondition is "value BETWEEN startColumn AND endColumn".
type BetweenColumnsCondition struct {
	Value               any
	Operator            string
	IntervalStartColumn any
	IntervalEndColumn   any
}

// BetweenColumns checks a value against a range stored in two columns.
func BetweenColumns(value any, startColumn, endColumn any) *BetweenColumnsCondition {
	return &BetweenColumnsCondition{Value: value, Operator: "BETWEEN", IntervalStartColumn: startColumn, IntervalEndColumn: endColumn}
}

// InCondition is "column IN (values)". Column may be a []string for a
// composite IN; Values may be a slice, a slice of maps/Columns for composite
// columns, or a *Query.
type InCondition struct {
	Column   any
	Operator string
	Values   any
}

// In creates an IN condition.
func In(column any, values any) *InCondition {
	return &InCondition{Column: column, Operator: "IN", Values: values}
}

// NotIn creates a NOT IN condition.
func NotIn(column any, values any) *InCondition {
	return &InCondition{Column: column, Operator: "NOT IN", Values: values}
}

func newInCondition(operator string, operands []any) (Condition, error) {
	if len(operands) != 2 {
		return nil, dberr.Argument("operator %q requires two operands", operator)
	}
	return &InCondition{Column: operands[0], Operator: operator, Values: operands[1]}, nil
}

// LikeCondition is "column LIKE value". Values may be a string, an Expression
// or a slice of either; multiple values are joined with AND, or with OR for the
// OR LIKE operators.
type LikeCondition struct {
	Column   any
	Operator string
	Values   any
	// Escape replaces special characters in values. nil selects the builder's
	// default; an empty map disables escaping and % wrapping.
	Escape map[string]string
}

// Like creates a LIKE condition matching values anywhere in the column.
// Values are escaped and wrapped in % wildcards unless Escape is an empty map,
// in which case they are bound as given.
func Like(column any, values any) *LikeCondition {
	return &LikeCondition{Column: column, Operator: "LIKE", Values: values}
}

// NotLike creates a NOT LIKE condition.
func NotLike(column any, values any) *LikeCondition {
	return &LikeCondition{Column: column, Operator: "NOT LIKE", Values: values}
}

// OrLike creates a LIKE condition matching any of the values.
func OrLike(column any, values any) *LikeCondition {
	return &LikeCondition{Column: column, Operator: "OR LIKE", Values: values}
}

// OrNotLike creates a NOT LIKE condition joined with OR.
func OrNotLike(column any, values any) *LikeCondition {
	return &LikeCondition{Column: column, Operator: "OR NOT LIKE", Values: values}
}

func newLikeCondition(operator string, operands []any) (Condition, error) {
	if len(operands) != 2 && len(operands) != 3 {
		return nil, dberr.Argument("operator %q requires two operands", operator)
	}
	c := &LikeCondition{Column: operands[0], Operator: operator, Values: operands[1]}
	if len(operands) == 3 {
		switch esc := operands[2].(type) {
		case map[string]string:
			c.Escape = esc
		case bool:
			if !esc {
				c.Escape = map[string]string{}
			}
		case nil:
		default:
			return nil, dberr.Argument("operator %q: escape operand must be map[string]string or false, got %T", operator, esc)
		}
	}
	return c, nil
}

// ExistsCondition is "EXISTS (subquery)".
type ExistsCondition struct {
	Operator string
	Query    *Query
}

// Exists creates an EXISTS condition.
func Exists(q *Query) *ExistsCondition {
	return &ExistsCondition{Operator: "EXISTS", Query: q}
}

// NotExists creates a NOT EXISTS condition.
func NotExists(q *Query) *ExistsCondition {
	return &ExistsCondition{Operator: "NOT EXISTS", Query: q}
}

func newExistsCondition(operator string, operands []any) (Condition, error) {
	if len(operands) > 0 {
		if q, ok := operands[0].(*Query); ok {
			return &ExistsCondition{Operator: operator, Query: q}, nil
		}
	}
	return nil, dberr.Argument("subquery for %s operator must be a *Query", operator)
}

// HashCondition is an AND of column equalities. nil values compile to IS NULL,
// slices and sub-queries to IN.
type HashCondition struct {
	Hash *Columns
}

// Hash creates a hash condition from *Columns or map[string]any.
func Hash(hash any) *HashCondition {
	c, _ := toColumns(hash)
	return &HashCondition{Hash: c}
}

// SimpleCondition is "column operator value".
type SimpleCondition struct {
	Column   any
	Operator string
	Value    any
}

// Compare creates a SimpleCondition such as Compare("age", ">=", 18).
func Compare(column any, operator string, value any) *SimpleCondition {
	return &SimpleCondition{Column: column, Operator: operator, Value: value}
}

func newSimpleCondition(operator string, operands []any) (Condition, error) {
	if len(operands) != 2 {
		return nil, dberr.Argument("operator %q requires two operands", operator)
	}
	return &SimpleCondition{Column: operands[0], Operator: operator, Value: operands[1]}, nil
}

func (*ConjunctionCondition) SQLExpression()    {}
func (*NotCondition) SQLExpression()            {}
func (*BetweenCondition) SQLExpression()        {}
func (*BetweenColumnsCondition) SQLExpression() {}
func (*InCondition) SQLExpression()             {}
func (*LikeCondition) SQLExpression()           {}
func (*ExistsCondition) SQLExpression()         {}
func (*HashCondition) SQLExpression()           {}
func (*SimpleCondition) SQLExpression()         {}

func (*ConjunctionCondition) isCondition()    {}
func (*NotCondition) isCondition()            {}
func (*BetweenCondition) isCondition()        {}
func (*BetweenColumnsCondition) isCondition() {}
func (*InCondition) isCondition()             {}
func (*LikeCondition) isCondition()           {}
func (*ExistsCondition) isCondition()         {}
func (*HashCondition) isCondition()           {}
func (*SimpleCondition) isCondition()         {}
