// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package querybuilder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Expression is a value rendered into SQL rather than bound as a parameter.
// Conditions, sub-queries and raw SQL fragments are all expressions. Each
// concrete type is compiled by the BuildFunc registered for it.
type Expression interface {
	SQLExpression()
}

// SelfBuilder is an Expression that renders itself. Types implementing it need
// no explicit registration.
type SelfBuilder interface {
	Expression
	BuildSQL(b *QueryBuilder, params Params) (string, error)
}

// Expr is a raw SQL fragment with optional named parameters.
//
// Example:
//
//	querybuilder.NewExp("visits + :step", querybuilder.Params{":step": 1})
type Expr struct {
	SQL    string
	Params Params
}

// NewExp creates a raw SQL expression. Parameter names are used verbatim.
func NewExp(sql string, params ...Params) *Expr {
	e := &Expr{SQL: sql, Params: Params{}}
	for _, p := range params {
		e.Params.Merge(p)
	}
	return e
}

// SQLExpression marks Expr as an Expression.
func (*Expr) SQLExpression() {}

// String returns the raw SQL.
func (e *Expr) String() string { return e.SQL }

// JSONExpression binds a Go value as a JSON document.
type JSONExpression struct {
	Value any
	// Type is an optional DBMS type the value is cast to (json, jsonb).
	Type string
}

// JSON wraps v for JSON encoding.
func JSON(v any) *JSONExpression {
	return &JSONExpression{Value: v}
}

// SQLExpression marks JSONExpression as an Expression.
func (*JSONExpression) SQLExpression() {}

func (e *JSONExpression) encode() (any, error) {
	switch v := e.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("encode json expression: %w", err)
	}
	return string(b), nil
}

// BuildFunc compiles an expression into SQL, adding bound values to params.
type BuildFunc func(b *QueryBuilder, e Expression, params Params) (string, error)

type baseBuilder struct {
	typ reflect.Type
	fn  BuildFunc
}

// registry resolves the BuildFunc of an expression: an exact type match wins;
// otherwise registered interface types are scanned in reverse registration
// order and the first one the expression implements is remembered for its type.
type registry struct {
	mu       sync.RWMutex
	exact    map[reflect.Type]BuildFunc
	bases    []baseBuilder
	resolved map[reflect.Type]BuildFunc
}

func newRegistry() *registry {
	return &registry{
		exact:    make(map[reflect.Type]BuildFunc),
		resolved: make(map[reflect.Type]BuildFunc),
	}
}

// register maps t to fn. Interface types become base mappings; re-registering
// a base keeps its original priority.
func (r *registry) register(t reflect.Type, fn BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resolved = make(map[reflect.Type]BuildFunc)
	if t.Kind() != reflect.Interface {
		r.exact[t] = fn
		return
	}
	for i := range r.bases {
		if r.bases[i].typ == t {
			r.bases[i].fn = fn
			return
		}
	}
	r.bases = append(r.bases, baseBuilder{typ: t, fn: fn})
}

func (r *registry) lookup(t reflect.Type) (BuildFunc, bool) {
	r.mu.RLock()
	fn, ok := r.exact[t]
	if !ok {
		fn, ok = r.resolved[t]
	}
	r.mu.RUnlock()
	if ok {
		return fn, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.bases) - 1; i >= 0; i-- {
		if t.Implements(r.bases[i].typ) {
			r.resolved[t] = r.bases[i].fn
			return r.bases[i].fn, true
		}
	}
	return nil, false
}

func (r *registry) clone() *registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := newRegistry()
	for k, v := range r.exact {
		c.exact[k] = v
	}
	c.bases = append(c.bases, r.bases...)
	return c
}

// TypeOf returns the reflect.Type of T, for registering builders of interface
// types: TypeOf[MyExpression]().
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func buildExpr(_ *QueryBuilder, e Expression, params Params) (string, error) {
	x := e.(*Expr)
	params.Merge(x.Params)
	return x.SQL, nil
}

func buildSelf(b *QueryBuilder, e Expression, params Params) (string, error) {
	return e.(SelfBuilder).BuildSQL(b, params)
}

func buildJSON(b *QueryBuilder, e Expression, params Params) (string, error) {
	x := e.(*JSONExpression)
	v, err := x.encode()
	if err != nil {
		return "", err
	}
	if v == nil {
		return "NULL", nil
	}
	return b.grammar.jsonPlaceholder(params.Bind(v), x.Type), nil
}

func buildSubQuery(b *QueryBuilder, e Expression, params Params) (string, error) {
	sql, err := b.build(e.(*Query), params)
	if err != nil {
		return "", err
	}
	return "(" + sql + ")", nil
}
