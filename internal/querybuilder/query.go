package querybuilder

import (
	"regexp"
	"slices"
	"strings"
)

// Query is a structured SELECT statement. Build it with the fluent methods and
// compile it with QueryBuilder.Build. A Query is also an Expression: used as a
// value or a condition operand it compiles to a parenthesized sub-query.
//
// Example:
//
//	q := querybuilder.NewQuery().
//		Select("id", "name AS title").
//		From("user u").
//		Where(map[string]any{"status": 1}).
//		AndWhere([]any{"between", "age", 18, 30}).
//		OrderBy("name DESC").
//		Limit(10)
type Query struct {
	selectCols   []selectColumn
	selectOption string
	distinct     bool
	from         []any
	joins        []joinClause
	where        any
	groupBy      []any
	having       any
	orderBy      []orderColumn
	limit        any
	offset       any
	unions       []unionClause
	withQueries  []withQuery
	params       Params
}

type selectColumn struct {
	alias string
	expr  any
}

type joinClause struct {
	typ   string
	table any
	on    any
}

type orderColumn struct {
	column any
	desc   bool
}

type unionClause struct {
	query any
	all   bool
}

type withQuery struct {
	query     any
	alias     string
	recursive bool
}

// Aliased attaches an alias to a column, table or sub-query.
type Aliased struct {
	Expr  any
	Alias string
}

// As aliases a select column, a FROM/JOIN table or a sub-query:
//
//	q.Select(querybuilder.As(querybuilder.NewExp("COUNT(*)"), "cnt"))
//	q.From(querybuilder.As(sub, "t"))
func As(expr any, alias string) Aliased {
	return Aliased{Expr: expr, Alias: alias}
}

var (
	columnSplitRegex = regexp.MustCompile(`\s*,\s*`)
	orderRegex       = regexp.MustCompile(`(?i)^(.*?)\s+(asc|desc)$`)
)

// NewQuery creates an empty query.
func NewQuery() *Query {
	return &Query{params: Params{}}
}

// SQLExpression marks Query as an Expression.
func (*Query) SQLExpression() {}

// Select sets the selected columns. Strings may hold several comma-separated
// columns unless they contain a parenthesis; Expressions, sub-queries and
// Aliased values are accepted too. No columns selects "*".
func (q *Query) Select(columns ...any) *Query {
	q.selectCols = nil
	return q.AddSelect(columns...)
}

// AddSelect appends columns to the select list.
func (q *Query) AddSelect(columns ...any) *Query {
	for _, c := range columns {
		switch v := c.(type) {
		case string:
			for _, name := range splitColumns(v) {
				q.selectCols = append(q.selectCols, selectColumn{expr: name})
			}
		case Aliased:
			q.selectCols = append(q.selectCols, selectColumn{alias: v.Alias, expr: v.Expr})
		default:
			q.selectCols = append(q.selectCols, selectColumn{expr: c})
		}
	}
	return q
}

// SelectOption sets a modifier placed after SELECT, e.g. SQL_CALC_FOUND_ROWS.
func (q *Query) SelectOption(option string) *Query {
	q.selectOption = option
	return q
}

// Distinct toggles SELECT DISTINCT.
func (q *Query) Distinct(distinct bool) *Query {
	q.distinct = distinct
	return q
}

// From sets the FROM tables. Strings may list several tables and carry an alias
// ("user u", "user AS u"); sub-queries must be wrapped with As.
func (q *Query) From(tables ...any) *Query {
	q.from = nil
	for _, t := range tables {
		if s, ok := t.(string); ok {
			for _, name := range splitColumns(s) {
				q.from = append(q.from, name)
			}
			continue
		}
		q.from = append(q.from, t)
	}
	return q
}

// Join appends a join clause. typ is the join keyword ("INNER JOIN",
// "LEFT JOIN"...), table a string or Aliased sub-query and on any condition
// accepted by QueryBuilder.BuildCondition.
func (q *Query) Join(typ string, table any, on any, params ...Params) *Query {
	q.joins = append(q.joins, joinClause{typ: typ, table: table, on: on})
	return q.AddParams(params...)
}

// InnerJoin appends an INNER JOIN.
func (q *Query) InnerJoin(table any, on any, params ...Params) *Query {
	return q.Join("INNER JOIN", table, on, params...)
}

// LeftJoin appends a LEFT JOIN.
func (q *Query) LeftJoin(table any, on any, params ...Params) *Query {
	return q.Join("LEFT JOIN", table, on, params...)
}

// RightJoin appends a RIGHT JOIN.
func (q *Query) RightJoin(table any, on any, params ...Params) *Query {
	return q.Join("RIGHT JOIN", table, on, params...)
}

// Where replaces the WHERE condition.
func (q *Query) Where(cond any, params ...Params) *Query {
	q.where = cond
	return q.AddParams(params...)
}

// AndWhere adds a condition joined to the existing one with AND.
func (q *Query) AndWhere(cond any, params ...Params) *Query {
	q.where = combine("and", q.where, cond)
	return q.AddParams(params...)
}

// OrWhere adds a condition joined to the existing one with OR.
func (q *Query) OrWhere(cond any, params ...Params) *Query {
	q.where = combine("or", q.where, cond)
	return q.AddParams(params...)
}

// GroupBy sets the GROUP BY columns.
func (q *Query) GroupBy(columns ...any) *Query {
	q.groupBy = nil
	for _, c := range columns {
		if s, ok := c.(string); ok {
			for _, name := range splitColumns(s) {
				q.groupBy = append(q.groupBy, name)
			}
			continue
		}
		q.groupBy = append(q.groupBy, c)
	}
	return q
}

// Having replaces the HAVING condition.
func (q *Query) Having(cond any, params ...Params) *Query {
	q.having = cond
	return q.AddParams(params...)
}

// AndHaving adds a HAVING condition joined with AND.
func (q *Query) AndHaving(cond any, params ...Params) *Query {
	q.having = combine("and", q.having, cond)
	return q.AddParams(params...)
}

// OrHaving adds a HAVING condition joined with OR.
func (q *Query) OrHaving(cond any, params ...Params) *Query {
	q.having = combine("or", q.having, cond)
	return q.AddParams(params...)
}

// OrderBy sets the ORDER BY columns. Strings accept "name", "name DESC" and
// comma-separated lists; Expressions are rendered as they are.
func (q *Query) OrderBy(columns ...any) *Query {
	q.orderBy = nil
	return q.AddOrderBy(columns...)
}

// AddOrderBy appends ORDER BY columns.
func (q *Query) AddOrderBy(columns ...any) *Query {
	for _, c := range columns {
		s, ok := c.(string)
		if !ok {
			q.orderBy = append(q.orderBy, orderColumn{column: c})
			continue
		}
		for _, part := range splitColumns(s) {
			if m := orderRegex.FindStringSubmatch(part); m != nil {
				q.orderBy = append(q.orderBy, orderColumn{column: m[1], desc: strings.EqualFold(m[2], "desc")})
			} else {
				q.orderBy = append(q.orderBy, orderColumn{column: part})
			}
		}
	}
	return q
}

// Limit sets the row limit: a non-negative int or an Expression. A negative
// value removes the limit.
func (q *Query) Limit(limit any) *Query {
	q.limit = limit
	return q
}

// Offset sets the row offset: a non-negative int or an Expression.
func (q *Query) Offset(offset any) *Query {
	q.offset = offset
	return q
}

// Union appends "UNION ( query )". query is a *Query or raw SQL.
func (q *Query) Union(query any) *Query {
	q.unions = append(q.unions, unionClause{query: query})
	return q
}

// UnionAll appends "UNION ALL ( query )".
func (q *Query) UnionAll(query any) *Query {
	q.unions = append(q.unions, unionClause{query: query, all: true})
	return q
}

// WithQuery prepends a common table expression "alias AS (query)". Any
// recursive CTE turns the clause into WITH RECURSIVE.
func (q *Query) WithQuery(query any, alias string, recursive bool) *Query {
	q.withQueries = append(q.withQueries, withQuery{query: query, alias: alias, recursive: recursive})
	return q
}

// AddParams merges named parameters used by raw SQL fragments of the query.
func (q *Query) AddParams(params ...Params) *Query {
	if q.params == nil {
		q.params = Params{}
	}
	for _, p := range params {
		q.params.Merge(p)
	}
	return q
}

// Params returns the parameters attached to the query.
func (q *Query) Params() Params {
	return q.params
}

// selectNames returns the column names an INSERT ... SELECT writes into, or
// false when the select list is not enumerated.
func (q *Query) selectNames() ([]string, bool) {
	if len(q.selectCols) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(q.selectCols))
	for _, c := range q.selectCols {
		if c.alias != "" {
			names = append(names, c.alias)
			continue
		}
		s, ok := c.expr.(string)
		if !ok || s == "*" || strings.HasSuffix(s, ".*") {
			return nil, false
		}
		if m := aliasRegex.FindStringSubmatch(s); m != nil {
			names = append(names, m[2])
		} else {
			names = append(names, s)
		}
	}
	return names, true
}

func combine(op string, current, cond any) any {
	if current == nil {
		return cond
	}
	if ops, ok := current.([]any); ok && len(ops) > 0 {
		if s, ok := ops[0].(string); ok && strings.EqualFold(s, op) {
			return append(slices.Clone(ops), cond)
		}
	}
	return []any{op, current, cond}
}

func splitColumns(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Contains(s, "(") {
		return []string{s}
	}
	return columnSplitRegex.Split(s, -1)
}
