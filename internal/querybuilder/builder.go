package querybuilder

import (
	"context"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
	"github.com/coregx/dbal/internal/quoter"
	"github.com/coregx/dbal/internal/schema"
)

// QueryBuilder compiles queries, conditions, DML and DDL requests into SQL for
// the dialect of its Schema. It is safe for concurrent use once configured.
type QueryBuilder struct {
	schema     *schema.Schema
	dialect    dialects.Dialect
	quoter     *quoter.Quoter
	grammar    grammar
	typeMap    map[string]string
	separator  string
	conditions map[string]ConditionFactory
	registry   *registry
}

var (
	aliasRegex      = regexp.MustCompile(`^(.*?)(?i:\s+as\s+|\s+)([\w\-_\.]+)$`)
	tableAliasRegex = regexp.MustCompile(`^(.*?)(?i:\s+as|)\s+([^ ]+)$`)
)

// New creates a builder for the dialect, quoter and metadata of s.
func New(s *schema.Schema) *QueryBuilder {
	b := &QueryBuilder{
		schema:     s,
		dialect:    s.Dialect(),
		quoter:     s.Quoter(),
		grammar:    grammarFor(s.Dialect()),
		typeMap:    s.Dialect().TypeMap(),
		separator:  " ",
		conditions: DefaultConditions(),
		registry:   newRegistry(),
	}
	b.registerDefaults()
	return b
}

func (b *QueryBuilder) registerDefaults() {
	b.registry.register(TypeOf[SelfBuilder](), buildSelf)
	b.registry.register(reflect.TypeOf(&Query{}), buildSubQuery)
	b.registry.register(reflect.TypeOf(&Expr{}), buildExpr)
	b.registry.register(reflect.TypeOf(&JSONExpression{}), buildJSON)
	b.registry.register(reflect.TypeOf(&ConjunctionCondition{}), buildConjunction)
	b.registry.register(reflect.TypeOf(&NotCondition{}), buildNot)
	b.registry.register(reflect.TypeOf(&BetweenCondition{}), buildBetween)
	b.registry.register(reflect.TypeOf(&BetweenColumnsCondition{}), buildBetweenColumns)
	b.registry.register(reflect.TypeOf(&InCondition{}), buildIn)
	b.registry.register(reflect.TypeOf(&LikeCondition{}), buildLike)
	b.registry.register(reflect.TypeOf(&ExistsCondition{}), buildExists)
	b.registry.register(reflect.TypeOf(&HashCondition{}), buildHash)
	b.registry.register(reflect.TypeOf(&SimpleCondition{}), buildSimple)
	b.grammar.registerBuilders(b.registry)
}

// Schema returns the schema the builder reads table metadata from.
func (b *QueryBuilder) Schema() *schema.Schema { return b.schema }

// Quoter returns the identifier quoter of the builder.
func (b *QueryBuilder) Quoter() *quoter.Quoter { return b.quoter }

// SetSeparator sets the string placed between SELECT clauses (default " ").
func (b *QueryBuilder) SetSeparator(sep string) {
	b.separator = sep
}

// SetTypeMap replaces abstract column type mappings used by GetColumnType.
func (b *QueryBuilder) SetTypeMap(m map[string]string) {
	for k, v := range m {
		b.typeMap[k] = v
	}
}

// RegisterCondition maps an operator of the operator form to a factory.
func (b *QueryBuilder) RegisterCondition(operator string, f ConditionFactory) {
	b.conditions[strings.ToUpper(operator)] = f
}

// RegisterExpressionBuilder registers fn for expressions of type t. For an
// interface type, fn serves every expression implementing it that has no exact
// builder; later registrations take priority over earlier ones.
func (b *QueryBuilder) RegisterExpressionBuilder(t reflect.Type, fn BuildFunc) {
	b.registry.register(t, fn)
}

// Build compiles a SELECT query. params seeds the parameter map; the result
// holds it plus the query's own parameters and every value bound while building.
func (b *QueryBuilder) Build(q *Query, params Params) (string, Params, error) {
	out := Params{}
	out.Merge(params)
	sql, err := b.build(q, out)
	if err != nil {
		return "", nil, err
	}
	return sql, out, nil
}

func (b *QueryBuilder) build(q *Query, params Params) (string, error) {
	params.Merge(q.params)

	clauses := make([]string, 0, 6)
	add := func(s string, err error) error {
		if err != nil {
			return err
		}
		if s != "" {
			clauses = append(clauses, s)
		}
		return nil
	}
	if err := add(b.buildSelect(q, params)); err != nil {
		return "", err
	}
	if err := add(b.buildFrom(q.from, params)); err != nil {
		return "", err
	}
	if err := add(b.buildJoin(q.joins, params)); err != nil {
		return "", err
	}
	if err := add(b.buildWhere(q.where, params)); err != nil {
		return "", err
	}
	if err := add(b.buildGroupBy(q.groupBy, params)); err != nil {
		return "", err
	}
	if err := add(b.buildHaving(q.having, params)); err != nil {
		return "", err
	}
	sql := strings.Join(clauses, b.separator)

	orderBy, err := b.buildOrderBy(q.orderBy, params)
	if err != nil {
		return "", err
	}
	limit, err := b.limitValue(q.limit, params)
	if err != nil {
		return "", err
	}
	offset, err := b.offsetValue(q.offset, params)
	if err != nil {
		return "", err
	}
	if tail := b.grammar.paginate(orderBy, limit, offset, b.separator); tail != "" {
		sql += b.separator + tail
	}

	union, err := b.buildUnion(q.unions, params)
	if err != nil {
		return "", err
	}
	if union != "" {
		sql = "(" + sql + ")" + b.separator + union
	}

	with, err := b.buildWith(q.withQueries, params)
	if err != nil {
		return "", err
	}
	if with != "" {
		sql = with + b.separator + sql
	}
	return sql, nil
}

// BuildCondition compiles a condition. Accepted forms: nil or "" (no
// condition), a raw SQL string, the operator form []any{"op", operands...},
// a hash (map[string]any, *Columns, Params) and any Expression.
func (b *QueryBuilder) BuildCondition(cond any, params Params) (string, error) {
	switch c := cond.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	case []any:
		if len(c) == 0 {
			return "", nil
		}
		built, err := b.CreateCondition(c)
		if err != nil {
			return "", err
		}
		return b.BuildExpression(built, params)
	case Expression:
		return b.BuildExpression(c, params)
	}
	if cols, ok := toColumns(cond); ok {
		if cols.Len() == 0 {
			return "", nil
		}
		return b.BuildExpression(&HashCondition{Hash: cols}, params)
	}
	return "", dberr.Argument("unsupported condition type %T", cond)
}

// CreateCondition turns the operator form into a Condition.
func (b *QueryBuilder) CreateCondition(operands []any) (Condition, error) {
	op, ok := operands[0].(string)
	if !ok {
		return nil, dberr.Argument("condition operator must be a string, got %T", operands[0])
	}
	op = strings.ToUpper(strings.TrimSpace(op))
	factory, ok := b.conditions[op]
	if !ok {
		factory = newSimpleCondition
	}
	return factory(op, operands[1:])
}

// BuildExpression compiles an expression with the builder registered for its type.
func (b *QueryBuilder) BuildExpression(e Expression, params Params) (string, error) {
	fn, ok := b.registry.lookup(reflect.TypeOf(e))
	if !ok {
		return "", dberr.Argument("expression of type %T has no registered builder", e)
	}
	return fn(b, e, params)
}

// BindParam stores value under a fresh :qpN placeholder.
func (b *QueryBuilder) BindParam(value any, params Params) string {
	return params.Bind(value)
}

// placeholder renders a value: expressions are built inline, everything else is bound.
func (b *QueryBuilder) placeholder(value any, params Params) (string, error) {
	if e, ok := value.(Expression); ok {
		return b.BuildExpression(e, params)
	}
	return params.Bind(value), nil
}

// column quotes a column name unless it is an expression or holds a parenthesis.
func (b *QueryBuilder) column(column any, params Params) (string, error) {
	switch c := column.(type) {
	case string:
		if strings.Contains(c, "(") {
			return c, nil
		}
		return b.quoter.QuoteColumnName(c), nil
	case Expression:
		return b.BuildExpression(c, params)
	}
	return "", dberr.Argument("unsupported column type %T", column)
}

func (b *QueryBuilder) buildSelect(q *Query, params Params) (string, error) {
	sel := "SELECT"
	if q.distinct {
		sel += " DISTINCT"
	}
	if q.selectOption != "" {
		sel += " " + q.selectOption
	}
	if len(q.selectCols) == 0 {
		return sel + " *", nil
	}

	cols := make([]string, 0, len(q.selectCols))
	for _, c := range q.selectCols {
		var s string
		switch v := c.expr.(type) {
		case string:
			switch {
			case c.alias != "" && c.alias != v:
				if !strings.Contains(v, "(") {
					v = b.quoter.QuoteColumnName(v)
				}
				s = v + " AS " + b.quoter.QuoteColumnName(c.alias)
			case strings.Contains(v, "("):
				s = v
			default:
				if m := aliasRegex.FindStringSubmatch(v); m != nil {
					s = b.quoter.QuoteColumnName(m[1]) + " AS " + b.quoter.QuoteColumnName(m[2])
				} else {
					s = b.quoter.QuoteColumnName(v)
				}
			}
		case Expression:
			built, err := b.BuildExpression(v, params)
			if err != nil {
				return "", err
			}
			s = built
			if c.alias != "" {
				s += " AS " + b.quoter.QuoteColumnName(c.alias)
			}
		default:
			return "", dberr.Argument("unsupported select column type %T", c.expr)
		}
		cols = append(cols, s)
	}
	return sel + " " + strings.Join(cols, ", "), nil
}

func (b *QueryBuilder) buildFrom(tables []any, params Params) (string, error) {
	if len(tables) == 0 {
		return "", nil
	}
	names, err := b.quoteTableNames(tables, params)
	if err != nil {
		return "", err
	}
	return "FROM " + strings.Join(names, ", "), nil
}

func (b *QueryBuilder) quoteTableNames(tables []any, params Params) ([]string, error) {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		s, err := b.quoteTable(t, params)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (b *QueryBuilder) quoteTable(table any, params Params) (string, error) {
	switch t := table.(type) {
	case string:
		if strings.Contains(t, "(") {
			return t, nil
		}
		if m := tableAliasRegex.FindStringSubmatch(t); m != nil {
			return b.quoter.QuoteTableName(m[1]) + " " + b.quoter.QuoteTableName(m[2]), nil
		}
		return b.quoter.QuoteTableName(t), nil
	case Aliased:
		var s string
		switch e := t.Expr.(type) {
		case string:
			s = e
			if !strings.Contains(e, "(") {
				s = b.quoter.QuoteTableName(e)
			}
		case Expression:
			built, err := b.BuildExpression(e, params)
			if err != nil {
				return "", err
			}
			s = built
		default:
			return "", dberr.Argument("unsupported table type %T", t.Expr)
		}
		return s + " " + b.quoter.QuoteTableName(t.Alias), nil
	case Expression:
		return b.BuildExpression(t, params)
	}
	return "", dberr.Argument("unsupported table type %T", table)
}

func (b *QueryBuilder) buildJoin(joins []joinClause, params Params) (string, error) {
	if len(joins) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(joins))
	for _, j := range joins {
		if j.typ == "" || j.table == nil {
			return "", dberr.Argument("a join clause must specify the join type and the joined table")
		}
		table, err := b.quoteTable(j.table, params)
		if err != nil {
			return "", err
		}
		part := j.typ + " " + table
		on, err := b.BuildCondition(j.on, params)
		if err != nil {
			return "", err
		}
		if on != "" {
			part += " ON " + on
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, b.separator), nil
}

func (b *QueryBuilder) buildWhere(cond any, params Params) (string, error) {
	where, err := b.BuildCondition(cond, params)
	if err != nil || where == "" {
		return "", err
	}
	return "WHERE " + where, nil
}

func (b *QueryBuilder) buildGroupBy(columns []any, params Params) (string, error) {
	if len(columns) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		s, err := b.column(c, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "GROUP BY " + strings.Join(parts, ", "), nil
}

func (b *QueryBuilder) buildHaving(cond any, params Params) (string, error) {
	having, err := b.BuildCondition(cond, params)
	if err != nil || having == "" {
		return "", err
	}
	return "HAVING " + having, nil
}

func (b *QueryBuilder) buildOrderBy(columns []orderColumn, params Params) (string, error) {
	if len(columns) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		s, err := b.column(c.column, params)
		if err != nil {
			return "", err
		}
		if c.desc {
			s += " DESC"
		}
		parts = append(parts, s)
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// limitValue renders a limit, or "" when it is unset or negative.
func (b *QueryBuilder) limitValue(v any, params Params) (string, error) {
	switch n := v.(type) {
	case nil:
		return "", nil
	case Expression:
		return b.BuildExpression(n, params)
	case int:
		if n < 0 {
			return "", nil
		}
		return strconv.Itoa(n), nil
	case int64:
		if n < 0 {
			return "", nil
		}
		return strconv.FormatInt(n, 10), nil
	}
	return "", dberr.Argument("limit must be an int or an Expression, got %T", v)
}

// offsetValue is limitValue that also drops a zero offset.
func (b *QueryBuilder) offsetValue(v any, params Params) (string, error) {
	s, err := b.limitValue(v, params)
	if err != nil || s == "0" {
		return "", err
	}
	return s, nil
}

func (b *QueryBuilder) buildUnion(unions []unionClause, params Params) (string, error) {
	if len(unions) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(unions))
	for _, u := range unions {
		sql, err := b.subSQL(u.query, params)
		if err != nil {
			return "", err
		}
		kw := "UNION "
		if u.all {
			kw += "ALL "
		}
		parts = append(parts, kw+"( "+sql+" )")
	}
	return strings.Join(parts, " "), nil
}

func (b *QueryBuilder) buildWith(withs []withQuery, params Params) (string, error) {
	if len(withs) == 0 {
		return "", nil
	}
	recursive := false
	parts := make([]string, 0, len(withs))
	for _, w := range withs {
		if w.recursive {
			recursive = true
		}
		sql, err := b.subSQL(w.query, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, b.quoter.QuoteTableName(w.alias)+" AS ("+sql+")")
	}
	kw := "WITH "
	if recursive {
		kw += "RECURSIVE "
	}
	return kw + strings.Join(parts, ", "), nil
}

// subSQL renders a *Query without parentheses, or passes raw SQL through.
func (b *QueryBuilder) subSQL(query any, params Params) (string, error) {
	switch q := query.(type) {
	case *Query:
		return b.build(q, params)
	case string:
		return q, nil
	case Expression:
		return b.BuildExpression(q, params)
	}
	return "", dberr.Argument("unsupported sub-query type %T", query)
}

// tableSchema returns the metadata of a table, or nil when it is unknown or
// the schema cannot be read.
func (b *QueryBuilder) tableSchema(ctx context.Context, table string) *schema.TableSchema {
	if b.schema.DB() == nil {
		return nil
	}
	t, err := b.schema.GetTableSchema(ctx, table, false)
	if err != nil {
		return nil
	}
	return t
}
