package querybuilder

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
)

var likeOperatorRegex = regexp.MustCompile(`^(AND |OR |)((NOT |)I?LIKE)`)

func buildConjunction(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*ConjunctionCondition)
	parts := make([]string, 0, len(c.Expressions))
	for _, expr := range c.Expressions {
		s, err := b.BuildCondition(expr, params)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}
	return "(" + strings.Join(parts, ") "+c.Operator+" (") + ")", nil
}

func buildNot(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*NotCondition)
	s, err := b.BuildCondition(c.Condition, params)
	if err != nil || s == "" {
		return "", err
	}
	return "NOT (" + s + ")", nil
}

func buildBetween(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*BetweenCondition)
	column, err := b.column(c.Column, params)
	if err != nil {
		return "", err
	}
	start, err := b.placeholder(c.IntervalStart, params)
	if err != nil {
		return "", err
	}
	end, err := b.placeholder(c.IntervalEnd, params)
	if err != nil {
		return "", err
	}
	return column + " " + c.Operator + " " + start + " AND " + end, nil
}

func buildBetweenColumns(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*BetweenColumnsCondition)
	start, err := b.column(c.IntervalStartColumn, params)
	if err != nil {
		return "", err
	}
	end, err := b.column(c.IntervalEndColumn, params)
	if err != nil {
		return "", err
	}
	value, err := b.placeholder(c.Value, params)
	if err != nil {
		return "", err
	}
	return value + " " + c.Operator + " " + start + " AND " + end, nil
}

func buildExists(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*ExistsCondition)
	if c.Query == nil {
		return "", dberr.Argument("subquery for %s operator must be a *Query", c.Operator)
	}
	sql, err := b.build(c.Query, params)
	if err != nil {
		return "", err
	}
	return c.Operator + " (" + sql + ")", nil
}

func buildSimple(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*SimpleCondition)
	column, err := b.column(c.Column, params)
	if err != nil {
		return "", err
	}
	if c.Value == nil {
		return column + " " + c.Operator + " NULL", nil
	}
	value, err := b.placeholder(c.Value, params)
	if err != nil {
		return "", err
	}
	return column + " " + c.Operator + " " + value, nil
}

func buildHash(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*HashCondition)
	parts := make([]string, 0, c.Hash.Len())
	for name, value := range c.Hash.All() {
		if _, isQuery := value.(*Query); isQuery || isList(value) {
			s, err := b.BuildExpression(In(name, value), params)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
			continue
		}
		column := name
		if !strings.Contains(column, "(") {
			column = b.quoter.QuoteColumnName(column)
		}
		if value == nil {
			parts = append(parts, column+" IS NULL")
			continue
		}
		ph, err := b.placeholder(value, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, column+"="+ph)
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}
	return "(" + strings.Join(parts, ") AND (") + ")", nil
}

func buildIn(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*InCondition)
	op := strings.ToUpper(c.Operator)

	columns, composite := c.Column.([]string)
	if composite && len(columns) == 0 {
		return emptyIn(op), nil
	}

	if sub, ok := c.Values.(*Query); ok {
		return buildSubQueryIn(b, op, c.Column, sub, params)
	}

	values := listValues(c.Values)
	if c.Values == nil {
		values = []any{nil}
	}
	if composite {
		if len(columns) > 1 {
			if b.grammar.expandCompositeIn() {
				return buildExpandedCompositeIn(b, op, columns, values, params)
			}
			return buildCompositeIn(b, op, columns, values, params)
		}
		c = &InCondition{Column: columns[0], Operator: op, Values: c.Values}
	}

	name, ok := c.Column.(string)
	if !ok {
		return "", dberr.Argument("IN column must be a string or []string, got %T", c.Column)
	}
	quoted := name
	if !strings.Contains(quoted, "(") {
		quoted = b.quoter.QuoteColumnName(quoted)
	}

	sqlValues := make([]string, 0, len(values))
	nullCondition := ""
	for _, v := range values {
		if row, ok := toColumns(v); ok {
			v, _ = row.Get(name)
		}
		if v == nil {
			if op == "IN" {
				nullCondition = quoted + " IS NULL"
			} else {
				nullCondition = quoted + " IS NOT NULL"
			}
			continue
		}
		ph, err := b.placeholder(v, params)
		if err != nil {
			return "", err
		}
		sqlValues = append(sqlValues, ph)
	}

	if len(sqlValues) == 0 {
		if nullCondition == "" {
			return emptyIn(op), nil
		}
		return nullCondition, nil
	}

	var sql string
	if len(sqlValues) > 1 {
		sql = quoted + " " + op + " (" + strings.Join(sqlValues, ", ") + ")"
	} else {
		eq := "="
		if op != "IN" {
			eq = "<>"
		}
		sql = quoted + eq + sqlValues[0]
	}
	if nullCondition != "" {
		if op == "IN" {
			return sql + " OR " + nullCondition, nil
		}
		return sql + " AND " + nullCondition, nil
	}
	return sql, nil
}

func emptyIn(op string) string {
	if op == "IN" {
		return "0=1"
	}
	return ""
}

func buildSubQueryIn(b *QueryBuilder, op string, column any, sub *Query, params Params) (string, error) {
	sql, err := b.build(sub, params)
	if err != nil {
		return "", err
	}
	switch c := column.(type) {
	case []string:
		quoted := make([]string, len(c))
		for i, name := range c {
			quoted[i] = b.quoter.QuoteColumnName(name)
		}
		return "(" + strings.Join(quoted, ", ") + ") " + op + " (" + sql + ")", nil
	case string:
		if !strings.Contains(c, "(") {
			c = b.quoter.QuoteColumnName(c)
		}
		return c + " " + op + " (" + sql + ")", nil
	}
	return "", dberr.Argument("IN column must be a string or []string, got %T", column)
}

func buildCompositeIn(b *QueryBuilder, op string, columns []string, values []any, params Params) (string, error) {
	rows := make([]string, 0, len(values))
	for _, v := range values {
		row, ok := toColumns(v)
		if !ok {
			return "", dberr.Argument("composite IN values must be maps or *Columns, got %T", v)
		}
		vs := make([]string, 0, len(columns))
		for _, name := range columns {
			value, _ := row.Get(name)
			if value == nil {
				vs = append(vs, "NULL")
				continue
			}
			ph, err := b.placeholder(value, params)
			if err != nil {
				return "", err
			}
			vs = append(vs, ph)
		}
		rows = append(rows, "("+strings.Join(vs, ", ")+")")
	}
	if len(rows) == 0 {
		return emptyIn(op), nil
	}
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = b.quoter.QuoteColumnName(name)
	}
	return "(" + strings.Join(quoted, ", ") + ") " + op + " (" + strings.Join(rows, ", ") + ")", nil
}

// buildExpandedCompositeIn renders a composite IN as an OR of ANDs for
// backends without row-value comparison.
func buildExpandedCompositeIn(b *QueryBuilder, op string, columns []string, values []any, params Params) (string, error) {
	in := op == "IN"
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = b.quoter.QuoteColumnName(name)
	}
	rows := make([]string, 0, len(values))
	for _, v := range values {
		row, ok := toColumns(v)
		if !ok {
			return "", dberr.Argument("composite IN values must be maps or *Columns, got %T", v)
		}
		vs := make([]string, 0, len(columns))
		for i, name := range columns {
			value, _ := row.Get(name)
			if value == nil {
				if in {
					vs = append(vs, quoted[i]+" IS NULL")
				} else {
					vs = append(vs, quoted[i]+" IS NOT NULL")
				}
				continue
			}
			ph, err := b.placeholder(value, params)
			if err != nil {
				return "", err
			}
			if in {
				vs = append(vs, quoted[i]+" = "+ph)
			} else {
				vs = append(vs, quoted[i]+" != "+ph)
			}
		}
		if in {
			rows = append(rows, "("+strings.Join(vs, " AND ")+")")
		} else {
			rows = append(rows, "("+strings.Join(vs, " OR ")+")")
		}
	}
	if len(rows) == 0 {
		return emptyIn(op), nil
	}
	if in {
		return "(" + strings.Join(rows, " OR ") + ")", nil
	}
	return "(" + strings.Join(rows, " AND ") + ")", nil
}

func buildLike(b *QueryBuilder, e Expression, params Params) (string, error) {
	c := e.(*LikeCondition)
	m := likeOperatorRegex.FindStringSubmatch(strings.ToUpper(c.Operator))
	if m == nil {
		return "", dberr.Argument("invalid LIKE operator %q", c.Operator)
	}
	andOr := " AND "
	if m[1] != "" {
		andOr = " " + m[1]
	}
	not := m[3] != ""
	op := m[2]

	values := listValues(c.Values)
	if len(values) == 0 {
		if not {
			return "", nil
		}
		return "0=1", nil
	}

	column, err := b.column(c.Column, params)
	if err != nil {
		return "", err
	}

	replacements, escapeSQL := b.grammar.likeEscaping()
	if c.Escape != nil {
		replacements = c.Escape
	}
	var escaper *strings.Replacer
	if len(replacements) > 0 {
		pairs := make([]string, 0, len(replacements)*2)
		for from, to := range replacements {
			pairs = append(pairs, from, to)
		}
		escaper = strings.NewReplacer(pairs...)
	}

	parts := make([]string, 0, len(values))
	for _, v := range values {
		var ph string
		switch x := v.(type) {
		case Expression:
			ph, err = b.BuildExpression(x, params)
			if err != nil {
				return "", err
			}
		default:
			ph = params.Bind(likePattern(v, escaper))
		}
		parts = append(parts, column+" "+op+" "+ph+escapeSQL)
	}
	return strings.Join(parts, andOr), nil
}

// likePattern escapes v and wraps it in % wildcards. With escaping disabled
// the value is bound unchanged.
func likePattern(v any, escaper *strings.Replacer) any {
	if escaper == nil {
		return v
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return "%" + escaper.Replace(s) + "%"
}

// isList reports whether v is a slice or array other than []byte.
func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// listValues flattens a slice or array into []any; any other value becomes a
// single-element list.
func listValues(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	if !isList(v) {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
