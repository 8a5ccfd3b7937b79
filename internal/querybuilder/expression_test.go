package querybuilder

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal/internal/dberr"
)

type nowExpression struct{}

func (nowExpression) SQLExpression() {}

type coalesce struct {
	Column  string
	Default any
}

func (coalesce) SQLExpression() {}

func (c coalesce) BuildSQL(b *QueryBuilder, params Params) (string, error) {
	return "COALESCE(" + b.Quoter().QuoteColumnName(c.Column) + ", " + params.Bind(c.Default) + ")", nil
}

type tagged interface {
	Expression
	Tag() string
}

type taggedExpression struct{ tag string }

func (taggedExpression) SQLExpression() {}
func (e taggedExpression) Tag() string  { return e.tag }

func constBuilder(sql string) BuildFunc {
	return func(*QueryBuilder, Expression, Params) (string, error) { return sql, nil }
}

func TestRegistry_ExactMatchWins(t *testing.T) {
	r := newRegistry()
	r.register(TypeOf[Expression](), constBuilder("base"))
	r.register(reflect.TypeOf(nowExpression{}), constBuilder("exact"))

	fn, ok := r.lookup(reflect.TypeOf(nowExpression{}))
	require.True(t, ok)
	sql, err := fn(nil, nowExpression{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "exact", sql)
}

func TestRegistry_LaterBaseTakesPriority(t *testing.T) {
	r := newRegistry()
	r.register(TypeOf[Expression](), constBuilder("expression"))
	r.register(TypeOf[tagged](), constBuilder("tagged"))

	fn, ok := r.lookup(reflect.TypeOf(taggedExpression{}))
	require.True(t, ok)
	sql, _ := fn(nil, taggedExpression{}, nil)
	assert.Equal(t, "tagged", sql)

	fn, ok = r.lookup(reflect.TypeOf(nowExpression{}))
	require.True(t, ok)
	sql, _ = fn(nil, nowExpression{}, nil)
	assert.Equal(t, "expression", sql)
}

func TestRegistry_ReRegisterKeepsPriority(t *testing.T) {
	r := newRegistry()
	r.register(TypeOf[Expression](), constBuilder("expression"))
	r.register(TypeOf[tagged](), constBuilder("tagged"))
	r.register(TypeOf[Expression](), constBuilder("expression v2"))

	fn, _ := r.lookup(reflect.TypeOf(taggedExpression{}))
	sql, _ := fn(nil, taggedExpression{}, nil)
	assert.Equal(t, "tagged", sql)

	fn, _ = r.lookup(reflect.TypeOf(nowExpression{}))
	sql, _ = fn(nil, nowExpression{}, nil)
	assert.Equal(t, "expression v2", sql)
}

func TestRegistry_ResolvedIsMemoizedAndReset(t *testing.T) {
	r := newRegistry()
	r.register(TypeOf[tagged](), constBuilder("tagged"))

	typ := reflect.TypeOf(taggedExpression{})
	_, ok := r.lookup(typ)
	require.True(t, ok)
	assert.Contains(t, r.resolved, typ)

	r.register(reflect.TypeOf(nowExpression{}), constBuilder("now"))
	assert.Empty(t, r.resolved)
}

func TestRegistry_Unknown(t *testing.T) {
	r := newRegistry()
	_, ok := r.lookup(reflect.TypeOf(nowExpression{}))
	assert.False(t, ok)
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	r := newRegistry()
	r.register(reflect.TypeOf(nowExpression{}), constBuilder("now"))
	c := r.clone()
	c.register(reflect.TypeOf(taggedExpression{}), constBuilder("tagged"))

	_, ok := r.lookup(reflect.TypeOf(taggedExpression{}))
	assert.False(t, ok)
	_, ok = c.lookup(reflect.TypeOf(nowExpression{}))
	assert.True(t, ok)
}

func TestBuildExpression(t *testing.T) {
	b := newBuilder(t, "pgsql")

	t.Run("unregistered", func(t *testing.T) {
		_, err := b.BuildExpression(nowExpression{}, Params{})
		assert.ErrorIs(t, err, dberr.ErrArgument)
	})

	t.Run("self builder", func(t *testing.T) {
		params := Params{}
		sql, err := b.BuildExpression(coalesce{Column: "score", Default: 0}, params)
		require.NoError(t, err)
		assert.Equal(t, `COALESCE("score", :qp0)`, sql)
		assert.Equal(t, Params{":qp0": 0}, params)
	})

	t.Run("registered", func(t *testing.T) {
		b := newBuilder(t, "pgsql")
		b.RegisterExpressionBuilder(reflect.TypeOf(nowExpression{}), constBuilder("NOW()"))
		sql, err := b.BuildCondition(map[string]any{"updated_at": nowExpression{}}, Params{})
		require.NoError(t, err)
		assert.Equal(t, `"updated_at"=NOW()`, sql)
	})

	t.Run("raw expression params", func(t *testing.T) {
		params := Params{}
		sql, err := b.BuildExpression(NewExp("visits + :step", Params{":step": 2}), params)
		require.NoError(t, err)
		assert.Equal(t, "visits + :step", sql)
		assert.Equal(t, Params{":step": 2}, params)
	})
}

func TestBuildJSON(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		expr     *JSONExpression
		expected string
		value    any
	}{
		{"pgsql typed", "pgsql", &JSONExpression{Value: map[string]any{"a": 1}, Type: "jsonb"}, ":qp0::jsonb", `{"a":1}`},
		{"pgsql untyped", "pgsql", JSON([]int{1, 2}), ":qp0", "[1,2]"},
		{"mysql", "mysql", JSON(map[string]any{"a": true}), "CAST(:qp0 AS JSON)", `{"a":true}`},
		{"raw string", "sqlite", JSON(`{"x":1}`), ":qp0", `{"x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Params{}
			sql, err := newBuilder(t, tt.dialect).BuildExpression(tt.expr, params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
			assert.Equal(t, tt.value, params[":qp0"])
		})
	}

	t.Run("nil", func(t *testing.T) {
		params := Params{}
		sql, err := newBuilder(t, "pgsql").BuildExpression(JSON(nil), params)
		require.NoError(t, err)
		assert.Equal(t, "NULL", sql)
		assert.Empty(t, params)
	})
}

func TestBuildArray(t *testing.T) {
	params := Params{}
	sql, err := newBuilder(t, "pgsql").BuildCondition([]any{"@>", "tags", Array("text", "go", "sql")}, params)
	require.NoError(t, err)
	assert.Equal(t, `"tags" @> ARRAY[:qp0, :qp1]::text[]`, sql)
	assert.Equal(t, Params{":qp0": "go", ":qp1": "sql"}, params)

	_, err = newBuilder(t, "mysql").BuildExpression(Array("int", 1), Params{})
	assert.ErrorIs(t, err, dberr.ErrArgument)
}
