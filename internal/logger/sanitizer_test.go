package logger

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizer_IsSensitive(t *testing.T) {
	s := NewSanitizer(nil)

	tests := []struct {
		column string
		want   bool
	}{
		{"password", true},
		{`"password"`, true},
		{"`PASSWORD`", true},
		{"[api_key]", true},
		{`"u"."api_key"`, true},
		{"user_password", true},
		{"password_hash", true},
		{"refresh_token", true},
		{"author", false},
		{"passwords", false},
		{"email", false},
		{"id", false},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsSensitive(tt.column))
		})
	}
}

func TestSanitizer_MaskParams(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params map[string]any
		want   map[string]any
	}{
		{
			name:   "update by comparison",
			sql:    `UPDATE "user" SET "password"=:qp0 WHERE "id"=:qp1`,
			params: map[string]any{":qp0": "s3cret", ":qp1": 7},
			want:   map[string]any{":qp0": Mask, ":qp1": 7},
		},
		{
			name:   "insert column list",
			sql:    `INSERT INTO "session" ("user_id", "token") VALUES (:qp0, :qp1)`,
			params: map[string]any{":qp0": 12, ":qp1": "abc-xyz"},
			want:   map[string]any{":qp0": 12, ":qp1": Mask},
		},
		{
			name: "batch insert rows",
			sql:  "INSERT INTO `account` (`name`, `api_key`) VALUES (:qp0, :qp1), (:qp2, :qp3)",
			params: map[string]any{
				":qp0": "a", ":qp1": "k1",
				":qp2": "b", ":qp3": "k2",
			},
			want: map[string]any{
				":qp0": "a", ":qp1": Mask,
				":qp2": "b", ":qp3": Mask,
			},
		},
		{
			name:   "qualified column",
			sql:    `SELECT * FROM "integration" "i" WHERE "i"."api_key"=:qp0 AND "i"."active"=:qp1`,
			params: map[string]any{":qp0": "sk_test", ":qp1": true},
			want:   map[string]any{":qp0": Mask, ":qp1": true},
		},
		{
			name:   "like comparison",
			sql:    `SELECT * FROM "session" WHERE "token" LIKE :qp0`,
			params: map[string]any{":qp0": "abc%"},
			want:   map[string]any{":qp0": Mask},
		},
		{
			name:   "sensitive column without attributable placeholder",
			sql:    `SELECT * FROM "user" WHERE LOWER("password") = LOWER(:p) AND "id" IN (:q)`,
			params: map[string]any{":p": "x", ":q": 3},
			want:   map[string]any{":p": Mask, ":q": Mask},
		},
		{
			name:   "similar column name",
			sql:    `SELECT * FROM "book" WHERE "author"=:qp0`,
			params: map[string]any{":qp0": "Le Guin"},
			want:   map[string]any{":qp0": "Le Guin"},
		},
		{
			name:   "no sensitive columns",
			sql:    `SELECT * FROM "user" WHERE "id"=:qp0 AND "name"=:qp1`,
			params: map[string]any{":qp0": 1, ":qp1": "Alice"},
			want:   map[string]any{":qp0": 1, ":qp1": "Alice"},
		},
		{
			name:   "no params",
			sql:    `UPDATE "user" SET "password"=NULL`,
			params: map[string]any{},
			want:   map[string]any{},
		},
	}

	s := NewSanitizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.MaskParams(tt.sql, tt.params))
		})
	}
}

func TestSanitizer_MaskParams_DoesNotModifyInput(t *testing.T) {
	s := NewSanitizer(nil)
	params := map[string]any{":qp0": "s3cret"}

	masked := s.MaskParams(`UPDATE "user" SET "password"=:qp0`, params)

	assert.Equal(t, Mask, masked[":qp0"])
	assert.Equal(t, "s3cret", params[":qp0"])
}

func TestSanitizer_CustomFields(t *testing.T) {
	s := NewSanitizer([]string{"salary", "Private_Data"})

	assert.True(t, s.IsSensitive("salary"))
	assert.True(t, s.IsSensitive("private_data"))
	assert.False(t, s.IsSensitive("password"))

	got := s.MaskParams(`UPDATE "employee" SET "salary"=:qp0, "password"=:qp1`, map[string]any{":qp0": 100, ":qp1": "x"})
	assert.Equal(t, map[string]any{":qp0": Mask, ":qp1": "x"}, got)

	params := map[string]any{":qp0": "x"}
	assert.Equal(t, params, s.MaskParams(`UPDATE "user" SET "password"=:qp0`, params))
}

func TestSanitizer_FormatParams(t *testing.T) {
	s := NewSanitizer(nil)

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{name: "empty", params: nil, want: "{}"},
		{name: "sorted", params: map[string]any{":qp1": 2, ":qp0": "a"}, want: "{:qp0=a, :qp1=2}"},
		{name: "null", params: map[string]any{":v": nil}, want: "{:v=NULL}"},
		{name: "masked", params: map[string]any{":p": Mask}, want: "{:p=" + Mask + "}"},
		{
			name:   "truncated",
			params: map[string]any{":blob": strings.Repeat("x", 150)},
			want:   "{:blob=" + strings.Repeat("x", 100) + "...}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.FormatParams(tt.params))
		})
	}
}

func TestSanitizer_Concurrent(t *testing.T) {
	s := NewSanitizer(nil)
	sql := `UPDATE "user" SET "password"=:qp0 WHERE "id"=:qp1`

	var wg sync.WaitGroup
	results := make([]map[string]any, 50)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.MaskParams(sql, map[string]any{":qp0": "x", ":qp1": i})
		}()
	}
	wg.Wait()

	for i, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, Mask, got[":qp0"])
		assert.Equal(t, i, got[":qp1"])
	}
}

func BenchmarkSanitizer_MaskParams(b *testing.B) {
	s := NewSanitizer(nil)
	sql := `INSERT INTO "user" ("name", "email", "password") VALUES (:qp0, :qp1, :qp2)`
	params := map[string]any{":qp0": "Alice", ":qp1": "alice@example.com", ":qp2": "s3cret"}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = s.MaskParams(sql, params)
	}
}
