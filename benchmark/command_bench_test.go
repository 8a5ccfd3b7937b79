package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/coregx/dbal"
)

type BenchUser struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Age   int64  `db:"age"`
}

// setupBenchDB opens an in-memory SQLite database holding a "users" table.
func setupBenchDB(b *testing.B, opts ...dbal.Option) *dbal.Connection {
	ctx := context.Background()
	conn, err := dbal.New(dbal.DefaultConfig("sqlite::memory:"), opts...)
	if err != nil {
		b.Fatalf("Failed to create connection: %v", err)
	}
	b.Cleanup(func() {
		conn.Close()
	})

	_, err = conn.CreateCommand("", nil).CreateTable("users", dbal.Cols(
		"id", "pk",
		"name", "string NOT NULL",
		"email", "string NOT NULL",
		"age", "integer",
	), "").Execute(ctx)
	if err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}
	return conn
}

func seedUsers(b *testing.B, conn *dbal.Connection, n int) {
	ctx := context.Background()
	_, err := conn.CreateCommand("", nil).BatchInsert(ctx, "users", []string{"name", "email", "age"}, userRows(n)).Execute(ctx)
	if err != nil {
		b.Fatalf("Failed to seed users: %v", err)
	}
}

func userRows(n int) func(yield func([]any) bool) {
	return func(yield func([]any) bool) {
		for j := range n {
			if !yield([]any{fmt.Sprintf("User %d", j), fmt.Sprintf("user%d@example.com", j), 20 + j}) {
				return
			}
		}
	}
}

func BenchmarkBatchInsert(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("%drows", n), func(b *testing.B) {
			ctx := context.Background()
			conn := setupBenchDB(b)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := conn.CreateCommand("", nil).BatchInsert(ctx, "users", []string{"name", "email", "age"}, userRows(n)).Execute(ctx); err != nil {
					b.Fatalf("Batch insert failed: %v", err)
				}

				b.StopTimer()
				conn.CreateCommand("DELETE FROM users", nil).Execute(ctx)
				b.StartTimer()
			}
		})
	}
}

func BenchmarkSelect(b *testing.B) {
	ctx := context.Background()
	conn := setupBenchDB(b)
	seedUsers(b, conn, 100)

	b.Run("Raw", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := conn.CreateCommand("SELECT * FROM users WHERE age > :age", dbal.Params{"age": 50}).QueryAll(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Builder", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			q := dbal.NewQuery().From("users").Where(dbal.Compare("age", ">", 50)).OrderBy("id")
			if _, err := conn.CreateCommand("", nil).Select(q).QueryAll(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("ScanAll", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var users []BenchUser
			if err := conn.CreateCommand("SELECT * FROM users", nil).ScanAll(ctx, &users); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("QueryCache", func(b *testing.B) {
		cached := setupBenchDB(b, dbal.WithQueryCache(dbal.NewMemoryCache()))
		seedUsers(b, cached, 100)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			cmd := cached.CreateCommand("SELECT * FROM users WHERE age > :age", dbal.Params{"age": 50}).Cache(0)
			if _, err := cmd.QueryAll(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkStatementCache(b *testing.B) {
	ctx := context.Background()
	for _, capacity := range []int{-1, 0} {
		name := "Disabled"
		if capacity == 0 {
			name = "Enabled"
		}
		b.Run(name, func(b *testing.B) {
			cfg := dbal.DefaultConfig("sqlite::memory:")
			cfg.StmtCacheCapacity = capacity
			conn, err := dbal.New(cfg)
			if err != nil {
				b.Fatal(err)
			}
			b.Cleanup(func() { conn.Close() })

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := conn.CreateCommand("SELECT :a + :b", dbal.Params{"a": i, "b": 1}).QueryScalar(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkBuild(b *testing.B) {
	conn := setupBenchDB(b)
	builder := conn.QueryBuilder()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q := dbal.NewQuery().
			Select("id", "name").
			From("users u").
			Where(dbal.And(map[string]any{"status": 1}, dbal.In("role", []string{"admin", "editor"}))).
			OrWhere(dbal.Like("name", "adm")).
			OrderBy("id DESC").
			Limit(10)
		if _, _, err := builder.Build(q, nil); err != nil {
			b.Fatal(err)
		}
	}
}
