package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder(t *testing.T) (*OtelTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return FromProvider(tp), exporter
}

func attrs(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	got, span := (&NoopTracer{}).StartSpan(ctx, "dbal.command.query")
	assert.Equal(t, ctx, got)
	require.NotNil(t, span)

	assert.NotPanics(t, func() {
		span.SetAttributes(attribute.String("db.system", "sqlite"))
		span.RecordError(errors.New("boom"))
		span.SetStatus(codes.Error, "boom")
		span.End()
	})
}

func TestOtelTracer_StartSpan(t *testing.T) {
	tr, exporter := newRecorder(t)

	ctx, span := tr.StartSpan(context.Background(), "dbal.connection.open")
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	span.SetAttributes(attribute.String("dbal.connection.id", "c1"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "dbal.connection.open", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, "c1", attrs(spans[0])["dbal.connection.id"].AsString())
}

func TestAddQueryAttributes(t *testing.T) {
	tests := []struct {
		name       string
		meta       QueryMetadata
		wantStatus codes.Code
		wantAttrs  map[attribute.Key]string
		absent     []attribute.Key
	}{
		{
			name: "successful update",
			meta: QueryMetadata{
				SQL:          `UPDATE "user" SET "name"=$1 WHERE "id"=$2`,
				Args:         []any{"Bob", 1},
				Duration:     1500 * time.Microsecond,
				RowsAffected: 1,
				Database:     "pgsql",
				Operation:    "UPDATE",
				Table:        "user",
				ConnectionID: "c1",
			},
			wantStatus: codes.Ok,
			wantAttrs: map[attribute.Key]string{
				"db.system":          "postgresql",
				"db.operation":       "UPDATE",
				"db.sql.table":       "user",
				"dbal.connection.id": "c1",
			},
		},
		{
			name: "failed select",
			meta: QueryMetadata{
				SQL:       "SELECT * FROM `missing`",
				Error:     errors.New("table missing does not exist"),
				Database:  "mysql",
				Operation: "SELECT",
			},
			wantStatus: codes.Error,
			wantAttrs:  map[attribute.Key]string{"db.system": "mysql"},
			absent:     []attribute.Key{"db.rows_affected", "db.sql.table", "dbal.connection.id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, exporter := newRecorder(t)
			_, span := tr.StartSpan(context.Background(), "dbal.command.execute")
			AddQueryAttributes(span, &tt.meta)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			got := attrs(spans[0])
			assert.Equal(t, tt.wantStatus, spans[0].Status.Code)
			assert.Equal(t, tt.meta.SQL, got["db.statement"].AsString())
			assert.Equal(t, int64(len(tt.meta.Args)), got["db.args"].AsInt64())
			for k, v := range tt.wantAttrs {
				assert.Equal(t, v, got[k].AsString(), k)
			}
			for _, k := range tt.absent {
				_, ok := got[k]
				assert.False(t, ok, k)
			}
			if tt.meta.Error != nil {
				assert.Equal(t, tt.meta.Error.Error(), spans[0].Status.Description)
				require.Len(t, spans[0].Events, 1)
				assert.Equal(t, "exception", spans[0].Events[0].Name)
			} else {
				assert.Equal(t, tt.meta.RowsAffected, got["db.rows_affected"].AsInt64())
				assert.InDelta(t, 1.5, got["db.duration_ms"].AsFloat64(), 0.001)
			}
		})
	}
}

func TestSystem(t *testing.T) {
	tests := map[string]string{
		"pgsql":  "postgresql",
		"sqlsrv": "mssql",
		"oci":    "oracle",
		"mysql":  "mysql",
		"sqlite": "sqlite",
	}
	for dialect, want := range tests {
		assert.Equal(t, want, System(dialect), dialect)
	}
}

func TestDetectOperation(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM users", "SELECT"},
		{"  select 1", "SELECT"},
		{"(SELECT 1) UNION (SELECT 2)", "SELECT"},
		{"WITH t AS (SELECT 1) SELECT * FROM t", "SELECT"},
		{"INSERT INTO users (name) VALUES (:qp0)", "INSERT"},
		{"REPLACE INTO users (id) VALUES (1)", "INSERT"},
		{"\n\tUPDATE users SET name = :qp0", "UPDATE"},
		{"DELETE FROM users", "DELETE"},
		{"MERGE INTO users USING dual ON (1=1)", "MERGE"},
		{"CREATE TABLE t (id INT)", "CREATE"},
		{"ALTER TABLE t ADD c INT", "ALTER"},
		{"DROP TABLE t", "DROP"},
		{"TRUNCATE TABLE t", "TRUNCATE"},
		{"COMMENT ON TABLE t IS 'x'", "COMMENT"},
		{"PRAGMA table_info(t)", "UNKNOWN"},
		{"", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectOperation(tt.sql))
		})
	}
}

func BenchmarkAddQueryAttributes_Noop(b *testing.B) {
	_, span := (&NoopTracer{}).StartSpan(context.Background(), "bench")
	meta := &QueryMetadata{SQL: "SELECT 1", Database: "sqlite", Operation: "SELECT"}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		AddQueryAttributes(span, meta)
	}
}
