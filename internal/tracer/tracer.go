// Package tracer connects dbal to distributed tracing. Connections open one
// span per connect and per command; OpenTelemetry is supported through
// OtelTracer and the default NoopTracer costs nothing.
package tracer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies dbal spans in a TracerProvider.
const InstrumentationName = "github.com/coregx/dbal"

// Tracer starts spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the part of a tracing span dbal writes to.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer returns ctx unchanged and a span that records nothing.
type NoopTracer struct{}

func (*NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...attribute.KeyValue) {}
func (noopSpan) RecordError(error)                   {}
func (noopSpan) SetStatus(codes.Code, string)        {}
func (noopSpan) End()                                {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps tracer, which must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// FromProvider returns an OtelTracer using the dbal instrumentation scope of tp.
func FromProvider(tp trace.TracerProvider) *OtelTracer {
	return NewOtelTracer(tp.Tracer(InstrumentationName))
}

// StartSpan starts a client span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }
func (s otelSpan) RecordError(err error)                     { s.span.RecordError(err) }
func (s otelSpan) End()                                      { s.span.End() }

func (s otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// QueryMetadata describes one executed statement.
type QueryMetadata struct {
	SQL          string
	Args         []any
	Duration     time.Duration
	RowsAffected int64
	Error        error
	// Database is the dialect name, e.g. "pgsql".
	Database     string
	Operation    string
	Table        string
	ConnectionID string
}

// System maps a dialect name to the OpenTelemetry db.system value.
func System(dialect string) string {
	switch dialect {
	case "pgsql":
		return "postgresql"
	case "sqlsrv":
		return "mssql"
	case "oci":
		return "oracle"
	}
	return dialect
}

// AddQueryAttributes records meta on span using the OpenTelemetry database
// conventions and sets the span status from meta.Error.
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", System(meta.Database)),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", meta.Operation),
		attribute.Int("db.args", len(meta.Args)),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
	}
	if meta.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", meta.Table))
	}
	if meta.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", meta.RowsAffected))
	}
	if meta.ConnectionID != "" {
		attrs = append(attrs, attribute.String("dbal.connection.id", meta.ConnectionID))
	}
	span.SetAttributes(attrs...)
	SetStatus(span, meta.Error)
}

// SetStatus marks span as failed with err, or as successful when err is nil.
func SetStatus(span Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

var operations = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "MERGE",
	"CREATE", "ALTER", "DROP", "TRUNCATE", "COMMENT",
}

// DetectOperation returns the leading keyword of sql, or UNKNOWN. Common
// table expressions report SELECT and REPLACE reports INSERT.
func DetectOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimLeft(sql, " \t\r\n("))
	switch {
	case strings.HasPrefix(sql, "WITH"):
		return "SELECT"
	case strings.HasPrefix(sql, "REPLACE"):
		return "INSERT"
	}
	for _, op := range operations {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "UNKNOWN"
}
