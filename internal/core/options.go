package core

import (
	"context"
	"database/sql"
	"math/rand/v2"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/logger"
	"github.com/coregx/dbal/internal/tracer"
)

// OpenFunc creates a database handle for a driver DSN. The Connection pings
// the handle afterwards, so implementations may be lazy like sql.Open.
type OpenFunc func(ctx context.Context, driverName, dsn string) (*sql.DB, error)

// AfterOpenFunc runs once a handle is established, before it is used.
type AfterOpenFunc func(ctx context.Context, db *sql.DB) error

// Option is a functional option for configuring a Connection.
type Option func(*options)

type options struct {
	logger      logger.Logger
	sanitizer   *logger.Sanitizer
	tracer      tracer.Tracer
	queryHook   QueryHook
	statusCache cache.Cache
	queryCache  cache.Cache
	schemaCache cache.Cache
	rand        *rand.Rand
	open        OpenFunc
	afterOpen   []AfterOpenFunc
	db          *sql.DB
}

// defaultStatusCache is shared by every Connection that does not configure its
// own, so dead servers are skipped process-wide.
var defaultStatusCache = cache.NewMemoryCache()

func defaultOptions() *options {
	return &options{
		logger:      &logger.NoopLogger{},
		sanitizer:   logger.NewSanitizer(nil),
		tracer:      &tracer.NoopTracer{},
		statusCache: defaultStatusCache,
		open: func(_ context.Context, driverName, dsn string) (*sql.DB, error) {
			return sql.Open(driverName, dsn)
		},
	}
}

// WithLogger sets the logger used for connection and query events.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSensitiveFields replaces the column names whose values are masked in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(o *options) {
		o.sanitizer = logger.NewSanitizer(fields)
	}
}

// WithTracer enables tracing of connection attempts and commands.
func WithTracer(t tracer.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithQueryHook sets a callback invoked after every command.
func WithQueryHook(hook QueryHook) Option {
	return func(o *options) {
		o.queryHook = hook
	}
}

// WithStatusCache sets the cache remembering dead pool servers. nil disables
// the circuit breaker.
func WithStatusCache(c cache.Cache) Option {
	return func(o *options) {
		o.statusCache = c
	}
}

// WithQueryCache sets the cache storing query results inside Cache scopes.
func WithQueryCache(c cache.Cache) Option {
	return func(o *options) {
		o.queryCache = c
	}
}

// WithSchemaCache sets the cache persisting table metadata.
func WithSchemaCache(c cache.Cache) Option {
	return func(o *options) {
		o.schemaCache = c
	}
}

// WithRand sets the random source used to shuffle pools.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithOpenFunc replaces sql.Open as the way handles are created.
func WithOpenFunc(fn OpenFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.open = fn
		}
	}
}

// WithAfterOpen registers a callback run on every newly opened handle.
func WithAfterOpen(fn AfterOpenFunc) Option {
	return func(o *options) {
		o.afterOpen = append(o.afterOpen, fn)
	}
}

// WithDB makes the Connection use an existing handle instead of opening one.
// The caller keeps ownership: Close does not close db.
func WithDB(db *sql.DB) Option {
	return func(o *options) {
		o.db = db
	}
}
