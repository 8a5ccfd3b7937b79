package schema

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
	"github.com/coregx/dbal/internal/logger"
	"github.com/coregx/dbal/internal/quoter"
)

// CacheVersion stamps persisted metadata. Entries with another version are
// ignored and reloaded.
const CacheVersion = 1

// MetadataType names one kind of per-table metadata.
type MetadataType string

// Metadata types loaded lazily by Schema.
const (
	MetaSchema      MetadataType = "schema"
	MetaPrimaryKey  MetadataType = "primaryKey"
	MetaForeignKeys MetadataType = "foreignKeys"
	MetaIndexes     MetadataType = "indexes"
	MetaUniques     MetadataType = "uniques"
	MetaChecks      MetadataType = "checks"
)

// intSize is the platform integer width used by GetColumnGoType.
var intSize = strconv.IntSize

// Querier runs metadata queries. *sql.DB, *sql.Tx and the dbal Connection satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options configures a Schema.
type Options struct {
	Dialect dialects.Dialect
	Quoter  *quoter.Quoter
	DB      Querier
	// DSN and Username identify the logical database in cache keys and tags.
	DSN      string
	Username string
	// Cache persists metadata across Schema instances; nil keeps it in-process only.
	Cache         cache.Cache
	CacheDuration time.Duration
	// CacheExclude lists table names that are never persisted.
	CacheExclude []string
	Categories   TypeCategories
	// ErrorCategories maps message substrings to execution error categories.
	ErrorCategories map[string]dberr.Category
	// Loader overrides the dialect's metadata loader.
	Loader Loader
	Logger logger.Logger
	// Concurrency bounds parallel table loads in GetTableSchemas.
	Concurrency int
}

// Schema discovers and caches table metadata for one connection identity.
type Schema struct {
	dialect    dialects.Dialect
	quoter     *quoter.Quoter
	db         Querier
	loader     Loader
	classifier *dberr.Classifier
	categories TypeCategories
	logger     logger.Logger
	opts       Options

	group singleflight.Group

	mu            sync.Mutex
	metadata      map[string]*tableMetadata
	tableNames    map[string][]string
	schemaNames   []string
	serverVersion string
}

// New creates a Schema.
func New(opts Options) *Schema {
	if opts.Quoter == nil {
		opts.Quoter = quoter.ForDialect(opts.Dialect, "")
	}
	if opts.Categories == nil {
		opts.Categories = DefaultTypeCategories()
	}
	if opts.Logger == nil {
		opts.Logger = &logger.NoopLogger{}
	}
	if opts.Loader == nil {
		opts.Loader = LoaderFor(opts.Dialect)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Schema{
		dialect:    opts.Dialect,
		quoter:     opts.Quoter,
		db:         opts.DB,
		loader:     opts.Loader,
		classifier: dberr.NewClassifier(opts.ErrorCategories),
		categories: opts.Categories,
		logger:     opts.Logger,
		opts:       opts,
		metadata:   make(map[string]*tableMetadata),
		tableNames: make(map[string][]string),
	}
}

// Dialect returns the schema's dialect.
func (s *Schema) Dialect() dialects.Dialect { return s.dialect }

// Quoter returns the schema's quoter.
func (s *Schema) Quoter() *quoter.Quoter { return s.quoter }

// DB returns the querier used by metadata loaders.
func (s *Schema) DB() Querier { return s.db }

// TypeCategories returns the type categorization owned by this schema.
func (s *Schema) TypeCategories() TypeCategories { return s.categories }

// NewColumn creates a column bound to this schema's type categories.
func (s *Schema) NewColumn(name string) *ColumnSchema {
	return &ColumnSchema{Name: name, categories: s.categories}
}

// GetTableSchema returns the metadata of the named table, or nil if it does not exist.
func (s *Schema) GetTableSchema(ctx context.Context, name string, refresh bool) (*TableSchema, error) {
	v, err := s.getTableMetadata(ctx, name, MetaSchema, refresh)
	if err != nil {
		return nil, err
	}
	t, _ := v.(*TableSchema)
	return t, nil
}

// GetTablePrimaryKey returns the primary key constraint of a table, or nil.
func (s *Schema) GetTablePrimaryKey(ctx context.Context, name string, refresh bool) (*Constraint, error) {
	v, err := s.getTableMetadata(ctx, name, MetaPrimaryKey, refresh)
	if err != nil {
		return nil, err
	}
	c, _ := v.(*Constraint)
	return c, nil
}

// GetTableForeignKeys returns the foreign keys of a table.
func (s *Schema) GetTableForeignKeys(ctx context.Context, name string, refresh bool) ([]ForeignKeyConstraint, error) {
	v, err := s.getTableMetadata(ctx, name, MetaForeignKeys, refresh)
	if err != nil {
		return nil, err
	}
	fks, _ := v.([]ForeignKeyConstraint)
	return fks, nil
}

// GetTableIndexes returns the indexes of a table.
func (s *Schema) GetTableIndexes(ctx context.Context, name string, refresh bool) ([]IndexConstraint, error) {
	v, err := s.getTableMetadata(ctx, name, MetaIndexes, refresh)
	if err != nil {
		return nil, err
	}
	idx, _ := v.([]IndexConstraint)
	return idx, nil
}

// GetTableUniques returns the unique constraints of a table.
func (s *Schema) GetTableUniques(ctx context.Context, name string, refresh bool) ([]Constraint, error) {
	v, err := s.getTableMetadata(ctx, name, MetaUniques, refresh)
	if err != nil {
		return nil, err
	}
	u, _ := v.([]Constraint)
	return u, nil
}

// GetTableChecks returns the check constraints of a table.
func (s *Schema) GetTableChecks(ctx context.Context, name string, refresh bool) ([]CheckConstraint, error) {
	v, err := s.getTableMetadata(ctx, name, MetaChecks, refresh)
	if err != nil {
		return nil, err
	}
	c, _ := v.([]CheckConstraint)
	return c, nil
}

// GetTableSchemas returns the metadata of every table in a schema ("" for the
// default schema). Tables whose metadata cannot be loaded are logged and skipped.
func (s *Schema) GetTableSchemas(ctx context.Context, schemaName string, refresh bool) ([]*TableSchema, error) {
	names, err := s.GetTableNames(ctx, schemaName, refresh)
	if err != nil {
		return nil, err
	}

	tables := make([]*TableSchema, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, name := range names {
		if schemaName != "" {
			name = schemaName + "." + name
		}
		g.Go(func() error {
			t, err := s.GetTableSchema(gctx, name, refresh)
			if err != nil {
				s.logger.Warn("table metadata unavailable", "table", name, "error", err)
				return nil
			}
			tables[i] = t
			return nil
		})
	}
	_ = g.Wait()

	result := tables[:0]
	for _, t := range tables {
		if t != nil {
			result = append(result, t)
		}
	}
	return result, nil
}

// GetTableNames returns the table names of a schema ("" for the default schema).
// Names are kept in process until refresh is requested or Refresh is called.
func (s *Schema) GetTableNames(ctx context.Context, schemaName string, refresh bool) ([]string, error) {
	if !refresh {
		s.mu.Lock()
		names, ok := s.tableNames[schemaName]
		s.mu.Unlock()
		if ok {
			return names, nil
		}
	}

	v, err := s.shared(ctx, "tableNames\x00"+schemaName, func(ctx context.Context) (any, error) {
		names, err := s.loader.FindTableNames(ctx, s, schemaName)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.tableNames[schemaName] = names
		s.mu.Unlock()
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// GetSchemaNames returns the schema names of the database.
func (s *Schema) GetSchemaNames(ctx context.Context, refresh bool) ([]string, error) {
	s.mu.Lock()
	names := s.schemaNames
	s.mu.Unlock()
	if names != nil && !refresh {
		return names, nil
	}

	names, err := s.loader.FindSchemaNames(ctx, s)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.schemaNames = names
	s.mu.Unlock()
	return names, nil
}

// Refresh drops every cached table metadata entry sharing this connection's
// cache tag, and the in-process table name lists.
func (s *Schema) Refresh(ctx context.Context) error {
	var err error
	if s.opts.Cache != nil {
		err = s.opts.Cache.InvalidateTags(ctx, s.cacheTag())
	}

	s.mu.Lock()
	s.metadata = make(map[string]*tableMetadata)
	s.tableNames = make(map[string][]string)
	s.mu.Unlock()
	return err
}

// RefreshTableSchema drops the cached metadata of a single table.
func (s *Schema) RefreshTableSchema(ctx context.Context, name string) error {
	rawName := s.GetRawTableName(name)

	s.mu.Lock()
	delete(s.metadata, rawName)
	s.tableNames = make(map[string][]string)
	s.mu.Unlock()

	if s.opts.Cache != nil {
		return s.opts.Cache.Delete(ctx, s.cacheKey(rawName))
	}
	return nil
}

// GetRawTableName expands a {{%name}} table reference into the actual table name.
func (s *Schema) GetRawTableName(name string) string {
	if !strings.Contains(name, "{{") {
		return name
	}
	name = rawTableNameRegex.ReplaceAllString(name, "$1")
	return strings.ReplaceAll(name, "%", s.quoter.TablePrefix())
}

var (
	rawTableNameRegex = regexp.MustCompile(`\{\{(.*?)\}\}`)
	readQueryRegex    = regexp.MustCompile(`(?i)^\s*(SELECT|SHOW|DESCRIBE)\b`)
)

// IsReadQuery reports whether sql only reads data.
func (s *Schema) IsReadQuery(sql string) bool {
	return readQueryRegex.MatchString(sql)
}

// SupportsSavepoint reports whether nested transactions use savepoints.
func (s *Schema) SupportsSavepoint() bool {
	return s.dialect.SupportsSavepoint()
}

var serverVersionQueries = map[string]string{
	"mysql":  "SELECT VERSION()",
	"pgsql":  "SHOW server_version",
	"sqlite": "SELECT sqlite_version()",
	"sqlsrv": "SELECT SERVERPROPERTY('ProductVersion')",
	"oci":    "SELECT version FROM product_component_version WHERE ROWNUM = 1",
}

// ServerVersion returns the database server version.
func (s *Schema) ServerVersion(ctx context.Context) (string, error) {
	s.mu.Lock()
	v := s.serverVersion
	s.mu.Unlock()
	if v != "" {
		return v, nil
	}

	query, ok := serverVersionQueries[s.dialect.Name()]
	if !ok {
		return "", dberr.NotSupported(s.dialect.Name(), "server version")
	}
	if err := queryRow(ctx, s.db, query, nil, &v); err != nil {
		return "", s.ConvertError(err, query)
	}

	s.mu.Lock()
	s.serverVersion = v
	s.mu.Unlock()
	return v, nil
}

// ConvertError classifies a driver error into a *dberr.ExecutionError.
func (s *Schema) ConvertError(err error, rawSQL string) error {
	return s.classifier.Convert(err, s.dialect.SQLState(err), rawSQL)
}

// GetColumnGoType maps a column's abstract type to its logical kind. bigint stays
// an integer only on 64-bit platforms for signed columns; unsigned integer
// columns become strings on 32-bit platforms.
func (s *Schema) GetColumnGoType(c *ColumnSchema) string {
	switch c.Type {
	case dialects.TypeTinyInt, dialects.TypeSmallInt:
		return KindInteger
	case dialects.TypeInteger:
		if intSize == 32 && c.Unsigned {
			return KindString
		}
		return KindInteger
	case dialects.TypeBigInt:
		if intSize == 64 && !c.Unsigned {
			return KindInteger
		}
		return KindString
	case dialects.TypeBoolean:
		return KindBoolean
	case dialects.TypeFloat, dialects.TypeDouble:
		return KindDouble
	case dialects.TypeBinary:
		return KindResource
	case dialects.TypeJSON:
		return KindArray
	}
	return KindString
}

// tableMetadata holds every metadata type loaded so far for one table.
type tableMetadata struct {
	Loaded      map[MetadataType]bool  `msgpack:"loaded"`
	Schema      *TableSchema           `msgpack:"schema"`
	PrimaryKey  *Constraint            `msgpack:"pk"`
	ForeignKeys []ForeignKeyConstraint `msgpack:"fks"`
	Indexes     []IndexConstraint      `msgpack:"indexes"`
	Uniques     []Constraint           `msgpack:"uniques"`
	Checks      []CheckConstraint      `msgpack:"checks"`
}

func newTableMetadata() *tableMetadata {
	return &tableMetadata{Loaded: make(map[MetadataType]bool)}
}

func (m *tableMetadata) get(typ MetadataType) (any, bool) {
	if !m.Loaded[typ] {
		return nil, false
	}
	switch typ {
	case MetaSchema:
		return m.Schema, true
	case MetaPrimaryKey:
		return m.PrimaryKey, true
	case MetaForeignKeys:
		return m.ForeignKeys, true
	case MetaIndexes:
		return m.Indexes, true
	case MetaUniques:
		return m.Uniques, true
	case MetaChecks:
		return m.Checks, true
	}
	return nil, false
}

func (m *tableMetadata) set(typ MetadataType, v any) {
	switch typ {
	case MetaSchema:
		m.Schema, _ = v.(*TableSchema)
	case MetaPrimaryKey:
		m.PrimaryKey, _ = v.(*Constraint)
	case MetaForeignKeys:
		m.ForeignKeys, _ = v.([]ForeignKeyConstraint)
	case MetaIndexes:
		m.Indexes, _ = v.([]IndexConstraint)
	case MetaUniques:
		m.Uniques, _ = v.([]Constraint)
	case MetaChecks:
		m.Checks, _ = v.([]CheckConstraint)
	}
	m.Loaded[typ] = true
}

func (m *tableMetadata) snapshot() *tableMetadata {
	c := *m
	c.Loaded = maps.Clone(m.Loaded)
	return &c
}

// getTableMetadata returns one metadata type of a table. The per-table entry is
// read from the persistent cache once; a missing type (or refresh) runs the
// loader for that type only and writes the whole entry back.
func (s *Schema) getTableMetadata(ctx context.Context, name string, typ MetadataType, refresh bool) (any, error) {
	rawName := s.GetRawTableName(name)
	persistent := s.opts.Cache != nil && !s.isCacheExcluded(rawName)

	s.mu.Lock()
	entry, ok := s.metadata[rawName]
	s.mu.Unlock()
	if !ok {
		loaded := s.loadMetadataFromCache(ctx, rawName, persistent)
		s.mu.Lock()
		if entry, ok = s.metadata[rawName]; !ok {
			entry = loaded
			s.metadata[rawName] = entry
		}
		s.mu.Unlock()
	}

	if !refresh {
		s.mu.Lock()
		v, ok := entry.get(typ)
		s.mu.Unlock()
		if ok {
			return v, nil
		}
	}

	v, err := s.shared(ctx, string(typ)+"\x00"+rawName, func(ctx context.Context) (any, error) {
		v, err := s.loadMetadata(ctx, rawName, typ)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		entry.set(typ, v)
		snapshot := entry.snapshot()
		s.mu.Unlock()

		if persistent {
			s.saveMetadataToCache(ctx, rawName, snapshot)
		}
		return v, nil
	})
	return v, err
}

func (s *Schema) loadMetadata(ctx context.Context, name string, typ MetadataType) (any, error) {
	switch typ {
	case MetaSchema:
		t, err := s.loader.LoadTableSchema(ctx, s, name)
		if err != nil {
			return nil, err
		}
		return t, nil
	case MetaPrimaryKey:
		pk, err := s.loader.LoadTablePrimaryKey(ctx, s, name)
		if err != nil {
			return nil, err
		}
		return pk, nil
	case MetaForeignKeys:
		return wrapLoad(s.loader.LoadTableForeignKeys(ctx, s, name))
	case MetaIndexes:
		return wrapLoad(s.loader.LoadTableIndexes(ctx, s, name))
	case MetaUniques:
		return wrapLoad(s.loader.LoadTableUniques(ctx, s, name))
	case MetaChecks:
		return wrapLoad(s.loader.LoadTableChecks(ctx, s, name))
	}
	return nil, fmt.Errorf("unknown metadata type %q", typ)
}

func wrapLoad[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Schema) loadMetadataFromCache(ctx context.Context, rawName string, persistent bool) *tableMetadata {
	if !persistent {
		return newTableMetadata()
	}
	m := newTableMetadata()
	if !cache.Load(ctx, s.opts.Cache, s.cacheKey(rawName), CacheVersion, m) {
		return newTableMetadata()
	}
	if m.Loaded == nil {
		m.Loaded = make(map[MetadataType]bool)
	}
	if m.Schema != nil {
		s.attach(m.Schema)
	}
	return m
}

func (s *Schema) saveMetadataToCache(ctx context.Context, rawName string, m *tableMetadata) {
	err := cache.Store(ctx, s.opts.Cache, s.cacheKey(rawName), CacheVersion, m, s.opts.CacheDuration, s.cacheTag())
	if err != nil {
		s.logger.Warn("failed to cache table metadata", "table", rawName, "error", err)
	}
}

// attach binds decoded columns to this schema's type categories.
func (s *Schema) attach(t *TableSchema) {
	for _, c := range t.Columns {
		c.categories = s.categories
	}
}

func (s *Schema) classTag() string {
	return "dbal/schema/" + s.dialect.Name()
}

// cacheKey returns the persistent cache key of a table's metadata.
func (s *Schema) cacheKey(rawName string) cache.Key {
	return cache.Key{s.classTag(), s.opts.DSN, s.opts.Username, rawName}
}

// cacheTag returns the tag shared by all tables of this connection identity.
func (s *Schema) cacheTag() string {
	return cache.Tag(s.classTag(), s.opts.DSN, s.opts.Username)
}

// isCacheExcluded reports whether rawName is listed in CacheExclude, in either
// raw or {{%name}} form.
func (s *Schema) isCacheExcluded(rawName string) bool {
	for _, v := range s.opts.CacheExclude {
		if s.GetRawTableName(v) == rawName {
			return true
		}
	}
	return false
}

// shared runs fn once for concurrent callers of key. fn gets a context that is
// not canceled with the caller's, so one caller giving up does not fail the
// others; each caller stops waiting when its own ctx is done.
func (s *Schema) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}
