// Package dbal is a DBMS-agnostic SQL access layer for MySQL, PostgreSQL,
// SQLite, SQL Server and Oracle. It manages connections with master/slave
// failover and nested transactions, reads and caches table metadata, and
// builds dialect-specific SQL with bound parameters.
//
// Basic usage:
//
//	conn, err := dbal.New(dbal.DefaultConfig("pgsql:host=localhost;dbname=app"),
//	    dbal.WithLogger(dbal.NewTextLogger(os.Stderr, slog.LevelInfo)))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	rows, err := conn.CreateCommand("", nil).
//	    Select(dbal.NewQuery().From("user").Where(map[string]any{"status": 1})).
//	    QueryAll(ctx)
package dbal

import (
	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/core"
	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/logger"
	"github.com/coregx/dbal/internal/querybuilder"
	"github.com/coregx/dbal/internal/schema"
	"github.com/coregx/dbal/internal/tracer"
)

type (
	// Connection owns a database handle, its transaction and query-cache scopes.
	Connection = core.Connection
	// Config holds DSN, credentials, pools and cache settings.
	Config = core.Config
	// PoolEntry is one master or slave server.
	PoolEntry = core.PoolEntry
	// Option is a functional option for configuring a Connection.
	Option = core.Option
	// Command is a SQL statement with bound parameters.
	Command = core.Command
	// Transaction is the nesting-aware transaction of a Connection.
	Transaction = core.Transaction
	// Row is one result row keyed by column name.
	Row = core.Row
	// QueryEvent describes one executed command.
	QueryEvent = core.QueryEvent
	// QueryHook is invoked after each command.
	QueryHook = core.QueryHook

	Schema       = schema.Schema
	TableSchema  = schema.TableSchema
	ColumnSchema = schema.ColumnSchema

	// Query describes a SELECT statement.
	Query = querybuilder.Query
	// QueryBuilder turns queries and conditions into SQL.
	QueryBuilder = querybuilder.QueryBuilder
	// Params maps placeholder names to values.
	Params     = querybuilder.Params
	Columns    = querybuilder.Columns
	Expression = querybuilder.Expression

	// Cache is the byte store behind the schema, query and status caches.
	Cache = cache.Cache
	// Logger receives connection and query events.
	Logger = logger.Logger
	// Tracer starts spans for connection attempts and commands.
	Tracer = tracer.Tracer

	ExecutionError = dberr.ExecutionError
	// ErrorCategory classifies an ExecutionError; see Config.ErrorCategories.
	ErrorCategory = dberr.Category
)

// DefaultCacheDuration makes Connection.Cache use Config.QueryCacheDuration.
const DefaultCacheDuration = core.DefaultCacheDuration

// Execution error categories.
const (
	CategoryGeneric   = dberr.CategoryGeneric
	CategoryIntegrity = dberr.CategoryIntegrity
)

// Errors for use with errors.Is.
var (
	ErrNoRows              = core.ErrNoRows
	ErrTransactionInactive = core.ErrTransactionInactive
	ErrConfiguration       = dberr.ErrConfiguration
	ErrNotSupported        = dberr.ErrNotSupported
	ErrExecution           = dberr.ErrExecution
	ErrIntegrity           = dberr.ErrIntegrity
	ErrArgument            = dberr.ErrArgument
)

// Connections and configuration.
var (
	New           = core.New
	DefaultConfig = core.DefaultConfig
	LoadConfig    = core.LoadConfig
	ParseConfig   = core.ParseConfig

	WithLogger          = core.WithLogger
	WithSensitiveFields = core.WithSensitiveFields
	WithTracer          = core.WithTracer
	WithQueryHook       = core.WithQueryHook
	WithStatusCache     = core.WithStatusCache
	WithQueryCache      = core.WithQueryCache
	WithSchemaCache     = core.WithSchemaCache
	WithRand            = core.WithRand
	WithOpenFunc        = core.WithOpenFunc
	WithAfterOpen       = core.WithAfterOpen
	WithDB              = core.WithDB

	NewMemoryCache = cache.NewMemoryCache
	NewTextLogger  = logger.NewTextLogger
	NewSlogAdapter = logger.NewSlogAdapter
	NewOtelTracer  = tracer.NewOtelTracer
	TracerProvider = tracer.FromProvider
	IsIntegrity    = dberr.IsIntegrity
)

// Query and condition builders.
var (
	NewQuery    = querybuilder.NewQuery
	NewExp      = querybuilder.NewExp
	Cols        = querybuilder.Cols
	ColsFromMap = querybuilder.ColsFromMap
	As          = querybuilder.As
	JSON        = querybuilder.JSON
	Array       = querybuilder.Array

	And            = querybuilder.And
	Or             = querybuilder.Or
	Not            = querybuilder.Not
	Hash           = querybuilder.Hash
	Compare        = querybuilder.Compare
	In             = querybuilder.In
	NotIn          = querybuilder.NotIn
	Between        = querybuilder.Between
	NotBetween     = querybuilder.NotBetween
	BetweenColumns = querybuilder.BetweenColumns
	Like           = querybuilder.Like
	NotLike        = querybuilder.NotLike
	OrLike         = querybuilder.OrLike
	OrNotLike      = querybuilder.OrNotLike
	Exists         = querybuilder.Exists
	NotExists      = querybuilder.NotExists
)
