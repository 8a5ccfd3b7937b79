package core

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/dberr"
)

// servers fakes a set of database servers keyed by driver DSN. Every server
// is backed by its own sqlmock handle; servers listed in down refuse to open.
type servers struct {
	mu       sync.Mutex
	dbs      map[string]*sql.DB
	mocks    map[string]sqlmock.Sqlmock
	down     map[string]bool
	attempts []string
}

func newServers(t *testing.T, names ...string) *servers {
	t.Helper()
	s := &servers{
		dbs:   map[string]*sql.DB{},
		mocks: map[string]sqlmock.Sqlmock{},
		down:  map[string]bool{},
	}
	for _, name := range names {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		mock.MatchExpectationsInOrder(false)
		s.dbs[name] = db
		s.mocks[name] = mock
	}
	return s
}

func (s *servers) open(_ context.Context, _, dsn string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, dsn)
	if s.down[dsn] {
		return nil, errors.New("dial tcp " + dsn + ": connection refused")
	}
	db, ok := s.dbs[dsn]
	if !ok {
		return nil, errors.New("unknown server " + dsn)
	}
	return db, nil
}

func (s *servers) tried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.attempts)
}

func masterConfig(names ...string) Config {
	cfg := DefaultConfig("")
	cfg.ShuffleMasters = false
	for _, name := range names {
		cfg.Masters = append(cfg.Masters, PoolEntry{DSN: "sqlite:" + name})
	}
	return cfg
}

func isDead(t *testing.T, status cache.Cache, name string) bool {
	t.Helper()
	_, dead, err := status.Get(context.Background(), statusKey("sqlite:"+name))
	require.NoError(t, err)
	return dead
}

func TestFailover_FirstAvailableMaster(t *testing.T) {
	ctx := context.Background()
	srv := newServers(t, "m1", "m2", "m3")
	srv.down["m1"] = true
	status := cache.NewMemoryCache()

	conn, err := New(masterConfig("m1", "m2", "m3"), WithOpenFunc(srv.open), WithStatusCache(status))
	require.NoError(t, err)
	require.NoError(t, conn.Open(ctx))

	assert.Equal(t, []string{"m1", "m2"}, srv.tried())
	assert.Same(t, srv.dbs["m2"], conn.DB())
	assert.True(t, isDead(t, status, "m1"))
	assert.False(t, isDead(t, status, "m2"))

	m, err := conn.Master(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "sqlite:m2", m.Config().DSN)
}

func TestFailover_SkipsDeadServers(t *testing.T) {
	ctx := context.Background()
	srv := newServers(t, "m1", "m2")
	status := cache.NewMemoryCache()
	require.NoError(t, status.Set(ctx, statusKey("sqlite:m1"), []byte{1}, 0))

	conn, err := New(masterConfig("m1", "m2"), WithOpenFunc(srv.open), WithStatusCache(status))
	require.NoError(t, err)
	require.NoError(t, conn.Open(ctx))

	assert.Equal(t, []string{"m2"}, srv.tried())
	assert.Same(t, srv.dbs["m2"], conn.DB())
}

func TestFailover_RetriesSkippedServersWhenNothingElseOpens(t *testing.T) {
	ctx := context.Background()
	srv := newServers(t, "m1", "m2", "m3")
	srv.down["m1"] = true
	srv.down["m3"] = true
	status := cache.NewMemoryCache()
	for _, name := range []string{"m1", "m2"} {
		require.NoError(t, status.Set(ctx, statusKey("sqlite:"+name), []byte{1}, 0))
	}

	conn, err := New(masterConfig("m1", "m2", "m3"), WithOpenFunc(srv.open), WithStatusCache(status))
	require.NoError(t, err)
	require.NoError(t, conn.Open(ctx))

	// m3 is tried and fails, then the skipped servers are retried in order.
	assert.Equal(t, []string{"m3", "m1", "m2"}, srv.tried())
	assert.Same(t, srv.dbs["m2"], conn.DB())
	assert.False(t, isDead(t, status, "m2"))
	assert.True(t, isDead(t, status, "m1"))
	assert.True(t, isDead(t, status, "m3"))
}

func TestFailover_NoMasterAvailable(t *testing.T) {
	tests := []struct {
		name   string
		status cache.Cache
	}{
		{name: "with status cache", status: cache.NewMemoryCache()},
		{name: "without status cache", status: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServers(t, "m1", "m2")
			srv.down["m1"] = true
			srv.down["m2"] = true

			conn, err := New(masterConfig("m1", "m2"), WithOpenFunc(srv.open), WithStatusCache(tt.status))
			require.NoError(t, err)

			err = conn.Open(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, dberr.ErrConfiguration)
			assert.Contains(t, err.Error(), "none of the master DB servers is available")
			assert.Equal(t, []string{"m1", "m2"}, srv.tried())
			assert.False(t, conn.IsActive())
		})
	}
}

func TestFailover_ShuffleIsDeterministicWithSeed(t *testing.T) {
	names := []string{"m1", "m2", "m3", "m4"}

	expected := slices.Clone(names)
	r := rand.New(rand.NewPCG(7, 11))
	r.Shuffle(len(expected), func(i, j int) { expected[i], expected[j] = expected[j], expected[i] })

	srv := newServers(t, names...)
	cfg := masterConfig(names...)
	cfg.ShuffleMasters = true

	conn, err := New(cfg,
		WithOpenFunc(srv.open),
		WithStatusCache(cache.NewMemoryCache()),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	)
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))

	assert.Equal(t, expected[:1], srv.tried())
	assert.Same(t, srv.dbs[expected[0]], conn.DB())
}

func TestFailover_EmptyPoolEntry(t *testing.T) {
	cfg := masterConfig("m1")
	cfg.Masters = append(cfg.Masters, PoolEntry{Username: "nobody"})
	srv := newServers(t, "m1")
	srv.down["m1"] = true

	conn, err := New(cfg, WithOpenFunc(srv.open), WithStatusCache(nil))
	require.NoError(t, err)

	err = conn.Open(context.Background())
	assert.ErrorIs(t, err, dberr.ErrConfiguration)
}

func TestFailover_SharedMasterConfig(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.ShuffleMasters = false
	cfg.Masters = []PoolEntry{{}, {DSN: "sqlite:m2"}}
	cfg.MasterConfig = PoolEntry{DSN: "sqlite:m1", Username: "app"}
	srv := newServers(t, "m1", "m2")

	conn, err := New(cfg, WithOpenFunc(srv.open), WithStatusCache(nil))
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))

	assert.Equal(t, []string{"m1"}, srv.tried())
	m, err := conn.Master(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app", m.Config().Username)
}

func TestSlave_ReadsAndWritesAreRouted(t *testing.T) {
	ctx := context.Background()
	srv := newServers(t, "primary", "replica")

	cfg := DefaultConfig("sqlite:primary")
	cfg.Slaves = []PoolEntry{{DSN: "sqlite:replica"}}
	conn, err := New(cfg, WithOpenFunc(srv.open), WithStatusCache(cache.NewMemoryCache()))
	require.NoError(t, err)

	srv.mocks["replica"].ExpectPrepare("SELECT 1").
		ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	srv.mocks["primary"].ExpectPrepare("UPDATE t SET a=1").
		ExpectExec().WillReturnResult(sqlmock.NewResult(0, 3))

	v, err := conn.CreateCommand("SELECT 1", nil).QueryScalar(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	n, err := conn.CreateCommand("UPDATE t SET a=1", nil).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, srv.mocks["replica"].ExpectationsWereMet())
	assert.NoError(t, srv.mocks["primary"].ExpectationsWereMet())
}

func TestSlave_FallbackAndUseMaster(t *testing.T) {
	ctx := context.Background()

	t.Run("no slaves falls back to master", func(t *testing.T) {
		conn, err := New(DefaultConfig("sqlite::memory:"))
		require.NoError(t, err)

		s, err := conn.Slave(ctx, true)
		require.NoError(t, err)
		assert.Same(t, conn, s)

		s, err = conn.Slave(ctx, false)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("slaves disabled", func(t *testing.T) {
		srv := newServers(t, "replica")
		cfg := DefaultConfig("sqlite:primary")
		cfg.Slaves = []PoolEntry{{DSN: "sqlite:replica"}}
		cfg.EnableSlaves = false
		conn, err := New(cfg, WithOpenFunc(srv.open))
		require.NoError(t, err)

		s, err := conn.Slave(ctx, true)
		require.NoError(t, err)
		assert.Same(t, conn, s)
		assert.Empty(t, srv.tried())
	})

	t.Run("use master", func(t *testing.T) {
		srv := newServers(t, "primary", "replica")
		cfg := DefaultConfig("sqlite:primary")
		cfg.Slaves = []PoolEntry{{DSN: "sqlite:replica"}}
		conn, err := New(cfg, WithOpenFunc(srv.open), WithStatusCache(cache.NewMemoryCache()))
		require.NoError(t, err)

		srv.mocks["primary"].ExpectPrepare("SELECT 2").
			ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"2"}).AddRow(int64(2)))

		err = conn.UseMaster(func(c *Connection) error {
			s, err := c.Slave(ctx, false)
			require.NoError(t, err)
			assert.Nil(t, s)

			v, err := c.CreateCommand("SELECT 2", nil).QueryScalar(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), v)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"primary"}, srv.tried())
		assert.NoError(t, srv.mocks["primary"].ExpectationsWereMet())

		s, err := conn.Slave(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "sqlite:replica", s.Config().DSN)
	})
}
