package core

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/dberr"
)

// randMu serializes use of injected random sources, which clones share.
var randMu sync.Mutex

// Master returns the connection opened from the master pool, or nil when no
// master is configured or none is reachable. The result is resolved once and
// reused until Close.
func (c *Connection) Master(ctx context.Context) (*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterLocked(ctx)
}

func (c *Connection) masterLocked(ctx context.Context) (*Connection, error) {
	if c.masterSet {
		return c.master, nil
	}
	var (
		m   *Connection
		err error
	)
	if c.cfg.ShuffleMasters {
		m, err = c.openFromPool(ctx, c.cfg.Masters, c.cfg.MasterConfig)
	} else {
		m, err = c.openFromPoolSequentially(ctx, c.cfg.Masters, c.cfg.MasterConfig)
	}
	if err != nil {
		return nil, err
	}
	c.master, c.masterSet = m, true
	return m, nil
}

// Slave returns a connection opened from the slave pool. When slaves are
// disabled, forced off by UseMaster, or unavailable, it returns c itself if
// fallbackToMaster is set and nil otherwise.
func (c *Connection) Slave(ctx context.Context, fallbackToMaster bool) (*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.EnableSlaves || c.forceMaster > 0 {
		if fallbackToMaster {
			return c, nil
		}
		return nil, nil
	}
	if !c.slaveSet {
		s, err := c.openFromPool(ctx, c.cfg.Slaves, c.cfg.SlaveConfig)
		if err != nil {
			return nil, err
		}
		c.slave, c.slaveSet = s, true
	}
	if c.slave == nil && fallbackToMaster {
		return c, nil
	}
	return c.slave, nil
}

// UseMaster runs fn with slave reads disabled.
func (c *Connection) UseMaster(fn func(*Connection) error) error {
	c.mu.Lock()
	c.forceMaster++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.forceMaster--
		c.mu.Unlock()
	}()
	return fn(c)
}

// openFromPool shuffles pool and opens its first available entry.
func (c *Connection) openFromPool(ctx context.Context, pool []PoolEntry, shared PoolEntry) (*Connection, error) {
	pool = slices.Clone(pool)
	shuffle := rand.Shuffle
	if c.opts.rand != nil {
		randMu.Lock()
		defer randMu.Unlock()
		shuffle = c.opts.rand.Shuffle
	}
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return c.openFromPoolSequentially(ctx, pool, shared)
}

func statusKey(dsn string) cache.Key {
	return cache.Key{"dbal.failover", dsn}
}

// openFromPoolSequentially tries each entry in order and returns the first one
// that opens. Entries marked dead in the status cache are skipped; failures
// are marked dead for ServerRetryInterval. When nothing could be opened, the
// skipped entries are tried once more ignoring the cache. It returns nil when
// the pool is exhausted.
func (c *Connection) openFromPoolSequentially(ctx context.Context, pool []PoolEntry, shared PoolEntry) (*Connection, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	status := c.opts.statusCache

	var skipped []PoolEntry
	for _, entry := range pool {
		entry = entry.merge(shared)
		if entry.DSN == "" {
			return nil, dberr.Configuration("the DSN of a pool entry must be specified")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := statusKey(entry.DSN)
		if status != nil {
			if _, dead, err := status.Get(ctx, key); err == nil && dead {
				skipped = append(skipped, entry)
				continue
			}
		}

		member, err := c.openPoolMember(ctx, entry)
		if err == nil {
			return member, nil
		}
		c.log.Warn("connection failed", "dsn", entry.DSN, "error", err)
		if status != nil {
			if err := status.Set(ctx, key, []byte{1}, c.cfg.ServerRetryInterval); err != nil {
				c.log.Warn("failed to mark server as dead", "dsn", entry.DSN, "error", err)
			}
		}
	}

	if status == nil {
		return nil, nil
	}
	for _, entry := range skipped {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		member, err := c.openPoolMember(ctx, entry)
		if err != nil {
			c.log.Warn("connection failed", "dsn", entry.DSN, "error", err)
			continue
		}
		_ = status.Delete(ctx, statusKey(entry.DSN))
		return member, nil
	}
	return nil, nil
}

// openPoolMember opens a connection for one merged pool entry.
func (c *Connection) openPoolMember(ctx context.Context, entry PoolEntry) (*Connection, error) {
	o := *c.opts
	o.db = nil
	member, err := newConnection(c.cfg.sub(entry), &o)
	if err != nil {
		return nil, err
	}
	if err := member.Open(ctx); err != nil {
		return nil, err
	}
	return member, nil
}
