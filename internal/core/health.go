package core

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/coregx/dbal/internal/logger"
)

// healthChecker pings an open handle at a fixed interval so that a dead
// server is noticed before the next command.
type healthChecker struct {
	db       *sql.DB
	logger   logger.Logger
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newHealthChecker(db *sql.DB, log logger.Logger, interval time.Duration) *healthChecker {
	return &healthChecker{
		db:       db,
		logger:   log,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *healthChecker) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.ping()
		case <-h.stop:
			return
		}
	}
}

func (h *healthChecker) ping() {
	// A ping must not outlive the next tick.
	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	err := h.db.PingContext(ctx)

	h.mu.Lock()
	h.lastErr = err
	h.lastPing = time.Now()
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("database health check failed", "error", err)
		return
	}
	h.logger.Debug("database health check passed")
}

func (h *healthChecker) shutdown() {
	close(h.stop)
	h.wg.Wait()
}

func (h *healthChecker) status() (time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPing, h.lastErr
}

// Healthy reports whether the handle is open and its last periodic ping, if
// any, succeeded.
func (c *Connection) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return false
	}
	if c.health == nil {
		return true
	}
	_, err := c.health.status()
	return err == nil
}

// LastHealthCheck returns the time and result of the last periodic ping. The
// time is zero when health checks are disabled or none has run yet.
func (c *Connection) LastHealthCheck() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.health == nil {
		return time.Time{}, nil
	}
	return c.health.status()
}

// Ping verifies that the handle is reachable, opening it when needed.
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.Open(ctx); err != nil {
		return err
	}
	if err := c.DB().PingContext(ctx); err != nil {
		return c.convertError(err, "")
	}
	return nil
}
