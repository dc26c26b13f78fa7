// Package cache keeps feature flags in memory and refreshes them on
// PostgreSQL NOTIFY.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"salesflow/internal/core/features"
	"salesflow/pkg/logger"
)

// flagsChannel is notified by the sys_feature_flags trigger.
const flagsChannel = "feature_flags_changed"

// FeatureFlag is one row of sys_feature_flags.
type FeatureFlag struct {
	Key        string
	Enabled    bool
	Config     map[string]any
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// activeAt reports whether the flag is on at now.
func (f FeatureFlag) activeAt(now time.Time) bool {
	if !f.Enabled {
		return false
	}
	if f.ValidFrom != nil && now.Before(*f.ValidFrom) {
		return false
	}
	if f.ValidUntil != nil && now.After(*f.ValidUntil) {
		return false
	}
	return true
}

// FlagCache implements features.Provider over sys_feature_flags. Flags
// missing from the table are answered by the fallback provider.
type FlagCache struct {
	pool     *pgxpool.Pool
	fallback features.Provider
	now      func() time.Time

	mu    sync.RWMutex
	flags map[string]FeatureFlag

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewFlagCache creates a flag cache. fallback usually holds the flags from
// configuration.
func NewFlagCache(pool *pgxpool.Pool, fallback features.Provider) *FlagCache {
	return &FlagCache{
		pool:     pool,
		fallback: fallback,
		now:      time.Now,
		flags:    make(map[string]FeatureFlag),
	}
}

// Start loads the flags and begins listening for changes.
func (c *FlagCache) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.started {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	c.lifecycleMu.Unlock()

	if err := c.load(c.ctx); err != nil {
		c.Stop()
		return fmt.Errorf("load feature flags: %w", err)
	}

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "feature flag cache started")
	return nil
}

// Stop stops the listener and waits for it to exit.
func (c *FlagCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "feature flag cache stopped")
}

func (c *FlagCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+flagsChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "channel", flagsChannel, "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *FlagCache) waitForNotifications(conn *pgxpool.Conn) {
	for c.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(c.ctx, "LISTEN connection closed, reconnecting")
				return
			}
			continue
		}

		logger.Debug(c.ctx, "feature flags changed", "flag", n.Payload)
		if err := c.load(c.ctx); err != nil {
			logger.Error(c.ctx, "failed to reload feature flags", "error", err)
		}
	}
}

func (c *FlagCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}

func (c *FlagCache) load(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `
		SELECT key, enabled, config, valid_from, valid_until
		FROM sys_feature_flags
	`)
	if err != nil {
		return fmt.Errorf("query feature flags: %w", err)
	}
	defer rows.Close()

	var list []FeatureFlag
	for rows.Next() {
		var (
			f      FeatureFlag
			config []byte
		)
		if err := rows.Scan(&f.Key, &f.Enabled, &config, &f.ValidFrom, &f.ValidUntil); err != nil {
			return fmt.Errorf("scan feature flag: %w", err)
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &f.Config); err != nil {
				return fmt.Errorf("unmarshal feature flag config (%s): %w", f.Key, err)
			}
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.replace(list)
	logger.Info(ctx, "loaded feature flags", "count", len(list))
	return nil
}

// replace swaps the cached flag set.
func (c *FlagCache) replace(list []FeatureFlag) {
	flags := make(map[string]FeatureFlag, len(list))
	for _, f := range list {
		flags[f.Key] = f
	}

	c.mu.Lock()
	c.flags = flags
	c.mu.Unlock()
}

// IsEnabled implements features.Provider.
func (c *FlagCache) IsEnabled(ctx context.Context, flag string) bool {
	c.mu.RLock()
	f, ok := c.flags[flag]
	c.mu.RUnlock()

	if !ok {
		return c.fallback != nil && c.fallback.IsEnabled(ctx, flag)
	}
	return f.activeAt(c.now())
}

// GetValue implements features.Provider. It returns a copy of the flag config.
func (c *FlagCache) GetValue(ctx context.Context, flag string) any {
	c.mu.RLock()
	f, ok := c.flags[flag]
	c.mu.RUnlock()

	if !ok {
		if c.fallback == nil {
			return nil
		}
		return c.fallback.GetValue(ctx, flag)
	}
	if len(f.Config) == 0 {
		return nil
	}
	cfg := make(map[string]any, len(f.Config))
	for k, v := range f.Config {
		cfg[k] = v
	}
	return cfg
}

var _ features.Provider = (*FlagCache)(nil)
