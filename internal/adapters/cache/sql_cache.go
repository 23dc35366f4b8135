package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// sqlDialect holds the statements that differ between SQL backends.
type sqlDialect struct {
	name    string
	schema  []string
	upsert  string
	cleanup string
}

// SQLCache is a CacheStore backed by a database/sql connection.
// Expiry is stored as unix milliseconds so comparisons are portable.
type SQLCache struct {
	db          *sql.DB
	dialect     sqlDialect
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
}

func newSQLCache(db *sql.DB, dialect sqlDialect, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	for _, stmt := range dialect.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare %s cache schema: %w", dialect.name, err)
		}
	}

	c := &SQLCache{
		db:          db,
		dialect:     dialect,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}
	return c, nil
}

// Get returns the live value for key.
func (c *SQLCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `
		SELECT cache_value
		FROM response_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, c.now().UnixMilli()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query %s cache: %w", c.dialect.name, err)
	}
	return value, true, nil
}

// Put stores value under key for ttl. The upsert replaces the whole row.
func (c *SQLCache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx, c.dialect.upsert, key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert %s cache entry: %w", c.dialect.name, err)
	}
	return nil
}

// Invalidate removes key.
func (c *SQLCache) Invalidate(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s cache entry: %w", c.dialect.name, err)
	}
	return nil
}

// Ping checks the database connection.
func (c *SQLCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Cleanup removes expired entries.
func (c *SQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, c.dialect.cleanup, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.String("backend", c.dialect.name),
			zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

func (c *SQLCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the cleanup task and closes the database.
func (c *SQLCache) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
		close(c.stopCh)
	}
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close cache database",
			zap.String("backend", c.dialect.name),
			zap.Error(err))
	}
}
