package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = sqlDialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS response_cache (
			cache_key VARCHAR(255) PRIMARY KEY,
			cache_value MEDIUMTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_response_cache_expires_at (expires_at)
		)`,
	},
	upsert: `
		INSERT INTO response_cache (cache_key, cache_value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			cache_value = VALUES(cache_value),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at)
	`,
	cleanup: `DELETE FROM response_cache WHERE expires_at <= ?`,
}

// NewMySQLCache connects to MySQL and prepares the cache table.
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLCache(db, mysqlDialect, logger, cleanupFreq)
}
