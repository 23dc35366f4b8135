package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = sqlDialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS response_cache (
			cache_key TEXT PRIMARY KEY,
			cache_value TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at)`,
	},
	upsert: `
		INSERT OR REPLACE INTO response_cache (cache_key, cache_value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`,
	cleanup: `DELETE FROM response_cache WHERE expires_at <= ?`,
}

// NewSQLiteCache opens (or creates) a SQLite-backed cache at dbPath.
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	return newSQLCache(db, sqliteDialect, logger, cleanupFreq)
}
