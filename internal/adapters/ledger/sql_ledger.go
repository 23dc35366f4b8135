package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type dialect struct {
	name   string
	driver string
	schema string
	insert string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite3",
		schema: `CREATE TABLE IF NOT EXISTS processed_messages (
			message_id TEXT PRIMARY KEY,
			processed_at INTEGER NOT NULL
		)`,
		insert: `INSERT OR IGNORE INTO processed_messages (message_id, processed_at) VALUES (?, ?)`,
	}
	mysqlDialect = dialect{
		name:   "mysql",
		driver: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS processed_messages (
			message_id VARCHAR(255) PRIMARY KEY,
			processed_at BIGINT NOT NULL
		)`,
		insert: `INSERT IGNORE INTO processed_messages (message_id, processed_at) VALUES (?, ?)`,
	}
)

// SQLLedger persists processed ids so deduplication survives restarts.
type SQLLedger struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

// NewSQLiteLedger opens a ledger stored in a SQLite file.
func NewSQLiteLedger(path string, logger *zap.Logger) (*SQLLedger, error) {
	return openSQLLedger(sqliteDialect, path, logger)
}

// NewMySQLLedger opens a ledger stored in MySQL.
func NewMySQLLedger(dsn string, logger *zap.Logger) (*SQLLedger, error) {
	return openSQLLedger(mysqlDialect, dsn, logger)
}

func openSQLLedger(d dialect, dsn string, logger *zap.Logger) (*SQLLedger, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", d.name, err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s ledger: %w", d.name, err)
	}
	if _, err := db.Exec(d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create processed_messages table: %w", err)
	}
	return &SQLLedger{db: db, dialect: d, logger: logger}, nil
}

// Contains reports whether messageID was recorded.
func (l *SQLLedger) Contains(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE message_id = ?`, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %s ledger: %w", l.dialect.name, err)
	}
	return true, nil
}

// Add records messageID. Recording an id twice is not an error.
func (l *SQLLedger) Add(ctx context.Context, messageID string) error {
	if _, err := l.db.ExecContext(ctx, l.dialect.insert, messageID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to record %s in %s ledger: %w", messageID, l.dialect.name, err)
	}
	return nil
}

// Ping checks the database connection.
func (l *SQLLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Stop closes the database.
func (l *SQLLedger) Stop() {
	if err := l.db.Close(); err != nil {
		l.logger.Error("Failed to close ledger database", zap.Error(err))
	}
}
