package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/ledger"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
)

// LedgerFactory creates the processed-id ledger
type LedgerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLedgerFactory creates a new ledger factory
func NewLedgerFactory(cfg *config.Config, logger *zap.Logger) *LedgerFactory {
	return &LedgerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLedger creates the ledger named by processed.type
func (f *LedgerFactory) CreateLedger() (core.ProcessedLedger, error) {
	processedCfg := f.cfg.GetProcessed()

	switch processedCfg.Type {
	case "memory":
		f.logger.Warn("Processed ids are kept in memory and will be lost on restart")
		return ledger.NewMemoryLedger(), nil
	case "sqlite":
		if err := ensureDir(processedCfg.SQLitePath); err != nil {
			return nil, err
		}
		return ledger.NewSQLiteLedger(processedCfg.SQLitePath, f.logger)
	case "mysql":
		return ledger.NewMySQLLedger(processedCfg.MySQLDSN, f.logger)
	case "redis":
		return ledger.NewRedisLedger(processedCfg.RedisURL, processedCfg.RedisKey, f.logger)
	default:
		return nil, fmt.Errorf("unsupported processed ledger type: %s", processedCfg.Type)
	}
}
