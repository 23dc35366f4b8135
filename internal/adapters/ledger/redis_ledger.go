package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLedger stores processed ids in a Redis set.
type RedisLedger struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisLedger connects using a redis:// URL; ids live in the set named key.
func NewRedisLedger(url, key string, logger *zap.Logger) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisLedgerFromClient(redis.NewClient(opts), key, logger), nil
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(client *redis.Client, key string, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{client: client, key: key, logger: logger}
}

// Contains reports whether messageID was recorded.
func (l *RedisLedger) Contains(ctx context.Context, messageID string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.key, messageID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query redis ledger: %w", err)
	}
	return ok, nil
}

// Add records messageID.
func (l *RedisLedger) Add(ctx context.Context, messageID string) error {
	if err := l.client.SAdd(ctx, l.key, messageID).Err(); err != nil {
		return fmt.Errorf("failed to record %s in redis ledger: %w", messageID, err)
	}
	return nil
}

// Ping checks the server connection.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Stop closes the client.
func (l *RedisLedger) Stop() {
	if err := l.client.Close(); err != nil {
		l.logger.Error("Failed to close redis ledger", zap.Error(err))
	}
}
