package cache

import (
	"fmt"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Idempotency store providers
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

// NewIdempotencyStore builds the store named by cfg.Provider. A redis provider
// without a client falls back to memory unless strict is set.
func NewIdempotencyStore(cfg config.IdempotencyConfig, client redis.UniversalClient, strict bool, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "", ProviderMemory:
		return NewInMemoryIdempotencyStore(), nil
	case ProviderRedis:
		if client != nil {
			logger.Info("using Redis idempotency store")
			return NewRedisIdempotencyStore(client, ""), nil
		}
		if strict {
			return nil, fmt.Errorf("idempotency provider %q requires a Redis client", cfg.Provider)
		}
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store; " +
			"redelivered events may be handled twice across instances")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency provider %q", cfg.Provider)
	}
}
