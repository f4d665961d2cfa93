package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"launchscope/internal/model"
)

// Redis is a TokenCache shared between processes. Lookups that fail are
// treated as misses; the chain remains the source of truth.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(addr, password string, db int, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, chain model.Chain, address string) (model.TokenInfo, bool) {
	data, err := r.client.Get(ctx, key(chain, address)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("token cache get failed", zap.String("token", address), zap.Error(err))
		}
		return model.TokenInfo{}, false
	}
	var info model.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		r.logger.Debug("token cache entry invalid", zap.String("token", address), zap.Error(err))
		return model.TokenInfo{}, false
	}
	return info, true
}

func (r *Redis) Set(ctx context.Context, chain model.Chain, info model.TokenInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key(chain, info.Address), data, r.ttl).Err(); err != nil {
		r.logger.Debug("token cache set failed", zap.String("token", info.Address), zap.Error(err))
	}
}
