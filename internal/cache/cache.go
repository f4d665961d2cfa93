// Package cache stores token metadata so repeated launches and refreshes do not
// re-read immutable fields from chain.
package cache

import (
	"context"
	"sync"

	"launchscope/internal/model"
	"launchscope/internal/registry"
)

// TokenCache caches token metadata by chain and address.
type TokenCache interface {
	Get(ctx context.Context, chain model.Chain, address string) (model.TokenInfo, bool)
	Set(ctx context.Context, chain model.Chain, info model.TokenInfo)
}

// Memory is a process-local TokenCache.
type Memory struct {
	mu   sync.RWMutex
	data map[string]model.TokenInfo
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]model.TokenInfo)}
}

func (c *Memory) Get(_ context.Context, chain model.Chain, address string) (model.TokenInfo, bool) {
	c.mu.RLock()
	info, ok := c.data[key(chain, address)]
	c.mu.RUnlock()
	return info, ok
}

func (c *Memory) Set(_ context.Context, chain model.Chain, info model.TokenInfo) {
	c.mu.Lock()
	c.data[key(chain, info.Address)] = info
	c.mu.Unlock()
}

func key(chain model.Chain, address string) string {
	return "token:" + string(chain) + ":" + registry.Normalize(chain, address)
}
