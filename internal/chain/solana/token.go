package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"launchscope/internal/cache"
	"launchscope/internal/model"
)

// TokenReader loads mint supply and decimals, consulting the cache first.
type TokenReader struct {
	backend Backend
	cache   cache.TokenCache
	logger  *zap.Logger
}

func NewTokenReader(backend Backend, tokenCache cache.TokenCache, logger *zap.Logger) *TokenReader {
	if tokenCache == nil {
		tokenCache = cache.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenReader{backend: backend, cache: tokenCache, logger: logger}
}

// TokenInfo returns the mint's decimals and total supply. Name and symbol come
// from the launch instruction, not from here.
func (r *TokenReader) TokenInfo(ctx context.Context, token string) (model.TokenInfo, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("parse mint: %w", err)
	}
	if info, ok := r.cache.Get(ctx, model.ChainSolana, token); ok {
		return info, nil
	}
	supply, err := r.backend.TokenSupply(ctx, mint)
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("get token supply: %w", err)
	}
	info := model.TokenInfo{Address: mint.String(), Decimals: supply.Decimals, TotalSupply: supply.Raw}
	r.cache.Set(ctx, model.ChainSolana, info)
	r.logger.Debug("token info loaded", zap.String("mint", info.Address), zap.Uint8("decimals", info.Decimals))
	return info, nil
}
