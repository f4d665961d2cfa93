package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchscope/internal/cache"
	"launchscope/internal/model"
)

// TokenReader loads ERC20 metadata, consulting the cache first.
type TokenReader struct {
	backend Backend
	cache   cache.TokenCache
	logger  *zap.Logger
}

func NewTokenReader(backend Backend, tokenCache cache.TokenCache, logger *zap.Logger) *TokenReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenCache == nil {
		tokenCache = cache.NewMemory()
	}
	return &TokenReader{backend: backend, cache: tokenCache, logger: logger}
}

// TokenInfo returns decimals, symbol, name and total supply of token.
func (r *TokenReader) TokenInfo(ctx context.Context, token string) (model.TokenInfo, error) {
	if !common.IsHexAddress(token) {
		return model.TokenInfo{}, fmt.Errorf("invalid token address %q", token)
	}
	if info, ok := r.cache.Get(ctx, model.ChainEVM, token); ok {
		return info, nil
	}
	info, err := FetchTokenInfo(ctx, r.backend, common.HexToAddress(token), r.logger)
	if err != nil {
		return info, err
	}
	r.cache.Set(ctx, model.ChainEVM, info)
	return info, nil
}

// FetchTokenInfo loads token metadata via ERC20 calls. decimals and totalSupply
// are required; symbol and name fall back to bytes32 encodings and may be empty.
func FetchTokenInfo(ctx context.Context, backend Backend, token common.Address, logger *zap.Logger) (model.TokenInfo, error) {
	info := model.TokenInfo{Address: token.Hex()}
	if backend == nil {
		return info, fmt.Errorf("chain backend is nil")
	}

	stringABI, err := erc20Instance()
	if err != nil {
		return info, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32Instance()
	if err != nil {
		return info, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, backend, token, stringABI, "decimals", nil)
	if err != nil {
		return info, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return info, err
	}
	info.Decimals = decimals

	values, err = callMethod(ctx, backend, token, stringABI, "totalSupply", nil)
	if err != nil {
		return info, err
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return info, fmt.Errorf("total supply: %w", err)
	}
	info.TotalSupply = supply

	info.Symbol = readText(ctx, backend, token, "symbol", stringABI, bytes32ABI, logger)
	info.Name = readText(ctx, backend, token, "name", stringABI, bytes32ABI, logger)

	return info, nil
}

func readText(ctx context.Context, backend Backend, token common.Address, method string, stringABI, bytes32ABI abi.ABI, logger *zap.Logger) string {
	if values, err := callMethod(ctx, backend, token, stringABI, method, nil); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := callMethod(ctx, backend, token, bytes32ABI, method, nil)
	if err == nil {
		if s, ok := bytes32ToString(values[0]); ok {
			return s
		}
	}
	if logger != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return ""
}

func callMethod(ctx context.Context, backend Backend, contract common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := backend.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
