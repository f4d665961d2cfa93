package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchscope/internal/model"
)

// BalanceResolver reads ERC20 balances, pinned to a block when asked.
type BalanceResolver struct {
	backend Backend
	logger  *zap.Logger
}

func NewBalanceResolver(backend Backend, logger *zap.Logger) *BalanceResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceResolver{backend: backend, logger: logger}
}

// ResolveBalance returns owner's raw balance. A historical query reads state at
// the block; when the node cannot serve it, the latest balance is returned and
// marked approximate.
func (r *BalanceResolver) ResolveBalance(ctx context.Context, q model.BalanceQuery) (model.Balance, error) {
	if !common.IsHexAddress(q.Token) || !common.IsHexAddress(q.Owner) {
		return model.Balance{}, fmt.Errorf("invalid address")
	}
	token := common.HexToAddress(q.Token)
	owner := common.HexToAddress(q.Owner)

	var fallbacks []model.Fallback
	if q.Historical() {
		bal, err := balanceOf(ctx, r.backend, token, owner, new(big.Int).SetUint64(*q.At))
		if err == nil {
			return model.Balance{Raw: bal, Method: model.BalanceAtBlock}, nil
		}
		r.logger.Warn("balance fallback",
			zap.String("method", model.BalanceAtBlock),
			zap.String("token", q.Token),
			zap.String("owner", q.Owner),
			zap.Uint64("block", *q.At),
			zap.Error(err),
		)
		fallbacks = append(fallbacks, model.Fallback{Method: model.BalanceAtBlock, Reason: err.Error()})
	}

	bal, err := balanceOf(ctx, r.backend, token, owner, nil)
	if err != nil {
		return model.Balance{}, err
	}
	return model.Balance{
		Raw:         bal,
		Method:      model.BalanceLatest,
		Approximate: q.Historical(),
		Fallbacks:   fallbacks,
	}, nil
}

func balanceOf(ctx context.Context, backend Backend, token common.Address, owner common.Address, blockNumber *big.Int) (*big.Int, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	parsed, err := erc20Instance()
	if err != nil {
		return nil, err
	}

	values, err := callMethod(ctx, backend, token, parsed, "balanceOf", blockNumber, owner)
	if err != nil {
		return nil, err
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}
