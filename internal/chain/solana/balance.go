package solana

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"launchscope/internal/model"
)

const (
	defaultHistoryPageSize = 100
	defaultHistoryPages    = 5
)

// BalanceResolver reconstructs SPL token balances. Solana has no historical
// balance call, so a pinned query reads the post balance recorded by the
// triggering transaction, then by the nearest earlier transaction on the
// owner's token account, and finally settles for the current balance.
type BalanceResolver struct {
	backend      Backend
	pageSize     int
	historyPages int
	logger       *zap.Logger
}

func NewBalanceResolver(backend Backend, logger *zap.Logger) *BalanceResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceResolver{
		backend:      backend,
		pageSize:     defaultHistoryPageSize,
		historyPages: defaultHistoryPages,
		logger:       logger,
	}
}

// ResolveBalance returns owner's raw balance of the mint q.Token.
func (r *BalanceResolver) ResolveBalance(ctx context.Context, q model.BalanceQuery) (model.Balance, error) {
	owner, err := solana.PublicKeyFromBase58(q.Owner)
	if err != nil {
		return model.Balance{}, fmt.Errorf("parse owner: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(q.Token)
	if err != nil {
		return model.Balance{}, fmt.Errorf("parse mint: %w", err)
	}

	var fallbacks []model.Fallback
	fallback := func(method string, reason error) {
		r.logger.Warn("balance fallback",
			zap.String("method", method),
			zap.String("token", q.Token),
			zap.String("owner", q.Owner),
			zap.Error(reason),
		)
		fallbacks = append(fallbacks, model.Fallback{Method: method, Reason: reason.Error()})
	}

	if q.Historical() {
		if q.TxID != "" {
			bal, err := r.txPostBalance(ctx, q.TxID, owner, mint)
			if err == nil {
				return model.Balance{Raw: bal, Method: model.BalanceTxPost}, nil
			}
			fallback(model.BalanceTxPost, err)
		} else {
			fallback(model.BalanceTxPost, fmt.Errorf("no triggering transaction"))
		}

		bal, err := r.historyPostBalance(ctx, owner, mint, *q.At)
		if err == nil {
			return model.Balance{Raw: bal, Method: model.BalanceHistoryPost, Fallbacks: fallbacks}, nil
		}
		fallback(model.BalanceHistoryPost, err)
	}

	bal, err := r.currentBalance(ctx, owner, mint)
	if err != nil {
		return model.Balance{}, err
	}
	return model.Balance{
		Raw:         bal,
		Method:      model.BalanceCurrent,
		Approximate: q.Historical(),
		Fallbacks:   fallbacks,
	}, nil
}

func (r *BalanceResolver) txPostBalance(ctx context.Context, txID string, owner, mint solana.PublicKey) (*big.Int, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	res, err := r.backend.Transaction(ctx, sig)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no meta", txID)
	}
	bal, ok := ownerBalance(res.Meta.PostTokenBalances, owner, mint)
	if !ok {
		return nil, fmt.Errorf("transaction %s records no post balance for owner", txID)
	}
	return bal, nil
}

// historyPostBalance walks the owner's associated token account history
// backwards to the newest successful transaction at or before slot.
func (r *BalanceResolver) historyPostBalance(ctx context.Context, owner, mint solana.PublicKey, slot uint64) (*big.Int, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	var before solana.Signature
	for i := 0; i < r.historyPages; i++ {
		sigs, err := r.backend.Signatures(ctx, ata, SignaturePage{Before: before, Limit: r.pageSize})
		if err != nil {
			return nil, fmt.Errorf("list token account signatures: %w", err)
		}
		for _, sig := range sigs {
			before = sig.Signature
			if sig.Slot > slot || sig.Err != nil {
				continue
			}
			res, err := r.backend.Transaction(ctx, sig.Signature)
			if err != nil {
				return nil, err
			}
			if res == nil || res.Meta == nil {
				continue
			}
			if bal, ok := ownerBalance(res.Meta.PostTokenBalances, owner, mint); ok {
				return bal, nil
			}
		}
		if len(sigs) < r.pageSize {
			break
		}
	}
	return nil, fmt.Errorf("no token account transaction at or before slot %d", slot)
}

func (r *BalanceResolver) currentBalance(ctx context.Context, owner, mint solana.PublicKey) (*big.Int, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}
	amount, err := r.backend.TokenAccountBalance(ctx, ata)
	if IsAccountNotFound(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token account balance: %w", err)
	}
	return amount.Raw, nil
}

// ownerBalance sums the balances of mint held by owner across token accounts.
func ownerBalance(balances []rpc.TokenBalance, owner, mint solana.PublicKey) (*big.Int, bool) {
	total := new(big.Int)
	found := false
	for _, tb := range balances {
		if tb.Owner == nil || !tb.Owner.Equals(owner) || !tb.Mint.Equals(mint) || tb.UiTokenAmount == nil {
			continue
		}
		v, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
		if !ok {
			continue
		}
		total.Add(total, v)
		found = true
	}
	return total, found
}
