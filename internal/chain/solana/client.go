package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"launchscope/internal/ratelimit"
)

// SignaturePage selects one page of getSignaturesForAddress, newest first.
type SignaturePage struct {
	Before solana.Signature
	Until  solana.Signature
	Limit  int
}

// TokenAmount is a raw SPL token amount.
type TokenAmount struct {
	Raw      *big.Int
	Decimals uint8
}

// AccountState is the part of an account the contract check needs.
type AccountState struct {
	Exists     bool
	Executable bool
	Owner      solana.PublicKey
}

// Backend is the subset of Solana RPC used by the adapter.
type Backend interface {
	Slot(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, slot uint64) (time.Time, error)
	Signatures(ctx context.Context, address solana.PublicKey, page SignaturePage) ([]*rpc.TransactionSignature, error)
	Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenAmount, error)
	TokenSupply(ctx context.Context, mint solana.PublicKey) (TokenAmount, error)
	Account(ctx context.Context, address solana.PublicKey) (AccountState, error)
}

// Client wraps solana-go RPC. Every call is dispatched through the rate limiter
// at confirmed commitment.
type Client struct {
	rpc     *rpc.Client
	limiter *ratelimit.Client
}

// NewClient builds a client for rpcURL.
func NewClient(rpcURL string, limiter *ratelimit.Client) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is nil")
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("solana rpc url is empty")
	}
	return &Client{rpc: rpc.New(rpcURL), limiter: limiter}, nil
}

// Close releases the HTTP transport.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) Slot(ctx context.Context) (uint64, error) {
	return ratelimit.Do(ctx, c.limiter, "getSlot", func(ctx context.Context) (uint64, error) {
		return c.rpc.GetSlot(ctx, rpc.CommitmentConfirmed)
	})
}

func (c *Client) BlockTime(ctx context.Context, slot uint64) (time.Time, error) {
	bt, err := ratelimit.Do(ctx, c.limiter, "getBlockTime", func(ctx context.Context) (*solana.UnixTimeSeconds, error) {
		return c.rpc.GetBlockTime(ctx, slot)
	})
	if err != nil {
		return time.Time{}, err
	}
	if bt == nil {
		return time.Time{}, fmt.Errorf("no block time for slot %d", slot)
	}
	return bt.Time().UTC(), nil
}

func (c *Client) Signatures(ctx context.Context, address solana.PublicKey, page SignaturePage) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Before:     page.Before,
		Until:      page.Until,
		Commitment: rpc.CommitmentConfirmed,
	}
	if page.Limit > 0 {
		limit := page.Limit
		opts.Limit = &limit
	}
	return ratelimit.Do(ctx, c.limiter, "getSignaturesForAddress", func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	})
}

func (c *Client) Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}
	return ratelimit.Do(ctx, c.limiter, "getTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return c.rpc.GetTransaction(ctx, sig, opts)
	})
}

func (c *Client) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenAmount, error) {
	res, err := ratelimit.Do(ctx, c.limiter, "getTokenAccountBalance", func(ctx context.Context) (*rpc.GetTokenAccountBalanceResult, error) {
		return c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return TokenAmount{}, err
	}
	if res == nil || res.Value == nil {
		return TokenAmount{}, fmt.Errorf("empty token balance for %s", account)
	}
	return parseUiAmount(res.Value)
}

func (c *Client) TokenSupply(ctx context.Context, mint solana.PublicKey) (TokenAmount, error) {
	res, err := ratelimit.Do(ctx, c.limiter, "getTokenSupply", func(ctx context.Context) (*rpc.GetTokenSupplyResult, error) {
		return c.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return TokenAmount{}, err
	}
	if res == nil || res.Value == nil {
		return TokenAmount{}, fmt.Errorf("empty token supply for %s", mint)
	}
	return parseUiAmount(res.Value)
}

func (c *Client) Account(ctx context.Context, address solana.PublicKey) (AccountState, error) {
	res, err := ratelimit.Do(ctx, c.limiter, "getAccountInfo", func(ctx context.Context) (*rpc.GetAccountInfoResult, error) {
		return c.rpc.GetAccountInfo(ctx, address)
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return AccountState{}, nil
	}
	if err != nil {
		return AccountState{}, err
	}
	if res == nil || res.Value == nil {
		return AccountState{}, nil
	}
	return AccountState{Exists: true, Executable: res.Value.Executable, Owner: res.Value.Owner}, nil
}

func parseUiAmount(v *rpc.UiTokenAmount) (TokenAmount, error) {
	raw, ok := new(big.Int).SetString(v.Amount, 10)
	if !ok {
		return TokenAmount{}, fmt.Errorf("invalid token amount %q", v.Amount)
	}
	return TokenAmount{Raw: raw, Decimals: v.Decimals}, nil
}
