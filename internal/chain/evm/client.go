package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"launchscope/internal/ratelimit"
)

// Backend is the subset of chain access used by the EVM adapter.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionSender(ctx context.Context, hash common.Hash) (common.Address, error)
}

// LogSubscriber opens a streaming log subscription.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Client wraps go-ethereum RPC. Every call is dispatched through the rate limiter.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *ratelimit.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
	chainID *big.Int
}

// NewClient dials rpcURL (http or ws).
func NewClient(ctx context.Context, rpcURL string, limiter *ratelimit.Client) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is nil")
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   limiter,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, cached after the first call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	id := c.chainID
	c.mu.RUnlock()
	if id != nil {
		return id, nil
	}

	id, err := ratelimit.Do(ctx, c.limiter, "eth_chainId", c.ethClient.ChainID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return id, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_blockNumber", c.ethClient.BlockNumber)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		return c.ethClient.HeaderByNumber(ctx, number)
	})
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs runs eth_getLogs.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_getLogs", func(ctx context.Context) ([]types.Log, error) {
		return c.ethClient.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs opens an eth_subscribe logs stream. Requires a ws endpoint.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_subscribe", func(ctx context.Context) (ethereum.Subscription, error) {
		return c.ethClient.SubscribeFilterLogs(ctx, query, ch)
	})
}

// CallContract performs an eth_call, pinned to blockNumber when non-nil.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_call", func(ctx context.Context) ([]byte, error) {
		return c.ethClient.CallContract(ctx, msg, blockNumber)
	})
}

// CodeAt returns the contract code of account.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return ratelimit.Do(ctx, c.limiter, "eth_getCode", func(ctx context.Context) ([]byte, error) {
		return c.ethClient.CodeAt(ctx, account, blockNumber)
	})
}

// TransactionSender recovers the sender of a mined transaction.
func (c *Client) TransactionSender(ctx context.Context, hash common.Hash) (common.Address, error) {
	tx, err := ratelimit.Do(ctx, c.limiter, "eth_getTransactionByHash", func(ctx context.Context) (*types.Transaction, error) {
		tx, _, err := c.ethClient.TransactionByHash(ctx, hash)
		return tx, err
	})
	if err != nil {
		return common.Address{}, err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain id: %w", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover sender: %w", err)
	}
	return from, nil
}
