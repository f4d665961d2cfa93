package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeBackend struct {
	mu sync.Mutex

	head       uint64
	logs       []types.Log
	timestamps map[uint64]uint64
	senders    map[common.Hash]common.Address
	code       map[common.Address][]byte
	// balances[block][owner]; block 0 holds the latest balance.
	balances  map[uint64]map[common.Address]*big.Int
	noArchive bool
	maxSpan   uint64

	queries []ethereum.FilterQuery
}

func newFakeBackend(head uint64) *fakeBackend {
	return &fakeBackend{
		head:       head,
		timestamps: make(map[uint64]uint64),
		senders:    make(map[common.Hash]common.Address),
		code:       make(map[common.Address][]byte),
		balances:   make(map[uint64]map[common.Address]*big.Int),
	}
}

func (f *fakeBackend) setBalance(block uint64, owner common.Address, v int64) {
	if f.balances[block] == nil {
		f.balances[block] = make(map[common.Address]*big.Int)
	}
	f.balances[block][owner] = big.NewInt(v)
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	ts, ok := f.timestamps[number]
	if !ok {
		return 0, fmt.Errorf("header %d not found", number)
	}
	return ts, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	if f.maxSpan > 0 && to-from+1 > f.maxSpan {
		return nil, errors.New("block range is too large")
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to || !matchAddress(q.Addresses, lg.Address) || !matchTopics(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func matchAddress(want []common.Address, got common.Address) bool {
	if len(want) == 0 {
		return true
	}
	for _, a := range want {
		if a == got {
			return true
		}
	}
	return false
}

func matchTopics(want [][]common.Hash, got []common.Hash) bool {
	for i, alternatives := range want {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(got) {
			return false
		}
		found := false
		for _, h := range alternatives {
			if h == got[i] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	parsed, err := erc20Instance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		block := uint64(0)
		if blockNumber != nil {
			if f.noArchive {
				return nil, errors.New("missing trie node")
			}
			block = blockNumber.Uint64()
		}
		bal, ok := f.balances[block][owner]
		if !ok {
			bal = new(big.Int)
		}
		return method.Outputs.Pack(bal)
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	case "totalSupply":
		return method.Outputs.Pack(new(big.Int).Mul(big.NewInt(1_000_000_000), pow10(18)))
	case "symbol":
		return method.Outputs.Pack("DOLPH")
	case "name":
		return method.Outputs.Pack("Dolphin")
	}
	return nil, fmt.Errorf("unexpected method %s", method.Name)
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeBackend) TransactionSender(_ context.Context, hash common.Hash) (common.Address, error) {
	from, ok := f.senders[hash]
	if !ok {
		return common.Address{}, fmt.Errorf("transaction %s not found", hash.Hex())
	}
	return from, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func packEventData(event abi.Event, values ...interface{}) []byte {
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		panic(err)
	}
	return data
}

func launchedLog(launchpad, token, pair common.Address, supply *big.Int, block uint64, index uint, tx common.Hash) types.Log {
	parsed, err := LaunchpadABI()
	if err != nil {
		panic(err)
	}
	event := parsed.Events["Launched"]
	return types.Log{
		Address:     launchpad,
		Topics:      []common.Hash{event.ID, common.BytesToHash(token.Bytes()), common.BytesToHash(pair.Bytes())},
		Data:        packEventData(event, supply),
		BlockNumber: block,
		Index:       index,
		TxHash:      tx,
	}
}

func transferLog(token, from, to common.Address, value *big.Int, block uint64, tx common.Hash) types.Log {
	parsed, err := erc20Instance()
	if err != nil {
		panic(err)
	}
	event := parsed.Events["Transfer"]
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{event.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        packEventData(event, value),
		BlockNumber: block,
		TxHash:      tx,
	}
}
