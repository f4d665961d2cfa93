package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"launchscope/internal/model"
)

// TransferLister finds ERC20 Transfer logs and inspects destinations.
type TransferLister struct {
	backend Backend
	span    uint64
	logger  *zap.Logger
}

func NewTransferLister(backend Backend, span uint64, logger *zap.Logger) *TransferLister {
	if span == 0 {
		span = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferLister{backend: backend, span: span, logger: logger}
}

// OutgoingTransfers returns Transfer logs from q.Owner in blocks after q.After, oldest first.
func (l *TransferLister) OutgoingTransfers(ctx context.Context, q model.TransferQuery) ([]model.Transfer, error) {
	if !common.IsHexAddress(q.Token) || !common.IsHexAddress(q.Owner) {
		return nil, fmt.Errorf("invalid address")
	}
	parsed, err := erc20Instance()
	if err != nil {
		return nil, err
	}
	head, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	if q.After >= head {
		return nil, nil
	}
	ranges, err := SplitRange(q.After+1, head, l.span)
	if err != nil {
		return nil, err
	}

	token := common.HexToAddress(q.Token)
	owner := common.BytesToHash(common.HexToAddress(q.Owner).Bytes())
	topic := parsed.Events["Transfer"].ID

	var out []model.Transfer
	for _, br := range ranges {
		logs, err := l.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(br.From),
			ToBlock:   new(big.Int).SetUint64(br.To),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{topic}, {owner}},
		})
		if err != nil {
			return nil, fmt.Errorf("filter transfers %d-%d: %w", br.From, br.To, err)
		}
		for _, lg := range logs {
			tr, ok := parseTransfer(lg)
			if !ok {
				l.logger.Debug("skip malformed transfer log", zap.String("tx", lg.TxHash.Hex()), zap.Uint("index", lg.Index))
				continue
			}
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// IsContract reports whether address has deployed code.
func (l *TransferLister) IsContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}
	code, err := l.backend.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func parseTransfer(lg types.Log) (model.Transfer, bool) {
	if lg.Removed || len(lg.Topics) != 3 {
		return model.Transfer{}, false
	}
	parsed, err := erc20Instance()
	if err != nil {
		return model.Transfer{}, false
	}
	values, err := parsed.Unpack("Transfer", lg.Data)
	if err != nil || len(values) != 1 {
		return model.Transfer{}, false
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.Transfer{}, false
	}
	return model.Transfer{
		To:       common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Amount:   amount,
		TxID:     lg.TxHash.Hex(),
		Position: lg.BlockNumber,
	}, true
}
