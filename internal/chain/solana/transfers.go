package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"launchscope/internal/model"
)

// BurnSink stands for the destination of tokens removed by an SPL burn
// instruction.
const BurnSink = "1nc1nerator11111111111111111111111111111111"

const defaultMaxTransactions = 200

// SPL token instruction tags shared by the token and token-2022 programs.
const (
	tokenIxBurn        = 8
	tokenIxBurnChecked = 15
)

// TransferLister reconstructs outgoing SPL transfers from token balance deltas.
type TransferLister struct {
	backend  Backend
	pageSize int
	maxTx    int
	logger   *zap.Logger
}

func NewTransferLister(backend Backend, logger *zap.Logger) *TransferLister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferLister{backend: backend, pageSize: defaultHistoryPageSize, maxTx: defaultMaxTransactions, logger: logger}
}

// OutgoingTransfers returns transfers of q.Token out of q.Owner's associated
// token account in slots at or after q.After, skipping q.ExcludeTx. Oldest
// first; when the history is longer than the transaction cap the oldest
// transactions are kept.
func (l *TransferLister) OutgoingTransfers(ctx context.Context, q model.TransferQuery) ([]model.Transfer, error) {
	owner, err := solana.PublicKeyFromBase58(q.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(q.Token)
	if err != nil {
		return nil, fmt.Errorf("parse mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	sigs, err := l.signaturesSince(ctx, ata, q.After, q.ExcludeTx)
	if err != nil {
		return nil, err
	}

	var out []model.Transfer
	for _, sig := range sigs {
		res, err := l.backend.Transaction(ctx, sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", sig.Signature, err)
		}
		if res == nil || res.Meta == nil || res.Meta.Err != nil {
			continue
		}
		burned := new(big.Int)
		if tx, err := DecodeTransaction(res); err == nil {
			burned = burnedBy(tx, res.Meta, owner, mint)
		} else {
			l.logger.Debug("transaction without instructions", zap.String("signature", sig.Signature.String()), zap.Error(err))
		}
		out = append(out, transfersFromMeta(res.Meta, burned, owner, mint, sig.Signature.String(), res.Slot)...)
	}
	return out, nil
}

// signaturesSince pages back through the account history down to slot after
// and returns the successful signatures oldest first, at most maxTx of them.
func (l *TransferLister) signaturesSince(ctx context.Context, account solana.PublicKey, after uint64, exclude string) ([]*rpc.TransactionSignature, error) {
	var (
		newest []*rpc.TransactionSignature
		before solana.Signature
	)
paging:
	for {
		sigs, err := l.backend.Signatures(ctx, account, SignaturePage{Before: before, Limit: l.pageSize})
		if err != nil {
			return nil, fmt.Errorf("list token account signatures: %w", err)
		}
		for _, sig := range sigs {
			before = sig.Signature
			if sig.Slot < after {
				break paging
			}
			if sig.Err != nil || sig.Signature.String() == exclude {
				continue
			}
			newest = append(newest, sig)
		}
		if len(sigs) < l.pageSize {
			break
		}
	}

	out := make([]*rpc.TransactionSignature, 0, min(len(newest), l.maxTx))
	for i := len(newest) - 1; i >= 0 && len(out) < l.maxTx; i-- {
		out = append(out, newest[i])
	}
	if skipped := len(newest) - len(out); skipped > 0 {
		l.logger.Warn("transfer history truncated",
			zap.String("account", account.String()),
			zap.Int("max", l.maxTx),
			zap.Int("skipped", skipped),
			zap.Uint64("last_slot", out[len(out)-1].Slot),
		)
	}
	return out, nil
}

// burnedBy sums the Burn and BurnChecked amounts of mint taken from token
// accounts owned by owner, across outer and inner instructions.
func burnedBy(tx *solana.Transaction, meta *rpc.TransactionMeta, owner, mint solana.PublicKey) *big.Int {
	burned := new(big.Int)
	if tx == nil || meta == nil {
		return burned
	}
	owned := make(map[uint16]bool)
	for _, balances := range [][]rpc.TokenBalance{meta.PreTokenBalances, meta.PostTokenBalances} {
		for _, tb := range balances {
			if tb.Owner != nil && tb.Owner.Equals(owner) && tb.Mint.Equals(mint) {
				owned[tb.AccountIndex] = true
			}
		}
	}

	keys := AccountKeys(tx, meta)
	for _, ix := range allInstructions(tx, meta) {
		if int(ix.programIndex) >= len(keys) {
			continue
		}
		program := keys[ix.programIndex]
		if !program.Equals(solana.TokenProgramID) && !program.Equals(solana.Token2022ProgramID) {
			continue
		}
		if len(ix.data) < 9 || (ix.data[0] != tokenIxBurn && ix.data[0] != tokenIxBurnChecked) {
			continue
		}
		if len(ix.accounts) < 2 || !owned[ix.accounts[0]] {
			continue
		}
		if int(ix.accounts[1]) >= len(keys) || !keys[ix.accounts[1]].Equals(mint) {
			continue
		}
		burned.Add(burned, new(big.Int).SetUint64(binary.LittleEndian.Uint64(ix.data[1:9])))
	}
	return burned
}

// transfersFromMeta attributes owner's decrease of mint first to burned, then
// to the owners whose balances increased. Any residue, such as a transfer fee
// withheld by the mint, is not reported as a transfer.
func transfersFromMeta(meta *rpc.TransactionMeta, burned *big.Int, owner, mint solana.PublicKey, txID string, slot uint64) []model.Transfer {
	deltas := make(map[string]*big.Int)
	apply := func(balances []rpc.TokenBalance, sign int) {
		for _, tb := range balances {
			if tb.Owner == nil || !tb.Mint.Equals(mint) || tb.UiTokenAmount == nil {
				continue
			}
			v, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			key := tb.Owner.String()
			if deltas[key] == nil {
				deltas[key] = new(big.Int)
			}
			if sign < 0 {
				deltas[key].Sub(deltas[key], v)
			} else {
				deltas[key].Add(deltas[key], v)
			}
		}
	}
	apply(meta.PreTokenBalances, -1)
	apply(meta.PostTokenBalances, 1)

	own, ok := deltas[owner.String()]
	if !ok || own.Sign() >= 0 {
		return nil
	}
	remaining := new(big.Int).Neg(own)

	burn := new(big.Int)
	if burned != nil && burned.Sign() > 0 {
		burn.Set(burned)
		if burn.Cmp(remaining) > 0 {
			burn.Set(remaining)
		}
		remaining.Sub(remaining, burn)
	}

	recipients := make([]string, 0, len(deltas))
	for addr, d := range deltas {
		if addr != owner.String() && d.Sign() > 0 {
			recipients = append(recipients, addr)
		}
	}
	sort.Slice(recipients, func(i, j int) bool {
		if c := deltas[recipients[i]].Cmp(deltas[recipients[j]]); c != 0 {
			return c > 0
		}
		return recipients[i] < recipients[j]
	})

	var out []model.Transfer
	for _, addr := range recipients {
		if remaining.Sign() == 0 {
			break
		}
		amt := new(big.Int).Set(deltas[addr])
		if amt.Cmp(remaining) > 0 {
			amt.Set(remaining)
		}
		remaining.Sub(remaining, amt)
		out = append(out, model.Transfer{To: addr, Amount: amt, TxID: txID, Position: slot})
	}
	if burn.Sign() > 0 {
		out = append(out, model.Transfer{To: BurnSink, Amount: burn, TxID: txID, Position: slot})
	}
	return out
}

// IsContract reports whether address is program controlled: an off-curve
// address (a PDA), an executable account, or one owned by a program other
// than the system program.
func (l *TransferLister) IsContract(ctx context.Context, address string) (bool, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false, fmt.Errorf("parse address: %w", err)
	}
	if !OnCurve(pk) {
		return true, nil
	}
	acc, err := l.backend.Account(ctx, pk)
	if err != nil {
		return false, err
	}
	if !acc.Exists {
		return false, nil
	}
	return acc.Executable || !acc.Owner.Equals(solana.SystemProgramID), nil
}

// OnCurve reports whether pk is a valid ed25519 point, i.e. could have a private key.
func OnCurve(pk solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}
