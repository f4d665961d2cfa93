package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Launch is a launch instruction found in a transaction.
type Launch struct {
	Accounts LaunchAccounts
	Name     string
	Symbol   string
	URI      string
}

type compiledInstruction struct {
	programIndex uint16
	accounts     []uint16
	data         []byte
}

// AccountKeys returns static keys followed by the writable and read-only keys
// loaded from lookup tables, the order instruction indexes refer to.
func AccountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) solana.PublicKeySlice {
	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if meta != nil {
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	}
	return keys
}

// ExtractLaunches decodes every outer and inner instruction of program and
// returns the launch instructions. Instructions that fail to decode are skipped.
func ExtractLaunches(tx *solana.Transaction, meta *rpc.TransactionMeta, program solana.PublicKey, dec *Decoder) []Launch {
	if tx == nil || dec == nil {
		return nil
	}
	keys := AccountKeys(tx, meta)

	var launches []Launch
	for _, ix := range allInstructions(tx, meta) {
		if int(ix.programIndex) >= len(keys) || !keys[ix.programIndex].Equals(program) {
			continue
		}
		inst, ok := dec.Decode(ix.data)
		if !ok || inst.Name != LaunchInstruction {
			continue
		}
		accounts, ok := resolveAccounts(keys, ix.accounts)
		if !ok {
			continue
		}
		la, ok := dec.LaunchAccounts(inst, accounts)
		if !ok {
			continue
		}
		launches = append(launches, Launch{
			Accounts: la,
			Name:     inst.Text("name"),
			Symbol:   inst.Text("symbol"),
			URI:      inst.Text("uri"),
		})
	}
	return launches
}

// allInstructions lists the outer instructions followed by every inner one.
func allInstructions(tx *solana.Transaction, meta *rpc.TransactionMeta) []compiledInstruction {
	out := make([]compiledInstruction, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		out = append(out, compiledInstruction{programIndex: ix.ProgramIDIndex, accounts: ix.Accounts, data: ix.Data})
	}
	if meta != nil {
		for _, inner := range meta.InnerInstructions {
			for _, ix := range inner.Instructions {
				out = append(out, compiledInstruction{programIndex: ix.ProgramIDIndex, accounts: ix.Accounts, data: ix.Data})
			}
		}
	}
	return out
}

// resolveAccounts maps indexes to keys. Out-of-range indexes fail the whole list.
func resolveAccounts(keys solana.PublicKeySlice, indexes []uint16) ([]solana.PublicKey, bool) {
	out := make([]solana.PublicKey, 0, len(indexes))
	for _, idx := range indexes {
		if int(idx) >= len(keys) {
			return nil, false
		}
		out = append(out, keys[idx])
	}
	return out, true
}

// DecodeTransaction unwraps the transaction envelope of a getTransaction result.
func DecodeTransaction(res *rpc.GetTransactionResult) (*solana.Transaction, error) {
	if res == nil || res.Transaction == nil {
		return nil, fmt.Errorf("transaction result is empty")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
