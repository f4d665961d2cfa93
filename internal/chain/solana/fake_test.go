package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type fakeBackend struct {
	mu sync.Mutex

	slot       uint64
	blockTimes map[uint64]time.Time
	// signatures per address, newest first.
	signatures map[solana.PublicKey][]*rpc.TransactionSignature
	txs        map[solana.Signature]*rpc.GetTransactionResult
	balances   map[solana.PublicKey]*big.Int
	supplies   map[solana.PublicKey]TokenAmount
	accounts   map[solana.PublicKey]AccountState

	sigErr   error
	txCalls  int
	sigCalls []SignaturePage
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		blockTimes: make(map[uint64]time.Time),
		signatures: make(map[solana.PublicKey][]*rpc.TransactionSignature),
		txs:        make(map[solana.Signature]*rpc.GetTransactionResult),
		balances:   make(map[solana.PublicKey]*big.Int),
		supplies:   make(map[solana.PublicKey]TokenAmount),
		accounts:   make(map[solana.PublicKey]AccountState),
	}
}

func (f *fakeBackend) Slot(context.Context) (uint64, error) {
	return f.slot, nil
}

func (f *fakeBackend) BlockTime(_ context.Context, slot uint64) (time.Time, error) {
	ts, ok := f.blockTimes[slot]
	if !ok {
		return time.Time{}, fmt.Errorf("no block time for slot %d", slot)
	}
	return ts, nil
}

func (f *fakeBackend) Signatures(_ context.Context, address solana.PublicKey, page SignaturePage) ([]*rpc.TransactionSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigCalls = append(f.sigCalls, page)
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	all := f.signatures[address]
	start := 0
	if !page.Before.IsZero() {
		start = len(all)
		for i, s := range all {
			if s.Signature == page.Before {
				start = i + 1
				break
			}
		}
	}
	end := len(all)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return all[start:end], nil
}

func (f *fakeBackend) Transaction(_ context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	f.txCalls++
	f.mu.Unlock()
	res, ok := f.txs[sig]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", sig)
	}
	return res, nil
}

func (f *fakeBackend) TokenAccountBalance(_ context.Context, account solana.PublicKey) (TokenAmount, error) {
	bal, ok := f.balances[account]
	if !ok {
		return TokenAmount{}, fmt.Errorf("could not find account")
	}
	return TokenAmount{Raw: bal, Decimals: 6}, nil
}

func (f *fakeBackend) TokenSupply(_ context.Context, mint solana.PublicKey) (TokenAmount, error) {
	s, ok := f.supplies[mint]
	if !ok {
		return TokenAmount{}, fmt.Errorf("mint %s not found", mint)
	}
	return s, nil
}

func (f *fakeBackend) Account(_ context.Context, address solana.PublicKey) (AccountState, error) {
	return f.accounts[address], nil
}

func testKey(seed byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = seed
	}
	return pk
}

func testSig(seed byte) solana.Signature {
	var sig solana.Signature
	for i := range sig {
		sig[i] = seed
	}
	return sig
}

func borshString(s string) []byte {
	out := make([]byte, 4, 4+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	return append(out, s...)
}

func createData(name, symbol, uri string) []byte {
	disc := Sighash("create")
	data := append([]byte{}, disc[:]...)
	data = append(data, borshString(name)...)
	data = append(data, borshString(symbol)...)
	data = append(data, borshString(uri)...)
	return data
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	idl, err := PumpFunIDL()
	if err != nil {
		t.Fatalf("load idl: %v", err)
	}
	dec, err := NewDecoder(idl)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return dec
}

// launchFixture is a create transaction with mint=key(1), curve=key(3), user=key(8).
type launchFixture struct {
	program solana.PublicKey
	mint    solana.PublicKey
	curve   solana.PublicKey
	user    solana.PublicKey
	tx      *solana.Transaction
}

func newLaunchFixture(data []byte) launchFixture {
	program := solana.MustPublicKeyFromBase58(ProgramID)
	keys := solana.PublicKeySlice{testKey(8)}
	for i := byte(1); i <= 13; i++ {
		if i == 8 {
			continue
		}
		keys = append(keys, testKey(i))
	}
	keys = append(keys, program)
	// keys: 0=user, 1..7 = key(1..7), 8..12 = key(9..13), 13 = program
	accountIdx := []uint16{1, 2, 3, 4, 5, 6, 7, 0, 8, 9, 10, 11, 12, 13}
	tx := &solana.Transaction{
		Signatures: []solana.Signature{testSig(0xAA)},
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: keys,
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 13, Accounts: accountIdx, Data: solana.Base58(data)},
			},
		},
	}
	return launchFixture{program: program, mint: testKey(1), curve: testKey(3), user: testKey(8), tx: tx}
}

// txResult wraps tx in a getTransaction result as a node would return it.
func txResult(t *testing.T, tx *solana.Transaction, slot uint64, blockTime int64, meta *rpc.TransactionMeta) *rpc.GetTransactionResult {
	t.Helper()
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	doc := fmt.Sprintf(`{"slot":%d,"blockTime":%d,"transaction":[%q,"base64"]}`, slot, blockTime, base64.StdEncoding.EncodeToString(raw))
	var res rpc.GetTransactionResult
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		t.Fatalf("unmarshal tx result: %v", err)
	}
	if meta == nil {
		meta = &rpc.TransactionMeta{}
	}
	res.Meta = meta
	return &res
}

func tokenBalance(index uint16, owner, mint solana.PublicKey, amount string) rpc.TokenBalance {
	o := owner
	return rpc.TokenBalance{
		AccountIndex:  index,
		Owner:         &o,
		Mint:          mint,
		UiTokenAmount: &rpc.UiTokenAmount{Amount: amount, Decimals: 6},
	}
}
