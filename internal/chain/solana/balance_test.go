package solana

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"launchscope/internal/model"
)

func balanceFixture(t *testing.T) (*fakeBackend, solana.PublicKey, solana.PublicKey, solana.PublicKey) {
	t.Helper()
	owner := testKey(8)
	mint := testKey(1)
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	return newFakeBackend(), owner, mint, ata
}

func TestResolveBalancePrefersTriggeringTransaction(t *testing.T) {
	backend, owner, mint, ata := balanceFixture(t)
	launchSig := testSig(1)
	backend.txs[launchSig] = &rpc.GetTransactionResult{Slot: 100, Meta: &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{
			tokenBalance(2, owner, mint, "150000000000000"),
			tokenBalance(3, testKey(3), mint, "850000000000000"),
		},
	}}
	backend.balances[ata] = bigInt("1")
	r := NewBalanceResolver(backend, nil)

	at := uint64(100)
	bal, err := r.ResolveBalance(context.Background(), model.BalanceQuery{Token: mint.String(), Owner: owner.String(), At: &at, TxID: launchSig.String()})
	require.NoError(t, err)
	require.Equal(t, "150000000000000", bal.Raw.String())
	require.Equal(t, model.BalanceTxPost, bal.Method)
	require.False(t, bal.Approximate)
	require.Empty(t, bal.Fallbacks)
}

func TestResolveBalanceFallsBackToHistory(t *testing.T) {
	backend, owner, mint, ata := balanceFixture(t)
	launchSig := testSig(1)
	backend.txs[launchSig] = &rpc.GetTransactionResult{Slot: 100, Meta: &rpc.TransactionMeta{}}
	backend.signatures[ata] = []*rpc.TransactionSignature{
		{Signature: testSig(4), Slot: 300},
		{Signature: testSig(3), Slot: 95},
		{Signature: testSig(2), Slot: 90},
	}
	backend.txs[testSig(3)] = &rpc.GetTransactionResult{Slot: 95, Meta: &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{tokenBalance(1, owner, mint, "777")},
	}}
	r := NewBalanceResolver(backend, nil)

	at := uint64(100)
	bal, err := r.ResolveBalance(context.Background(), model.BalanceQuery{Token: mint.String(), Owner: owner.String(), At: &at, TxID: launchSig.String()})
	require.NoError(t, err)
	require.Equal(t, "777", bal.Raw.String())
	require.Equal(t, model.BalanceHistoryPost, bal.Method)
	require.False(t, bal.Approximate)
	require.Len(t, bal.Fallbacks, 1)
	require.Equal(t, model.BalanceTxPost, bal.Fallbacks[0].Method)
}

func TestResolveBalanceFallsBackToCurrent(t *testing.T) {
	backend, owner, mint, ata := balanceFixture(t)
	backend.balances[ata] = bigInt("42")
	r := NewBalanceResolver(backend, nil)

	at := uint64(100)
	bal, err := r.ResolveBalance(context.Background(), model.BalanceQuery{Token: mint.String(), Owner: owner.String(), At: &at, TxID: testSig(9).String()})
	require.NoError(t, err)
	require.Equal(t, "42", bal.Raw.String())
	require.Equal(t, model.BalanceCurrent, bal.Method)
	require.True(t, bal.Approximate)
	require.Len(t, bal.Fallbacks, 2)
	require.Equal(t, model.BalanceTxPost, bal.Fallbacks[0].Method)
	require.Equal(t, model.BalanceHistoryPost, bal.Fallbacks[1].Method)
}

func TestResolveCurrentBalanceOfMissingAccountIsZero(t *testing.T) {
	backend, owner, mint, _ := balanceFixture(t)
	r := NewBalanceResolver(backend, nil)

	bal, err := r.ResolveBalance(context.Background(), model.BalanceQuery{Token: mint.String(), Owner: owner.String()})
	require.NoError(t, err)
	require.Equal(t, 0, bal.Raw.Sign())
	require.Equal(t, model.BalanceCurrent, bal.Method)
	require.False(t, bal.Approximate)
}
