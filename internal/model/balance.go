package model

import "math/big"

// Balance resolution methods. Each one is reported in logs, metrics and the audit trail.
const (
	BalanceAtBlock     = "balance_of_block"
	BalanceLatest      = "balance_of_latest"
	BalanceTxPost      = "tx_post_balance"
	BalanceHistoryPost = "history_post_balance"
	BalanceCurrent     = "current_balance"
)

// BalanceQuery asks for owner's balance of token. A nil At means latest.
// TxID names the transaction that produced the position, when known.
type BalanceQuery struct {
	Token string
	Owner string
	At    *uint64
	TxID  string
}

// Historical reports whether the query is pinned to a position.
func (q BalanceQuery) Historical() bool {
	return q.At != nil
}

// Fallback is one resolution step that failed before Method succeeded.
type Fallback struct {
	Method string
	Reason string
}

// Balance is a raw integer amount in the token's smallest unit.
type Balance struct {
	Raw         *big.Int
	Method      string
	Approximate bool
	Fallbacks   []Fallback
}
