package solana

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"launchscope/internal/ratelimit"
)

// Node error codes.
const (
	codeLongTermStorage   = -32019
	codeSlotSkipped       = -32007
	codeBlockNotAvailable = -32004
	codeTooManyRequests   = 429
	codeNodeBehind        = -32005
)

func rpcCode(err error) (int, bool) {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr.Code, true
	}
	return 0, false
}

// IsRateLimited recognizes throttling by code or message.
func IsRateLimited(err error) bool {
	if code, ok := rpcCode(err); ok && (code == codeTooManyRequests || code == codeNodeBehind) {
		return true
	}
	return ratelimit.IsRateLimited(err)
}

// IsLongTermStorage reports the error a node returns when a history query
// reaches past its local ledger into long-term storage.
func IsLongTermStorage(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := rpcCode(err); ok && (code == codeLongTermStorage || code == codeBlockNotAvailable || code == codeSlotSkipped) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "long-term storage")
}

// IsAccountNotFound reports a token balance query on a missing account.
func IsAccountNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "account not found")
}

// Retryable is the retry classifier for Solana calls. Long-term storage errors
// are left to the backfill.
func Retryable(err error) bool {
	return IsRateLimited(err) || ratelimit.IsTimeout(err)
}
