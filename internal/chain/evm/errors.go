package evm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"launchscope/internal/ratelimit"
)

// Provider error codes that signal throttling.
var rateLimitCodes = map[int]struct{}{
	-32005: {},
	-32029: {},
	-32090: {},
	429:    {},
}

// IsRateLimited recognizes throttling responses from go-ethereum's transport.
func IsRateLimited(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if _, ok := rateLimitCodes[rpcErr.ErrorCode()]; ok {
			return true
		}
	}
	return ratelimit.IsRateLimited(err)
}

// Retryable is the retry classifier for EVM calls.
func Retryable(err error) bool {
	return IsRateLimited(err) || ratelimit.IsTimeout(err)
}

// IsRangeTooLarge reports provider errors asking for a smaller eth_getLogs range.
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"block range",
		"range is too large",
		"query returned more than",
		"response size exceeded",
		"too many results",
		"limit the query",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
