package model

import "fmt"

// Chain identifies one of the supported chains.
type Chain string

const (
	ChainEVM    Chain = "evm"
	ChainSolana Chain = "solana"
)

// ParseChain validates a chain name.
func ParseChain(s string) (Chain, error) {
	switch Chain(s) {
	case ChainEVM, ChainSolana:
		return Chain(s), nil
	default:
		return "", fmt.Errorf("unknown chain %q", s)
	}
}
