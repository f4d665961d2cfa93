package model

import "math/big"

// TokenInfo captures token metadata needed to normalize raw amounts.
type TokenInfo struct {
	Address     string   `json:"address"`
	Decimals    uint8    `json:"decimals"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	TotalSupply *big.Int `json:"total_supply"`
}
