package model

import (
	"math/big"
	"time"
)

// LaunchEvent is a raw launch observed on chain. It lives for the duration of one pipeline pass.
type LaunchEvent struct {
	Chain     Chain     `json:"chain"`
	Launchpad string    `json:"launchpad"`
	Token     string    `json:"token"`
	Creator   string    `json:"creator"`
	Pair      string    `json:"pair,omitempty"`
	TxID      string    `json:"tx_id"`
	Position  uint64    `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	URI       string    `json:"uri,omitempty"`
	// Supply is the supply announced by the launch itself, if any.
	Supply *big.Int `json:"supply,omitempty"`
}

// Missing lists the required fields that are empty.
func (e LaunchEvent) Missing() []string {
	var missing []string
	if e.Token == "" {
		missing = append(missing, "token")
	}
	if e.Creator == "" {
		missing = append(missing, "creator")
	}
	if e.TxID == "" {
		missing = append(missing, "tx_id")
	}
	if e.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	return missing
}

// LaunchRecord is the canonical, persisted view of a launch.
// Token amounts are whole-unit decimal strings.
type LaunchRecord struct {
	ID                  string     `json:"id"`
	Chain               Chain      `json:"chain"`
	Launchpad           string     `json:"launchpad"`
	Title               string     `json:"title"`
	URL                 string     `json:"url"`
	Creator             string     `json:"creator"`
	Token               string     `json:"token"`
	Pair                string     `json:"pair,omitempty"`
	TxID                string     `json:"tx_id"`
	Position            uint64     `json:"position"`
	Description         string     `json:"description"`
	LaunchedAt          time.Time  `json:"launched_at"`
	ImageURL            string     `json:"image_url,omitempty"`
	Decimals            uint8      `json:"decimals"`
	TotalSupply         string     `json:"total_supply"`
	CreatorInitial      string     `json:"creator_initial"`
	// CreatorInitialRaw is the initial balance in raw units, kept so refreshes compare exact amounts.
	CreatorInitialRaw   string     `json:"creator_initial_raw,omitempty"`
	TokensForSale       string     `json:"tokens_for_sale"`
	FormattedAllocation string     `json:"formatted_allocation"`
	Stats               TokenStats `json:"stats"`
	BalanceMethod       string     `json:"balance_method"`
	Approximate         bool       `json:"approximate"`
}
