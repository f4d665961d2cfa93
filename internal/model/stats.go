package model

import "time"

// TokenStats is the mutable part of a launch, re-derived on every refresh.
type TokenStats struct {
	TokensHeld         string    `json:"tokens_held"`
	HoldingPercentage  string    `json:"holding_percentage"`
	MovementNarrative  string    `json:"movement_narrative,omitempty"`
	SentToBurnAddress  bool      `json:"sent_to_burn_address"`
	MainSellingAddress string    `json:"main_selling_address,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}
