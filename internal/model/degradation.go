package model

import "time"

// Degradation records a step where exact data was unavailable and a fallback was used.
type Degradation struct {
	Chain  Chain     `json:"chain"`
	Token  string    `json:"token"`
	Owner  string    `json:"owner,omitempty"`
	TxID   string    `json:"tx_id,omitempty"`
	Step   string    `json:"step"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}
