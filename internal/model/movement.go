package model

import "math/big"

// Category classifies a known or inspected address.
type Category string

const (
	CategoryBurn     Category = "burn"
	CategoryLock     Category = "lock"
	CategoryExchange Category = "exchange"
	CategoryContract Category = "contract"
	CategoryUnknown  Category = "unknown"
)

// Transfer is an outgoing token transfer from the creator.
type Transfer struct {
	To       string   `json:"to"`
	Amount   *big.Int `json:"amount"`
	TxID     string   `json:"tx_id"`
	Position uint64   `json:"position"`
}

// Movement is the classifier output. Bucket amounts are raw units.
type Movement struct {
	Narrative          string
	SentToBurnAddress  bool
	MainSellingAddress string
	Burned             *big.Int
	Locked             *big.Int
	Sold               *big.Int
	Unknown            *big.Int
	Untracked          *big.Int
	Classified         int
	Total              int
}

// TransferQuery selects outgoing transfers of Token from Owner after a position.
// Transfers in the same block or slot as After are included only on chains that
// cannot order within it, and ExcludeTx is then skipped.
type TransferQuery struct {
	Token     string
	Owner     string
	After     uint64
	ExcludeTx string
}
