// Package launch turns launch events into canonical records and keeps their
// creator statistics current.
package launch

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"launchscope/internal/amount"
	"launchscope/internal/model"
	"launchscope/internal/registry"
)

// launchNamespace seeds deterministic launch IDs.
var launchNamespace = uuid.MustParse("5b0f8a52-3c1e-4f0e-9a57-6d1c2b7e4a10")

// LaunchID is a UUIDv5 over chain and normalized token address.
func LaunchID(chain model.Chain, token string) string {
	return uuid.NewSHA1(launchNamespace, []byte(string(chain)+":"+registry.Normalize(chain, token))).String()
}

// Input is everything Build needs. Now stamps the statistics.
type Input struct {
	Event    model.LaunchEvent
	Token    model.TokenInfo
	Initial  model.Balance
	Current  model.Balance
	Movement model.Movement
	ImageURL string
	Now      time.Time
}

// Build derives the launch record. It is a pure function of its input.
func Build(in Input) model.LaunchRecord {
	ev := in.Event
	profile := ProfileFor(ev.Chain)
	launchpad := ev.Launchpad
	if launchpad == "" {
		launchpad = profile.Launchpad
	}
	name := firstNonEmpty(ev.Name, in.Token.Name)
	symbol := firstNonEmpty(ev.Symbol, in.Token.Symbol)

	supply := in.Token.TotalSupply
	if supply == nil {
		supply = ev.Supply
	}
	supply = amount.Sum(supply)
	initial := amount.Sum(in.Initial.Raw)
	current := amount.Sum(in.Current.Raw)
	dec := in.Token.Decimals

	wholeSupply := amount.ToWhole(supply, dec)
	wholeInitial := amount.ToWhole(initial, dec)

	rec := model.LaunchRecord{
		ID:                  LaunchID(ev.Chain, ev.Token),
		Chain:               ev.Chain,
		Launchpad:           launchpad,
		Title:               profile.Title(name, symbol, ev.Token),
		URL:                 profile.URL(ev.Token),
		Creator:             ev.Creator,
		Token:               ev.Token,
		Pair:                ev.Pair,
		TxID:                ev.TxID,
		Position:            ev.Position,
		LaunchedAt:          ev.Timestamp.UTC(),
		ImageURL:            in.ImageURL,
		Decimals:            dec,
		TotalSupply:         wholeSupply.String(),
		CreatorInitial:      wholeInitial.String(),
		CreatorInitialRaw:   initial.String(),
		TokensForSale:       amount.TokensForSale(wholeSupply, wholeInitial).String(),
		FormattedAllocation: amount.Allocation(initial, supply),
		Stats:               Stats(current, initial, dec, in.Movement, in.Now),
		BalanceMethod:       in.Initial.Method,
		Approximate:         in.Initial.Approximate,
	}
	rec.Description = ComposeDescription(rec)
	return rec
}

// Stats derives the mutable statistics from raw balances.
func Stats(current, initial *big.Int, decimals uint8, mv model.Movement, now time.Time) model.TokenStats {
	return model.TokenStats{
		TokensHeld:         amount.FormatWhole(current, decimals),
		HoldingPercentage:  amount.HoldingPercentage(amount.Sum(current), amount.Sum(initial)),
		MovementNarrative:  mv.Narrative,
		SentToBurnAddress:  mv.SentToBurnAddress,
		MainSellingAddress: mv.MainSellingAddress,
		UpdatedAt:          now.UTC(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
