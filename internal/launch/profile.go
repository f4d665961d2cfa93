package launch

import (
	"strings"

	"launchscope/internal/model"
)

// Profile holds the per-launchpad naming conventions.
type Profile struct {
	Launchpad string
	URLPrefix string
	// PairLabel names the launch-specific trading address.
	PairLabel string
	// PositionUnit names the chain position a launch is recorded at.
	PositionUnit string
}

var profiles = map[model.Chain]Profile{
	model.ChainEVM: {
		Launchpad:    "Virtuals",
		URLPrefix:    "https://app.virtuals.io/prototypes/",
		PairLabel:    "Virtuals pair",
		PositionUnit: "Block",
	},
	model.ChainSolana: {
		Launchpad:    "Pump.fun",
		URLPrefix:    "https://pump.fun/coin/",
		PairLabel:    "Pump.fun bonding curve",
		PositionUnit: "Slot",
	},
}

// ProfileFor returns the profile of the launchpad watched on chain.
func ProfileFor(chain model.Chain) Profile {
	if p, ok := profiles[chain]; ok {
		return p
	}
	return Profile{Launchpad: string(chain), PositionUnit: "Position"}
}

// URL is the canonical launch page of token.
func (p Profile) URL(token string) string {
	if p.URLPrefix == "" {
		return ""
	}
	return p.URLPrefix + token
}

// Title is "<name> ($<symbol>)", degrading to whichever part is known.
func (p Profile) Title(name, symbol, token string) string {
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	switch {
	case name != "" && symbol != "":
		return name + " ($" + symbol + ")"
	case name != "":
		return name
	case symbol != "":
		return "$" + symbol
	default:
		return token
	}
}
