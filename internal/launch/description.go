package launch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"launchscope/internal/model"
)

// NoMovementText fills the recent developments section of an untouched launch.
const NoMovementText = "No significant token movements since launch."

// ComposeDescription renders the long-form description. Downstream consumers
// parse it back, so the section order is fixed: title, tokenomics, creator
// info, recent developments.
func ComposeDescription(rec model.LaunchRecord) string {
	var b strings.Builder
	b.WriteString(rec.Title)
	b.WriteString("\n")
	if rec.URL != "" {
		fmt.Fprintf(&b, "Launched on %s: %s\n", rec.Launchpad, rec.URL)
	} else {
		fmt.Fprintf(&b, "Launched on %s\n", rec.Launchpad)
	}

	b.WriteString("\nTokenomics:\n")
	fmt.Fprintf(&b, "- Total Supply: %s\n", rec.TotalSupply)
	fmt.Fprintf(&b, "- Creator Initial Allocation: %s (%s)\n", rec.CreatorInitial, rec.FormattedAllocation)
	fmt.Fprintf(&b, "- Tokens For Sale: %s\n", rec.TokensForSale)

	b.WriteString("\nCreator Info:\n")
	fmt.Fprintf(&b, "- Creator Address: %s\n", rec.Creator)
	fmt.Fprintf(&b, "- Token Address: %s\n", rec.Token)
	if rec.Position > 0 {
		fmt.Fprintf(&b, "- Launch %s: %d\n", ProfileFor(rec.Chain).PositionUnit, rec.Position)
	}
	fmt.Fprintf(&b, "- Current Holdings: %s (%s)\n", rec.Stats.TokensHeld, holdingText(rec.Stats.HoldingPercentage))
	if rec.Approximate {
		b.WriteString("- Note: initial allocation is approximate\n")
	}

	b.WriteString("\nRecent Developments:\n")
	if rec.Stats.MovementNarrative != "" {
		b.WriteString(rec.Stats.MovementNarrative)
	} else {
		b.WriteString(NoMovementText)
	}
	b.WriteString("\n")
	return b.String()
}

func holdingText(pct string) string {
	if pct == "" || pct == "N/A" {
		return "N/A of initial"
	}
	return pct + "% of initial"
}

// DescriptionFields are the values recoverable from a description.
type DescriptionFields struct {
	Token          string
	Creator        string
	CreatorInitial string
	Position       uint64
}

var (
	tokenAddressRe   = regexp.MustCompile(`(?m)^- Token Address:\s*(\S+)\s*$`)
	creatorAddressRe = regexp.MustCompile(`(?m)^- Creator Address:\s*(\S+)\s*$`)
	initialAllocRe   = regexp.MustCompile(`(?m)^- Creator Initial Allocation:\s*([0-9]+)`)
	positionRe       = regexp.MustCompile(`(?m)^- Launch (?:Block|Slot|Position):\s*([0-9]+)\s*$`)
)

// ParseDescription recovers addresses, the initial allocation and the launch
// position from a description. Missing fields are left empty.
func ParseDescription(text string) DescriptionFields {
	var f DescriptionFields
	if m := tokenAddressRe.FindStringSubmatch(text); m != nil {
		f.Token = m[1]
	}
	if m := creatorAddressRe.FindStringSubmatch(text); m != nil {
		f.Creator = m[1]
	}
	if m := initialAllocRe.FindStringSubmatch(text); m != nil {
		f.CreatorInitial = m[1]
	}
	if m := positionRe.FindStringSubmatch(text); m != nil {
		f.Position, _ = strconv.ParseUint(m[1], 10, 64)
	}
	return f
}
