package evm

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits [from, to] into ascending spans of at most span blocks.
func SplitRange(from, to, span uint64) ([]BlockRange, error) {
	if span == 0 {
		return nil, fmt.Errorf("block span must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/span+1)
	for start := from; ; start += span {
		end := to
		if to-start >= span {
			end = start + span - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
	}
	return ranges, nil
}

// spanBelow returns the span of at most span blocks ending at hi, clamped at floor.
func spanBelow(hi, floor, span uint64) BlockRange {
	lo := floor
	if span > 0 && hi-floor >= span {
		lo = hi - span + 1
	}
	return BlockRange{From: lo, To: hi}
}
