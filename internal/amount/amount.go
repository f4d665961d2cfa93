// Package amount converts raw on-chain integers into whole-token strings and
// percentages without passing through floating point.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NotApplicable is rendered when a percentage has a zero denominator.
const NotApplicable = "N/A"

var (
	bigTen         = big.NewInt(10)
	bigTwo         = big.NewInt(2)
	hundredthsUnit = big.NewInt(10000)
)

// ToWhole divides raw by 10^decimals and rounds half up to a whole unit.
func ToWhole(raw *big.Int, decimals uint8) *big.Int {
	if raw == nil {
		return new(big.Int)
	}
	if decimals == 0 {
		return new(big.Int).Set(raw)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).Round(0).BigInt()
}

// FormatWhole renders raw as a whole-unit decimal string.
func FormatWhole(raw *big.Int, decimals uint8) string {
	return ToWhole(raw, decimals).String()
}

// FromWhole parses a whole-unit string back into raw units.
func FromWhole(whole string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(whole)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", whole, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", whole)
	}
	return d.Shift(int32(decimals)).Round(0).BigInt(), nil
}

// RoundWhole rounds raw half up to a whole number of tokens, still in raw units.
func RoundWhole(raw *big.Int, decimals uint8) *big.Int {
	return new(big.Int).Mul(ToWhole(raw, decimals), Scale(decimals))
}

// ParseRaw parses a non-negative raw integer string.
func ParseRaw(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("parse raw amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return v, nil
}

// Scale returns 10^decimals.
func Scale(decimals uint8) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(decimals)), nil)
}

// Hundredths returns num*100/den in hundredths of a percent, rounded half up.
// It reports false when den is zero or either operand is negative.
func Hundredths(num, den *big.Int) (*big.Int, bool) {
	if num == nil || den == nil || den.Sign() <= 0 || num.Sign() < 0 {
		return nil, false
	}
	scaled := new(big.Int).Mul(num, hundredthsUnit)
	scaled.Mul(scaled, bigTwo)
	scaled.Add(scaled, den)
	return scaled.Quo(scaled, new(big.Int).Mul(den, bigTwo)), true
}

// Percent renders num/den as a percentage with two decimals, e.g. "15.00".
func Percent(num, den *big.Int) (string, bool) {
	h, ok := Hundredths(num, den)
	if !ok {
		return "", false
	}
	return decimal.NewFromBigInt(h, -2).StringFixed(2), true
}

// HoldingPercentage is held/initial as a percentage, or "N/A" when initial is zero.
func HoldingPercentage(held, initial *big.Int) string {
	if p, ok := Percent(held, initial); ok {
		return p
	}
	return NotApplicable
}

// Allocation is initial/supply formatted with a percent sign, e.g. "15.00%".
func Allocation(initial, supply *big.Int) string {
	if p, ok := Percent(initial, supply); ok {
		return p + "%"
	}
	return NotApplicable
}

// TokensForSale is max(0, supply-initial).
func TokensForSale(supply, initial *big.Int) *big.Int {
	if supply == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(supply)
	if initial != nil {
		out.Sub(out, initial)
	}
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// Sum adds values, treating nil as zero.
func Sum(values ...*big.Int) *big.Int {
	out := new(big.Int)
	for _, v := range values {
		if v != nil {
			out.Add(out, v)
		}
	}
	return out
}
