/*
This file contains deterministic fixed-point helpers shared by the twAML
engine and the reward ledgers. All arithmetic is multiply-then-divide on
arbitrary-precision integers so intermediate products never lose precision.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrInvalidBps     = errors.New("basis points out of range")
)

// BpsDivisor is the basis-point denominator: 10000 bps == 100%.
const BpsDivisor int64 = 10_000

// MulDiv returns a * b / denom with the multiplication performed first, so
// the quotient is exact up to a single truncating division.
func MulDiv(a, b, denom sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || denom.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if denom.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	return a.Mul(b).Quo(denom), nil
}

// BpsOf returns amount * bps / 10000, truncated.
func BpsOf(amount sdkmath.Int, bps int64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if bps < 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return amount.MulRaw(bps).QuoRaw(BpsDivisor), nil
}

// ClampInt bounds v into [lo, hi].
func ClampInt(v, lo, hi sdkmath.Int) sdkmath.Int {
	if v.LT(lo) {
		return lo
	}
	if v.GT(hi) {
		return hi
	}
	return v
}

// DecRatio returns num / denom as a LegacyDec, truncated at 18 decimal
// places. The single truncation keeps repeated identical divisions linear.
func DecRatio(num, denom sdkmath.Int) (sdkmath.LegacyDec, error) {
	if num.IsNil() || denom.IsNil() {
		return sdkmath.LegacyZeroDec(), ErrAmountNil
	}
	if denom.IsZero() {
		return sdkmath.LegacyZeroDec(), ErrDivisionByZero
	}
	return sdkmath.LegacyNewDecFromInt(num).QuoInt(denom), nil
}
