/*

This file contains the time-weighted average-magnitude curve: the conversion
of a lock's duration into a magnitude score, and the mapping of a magnitude
relative to the pool average into a discount/multiplier factor.

*/

package twaml

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/utils"
)

var (
	ErrZeroDuration       = errors.New("duration must be positive")
	ErrZeroMaxDuration    = errors.New("max duration must be positive")
	ErrInvalidFactorRange = errors.New("factor range is invalid")
)

// MagnitudeScale is the saturation value of the magnitude curve. A lock at
// the maximum duration scores exactly MagnitudeScale.
var MagnitudeScale = sdkmath.NewInt(1_000_000_000_000_000_000)

// ComputeMagnitude converts a lock duration into a magnitude in
// [0, MagnitudeScale], strictly increasing in duration and saturating at
// maxDuration. The curve is
//
//	magnitude(d) = SCALE * (M^2 - (M-d)^2) / M^2
//
// evaluated in whole seconds: concave, zero at zero, SCALE at d == M.
func ComputeMagnitude(duration, maxDuration time.Duration) (sdkmath.Int, error) {
	if duration <= 0 {
		return sdkmath.ZeroInt(), ErrZeroDuration
	}
	if maxDuration <= 0 {
		return sdkmath.ZeroInt(), ErrZeroMaxDuration
	}
	if duration >= maxDuration {
		return MagnitudeScale, nil
	}

	d := sdkmath.NewInt(int64(duration / time.Second))
	m := sdkmath.NewInt(int64(maxDuration / time.Second))
	if m.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroMaxDuration
	}

	remaining := m.Sub(d)
	numerator := m.Mul(m).Sub(remaining.Mul(remaining))
	magnitude, err := utils.MulDiv(MagnitudeScale, numerator, m.Mul(m))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("magnitude curve evaluation failed: %w", err)
	}
	return utils.ClampInt(magnitude, sdkmath.ZeroInt(), MagnitudeScale), nil
}

// ComputeFactor maps a magnitude relative to the pool average into a
// basis-point factor in [minBps, maxBps]. Locks at or below the pool average
// receive the minimum; locks above it scale linearly toward the maximum as
// the magnitude approaches the curve's ceiling, clamped at maxBps.
func ComputeFactor(magnitude, average sdkmath.Int, minBps, maxBps int64) (sdkmath.Int, error) {
	if minBps < 0 || maxBps < minBps {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: min=%d max=%d", ErrInvalidFactorRange, minBps, maxBps)
	}

	floor := sdkmath.NewInt(minBps)
	ceiling := sdkmath.NewInt(maxBps)
	if magnitude.LTE(average) {
		return floor, nil
	}

	headroom := MagnitudeScale.Sub(average)
	if !headroom.IsPositive() {
		// Average already at the ceiling; nothing can score above it.
		return floor, nil
	}

	span := ceiling.Sub(floor)
	boost, err := utils.MulDiv(span, magnitude.Sub(average), headroom)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("factor interpolation failed: %w", err)
	}
	return utils.ClampInt(floor.Add(boost), floor, ceiling), nil
}
