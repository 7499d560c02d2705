/*

This file contains the OTC exercise pricer: it converts an eligible reward
amount, the epoch's frozen valuation, a basis-point discount and a payment
token's oracle rate into the payment amount owed. Payment rounds up; a
caller can never underpay by rounding.

*/

package pricer

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrZeroAmount       = errors.New("exercise amount must be positive")
	ErrNotPricingUnit   = errors.New("amount is not a multiple of the pricing unit")
	ErrInvalidValuation = errors.New("epoch valuation is invalid")
	ErrInvalidRate      = errors.New("payment token rate is invalid")
	ErrInvalidDiscount  = errors.New("discount exceeds 100%")
)

// Pricer converts reward-token amounts into payment-token amounts.
type Pricer struct {
	rewardDecimals int
	pricingUnit    sdkmath.Int
}

func New(rewardDecimals int, pricingUnit sdkmath.Int) *Pricer {
	return &Pricer{rewardDecimals: rewardDecimals, pricingUnit: pricingUnit}
}

// PricingUnit is the granularity every non-zero exercise request must be a
// multiple of.
func (p *Pricer) PricingUnit() sdkmath.Int {
	return p.pricingUnit
}

// CheckUnit validates that amount is a positive multiple of the pricing unit.
func (p *Pricer) CheckUnit(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	if !amount.Mod(p.pricingUnit).IsZero() {
		return fmt.Errorf("%w: %s %% %s != 0", ErrNotPricingUnit, amount, p.pricingUnit)
	}
	return nil
}

// TruncateToUnit rounds an amount down to the nearest pricing-unit multiple.
func (p *Pricer) TruncateToUnit(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return amount.Sub(amount.Mod(p.pricingUnit))
}

// PaymentAmount prices rewardAmount at the epoch valuation, applies the
// basis-point discount, and converts into payment-token base units at the
// oracle rate, rounding up.
//
//	payment = ceil(rewardAmount/10^rDec * valuation * (10000-discount)/10000
//	               / rate * 10^payDecimals)
func (p *Pricer) PaymentAmount(rewardAmount sdkmath.Int, valuation sdkmath.LegacyDec, discountBps sdkmath.Int, rate sdkmath.LegacyDec, payDecimals int) (sdkmath.Int, error) {
	if err := p.CheckUnit(rewardAmount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if valuation.IsNil() || !valuation.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidValuation
	}
	if rate.IsNil() || !rate.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidRate
	}
	if discountBps.IsNil() || discountBps.IsNegative() || discountBps.GT(sdkmath.NewInt(utils.BpsDivisor)) {
		return sdkmath.ZeroInt(), ErrInvalidDiscount
	}

	rewardWhole := sdkmath.LegacyNewDecFromInt(rewardAmount).Quo(pow10Dec(p.rewardDecimals))
	grossUSD := rewardWhole.Mul(valuation)
	discounted := grossUSD.MulInt(sdkmath.NewInt(utils.BpsDivisor).Sub(discountBps)).QuoInt64(utils.BpsDivisor)
	payment := discounted.Quo(rate).Mul(pow10Dec(payDecimals)).Ceil().TruncateInt()
	return payment, nil
}

func pow10Dec(exp int) sdkmath.LegacyDec {
	result := sdkmath.LegacyOneDec()
	ten := sdkmath.LegacyNewDec(10)
	for i := 0; i < exp; i++ {
		result = result.Mul(ten)
	}
	return result
}
