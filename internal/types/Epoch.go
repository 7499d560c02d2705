/*

This file contains the epoch state captured by the scheduler and the
configuration of payment tokens accepted for OTC exercise.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type EpochState struct {
	Epoch           uint64    `json:"epoch"`
	LastEpochUpdate time.Time `json:"last_epoch_update"`

	// Valuation is the oracle snapshot for the reward token, captured once
	// when the epoch opens and frozen for all pricing within it.
	Valuation sdkmath.LegacyDec `json:"valuation"`

	// Allocations is this epoch's weight-proportional split of the emission.
	// Integer-division remainders are not redistributed.
	Allocations map[PoolID]sdkmath.Int `json:"allocations"`
}

// Allocation returns the epoch allocation for a pool, zero if none.
func (e EpochState) Allocation(id PoolID) sdkmath.Int {
	if e.Allocations == nil {
		return sdkmath.ZeroInt()
	}
	if alloc, ok := e.Allocations[id]; ok {
		return alloc
	}
	return sdkmath.ZeroInt()
}

// PaymentTokenConfig describes a token accepted as OTC payment. A token with
// no oracle attached is disabled, never "free".
type PaymentTokenConfig struct {
	Denom      string `json:"denom"`
	Decimals   int    `json:"decimals"`
	OracleData string `json:"oracle_data"`
	Enabled    bool   `json:"enabled"`
}
