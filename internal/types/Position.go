/*

This file contains the types for positions, the transferable tokens minted
one-per-lock that carry the twAML-derived attributes used for voting weight
and OTC exercise pricing.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type PositionID uint64

type Position struct {
	ID PositionID `json:"id"`

	// LockID is a plain back-reference into the lock registry's table. The
	// position never owns the lock; the registry does.
	LockID LockID `json:"lock_id"`
	PoolID PoolID `json:"pool_id"`

	// Owner is the address custody is released back to on exit. Transfer and
	// approval of the position itself live in the ownership registry.
	Owner string `json:"owner"`

	Magnitude              sdkmath.Int `json:"magnitude"`
	AverageMagnitudeAtMint sdkmath.Int `json:"average_magnitude_at_mint"`

	// FactorBps is the twAML-derived value in basis points: the discount for
	// OTC exercise pricing, the voting multiplier for the weekly ledger.
	FactorBps sdkmath.Int `json:"factor_bps"`

	// Votes is amount * FactorBps / 10000, frozen at mint. Zero for dust.
	Votes sdkmath.Int `json:"votes"`

	Expiry         time.Time `json:"expiry"`
	HasVotingPower bool      `json:"has_voting_power"`

	// EntryWeek is the week the participation happened in; votes become
	// effective the following week. ExitWeek is the first week the position
	// is no longer vote-active.
	EntryWeek int64 `json:"entry_week"`
	ExitWeek  int64 `json:"exit_week"`

	// ExercisedByEpoch bounds partial OTC fills against the per-epoch
	// entitlement. Amounts are monotonically non-decreasing within an epoch.
	ExercisedByEpoch map[uint64]sdkmath.Int `json:"exercised_by_epoch,omitempty"`
}

// Exercised returns the amount already exercised in the given epoch.
func (p Position) Exercised(epoch uint64) sdkmath.Int {
	if p.ExercisedByEpoch == nil {
		return sdkmath.ZeroInt()
	}
	if amt, ok := p.ExercisedByEpoch[epoch]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

// VotingActive reports whether the position still carries voting weight at
// the given instant. The cutoff at expiry is immediate, there is no decay.
func (p Position) VotingActive(now time.Time) bool {
	return p.HasVotingPower && now.Before(p.Expiry)
}
