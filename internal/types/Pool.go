/*

This is a custom type for pools which contains all the running twAML state
needed for pricing and weighting lock participations.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type PoolID uint64

type Pool struct {
	ID     PoolID      `json:"id"`
	Weight sdkmath.Int `json:"weight"` // Relative share of each epoch's emission
	Active bool        `json:"active"`

	// Running twAML statistics. CumulativeMagnitude is the exact sum of the
	// magnitudes of every voting-power participation still active in the pool;
	// AverageMagnitude is always CumulativeMagnitude / TotalParticipants so
	// that participate-then-exit restores the pool bit for bit.
	TotalDeposited      sdkmath.Int `json:"total_deposited"`      // Sum of every participating lock's amount, dust included
	TotalParticipants   int64       `json:"total_participants"`   // Count of participations holding voting power
	CumulativeMagnitude sdkmath.Int `json:"cumulative_magnitude"` // Sum of active voting-power magnitudes
	AverageMagnitude    sdkmath.Int `json:"average_magnitude"`    // CumulativeMagnitude / TotalParticipants, 0 when empty
}

// NewPool returns a registered pool with zeroed twAML statistics.
func NewPool(id PoolID, weight sdkmath.Int) *Pool {
	return &Pool{
		ID:                  id,
		Weight:              weight,
		Active:              true,
		TotalDeposited:      sdkmath.ZeroInt(),
		TotalParticipants:   0,
		CumulativeMagnitude: sdkmath.ZeroInt(),
		AverageMagnitude:    sdkmath.ZeroInt(),
	}
}
