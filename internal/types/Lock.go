/*

This file contains the types for locks, the custody-backed deposits that
positions are minted against.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type LockID uint64

// LockState tracks the lifecycle of a lock.
type LockState string

const (
	LockStateLocked        LockState = "LOCKED"        // Funds in custody, no position minted yet
	LockStateParticipating LockState = "PARTICIPATING" // A position references this lock; custody held by the ledger
	LockStateExited        LockState = "EXITED"        // Funds released back to the owner
)

type Lock struct {
	ID        LockID        `json:"id"`
	Owner     string        `json:"owner"`
	PoolID    PoolID        `json:"pool_id"`
	Asset     string        `json:"asset"`
	Amount    sdkmath.Int   `json:"amount"`
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"start_time"`
	State     LockState     `json:"state"`

	// Receipt is the custody vault's share receipt backing this lock. The
	// registry re-validates its backing amount at creation and at release.
	Receipt string `json:"receipt"`
}

// Expiry is the first instant at which the lock may be exited.
func (l Lock) Expiry() time.Time {
	return l.StartTime.Add(l.Duration)
}
