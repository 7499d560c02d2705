/*

This file contains the lock registry: the owner of every lock's lifecycle
and the only component that talks to the custody vault. Locks are held in a
table and referenced by id; positions back-reference locks, never the other
way around.

*/

package registry

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/custody"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrLockNotFound    = errors.New("lock does not exist")
	ErrZeroAmount      = errors.New("lock amount must be positive")
	ErrZeroDuration    = errors.New("lock duration must be positive")
	ErrNotLockOwner    = errors.New("caller does not own the lock")
	ErrLockConsumed    = errors.New("lock is not in the required state")
	ErrBackingMismatch = errors.New("custody backing does not match lock amount")
)

// LockRegistry owns the lock table and the custody receipts behind it.
type LockRegistry struct {
	vault  custody.Vault
	locks  map[types.LockID]*types.Lock
	nextID types.LockID
	logger zerolog.Logger
}

func New(vault custody.Vault) *LockRegistry {
	return &LockRegistry{
		vault:  vault,
		locks:  make(map[types.LockID]*types.Lock),
		logger: logger.GetForComponent("lock_registry"),
	}
}

// CreateLock deposits the asset into custody and records a new lock in the
// Locked state. The receipt's backing is re-validated immediately after the
// deposit; any mismatch aborts and nothing is recorded.
func (r *LockRegistry) CreateLock(owner string, poolID types.PoolID, asset string, amount sdkmath.Int, duration time.Duration, now time.Time) (*types.Lock, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, ErrZeroAmount
	}
	if duration <= 0 {
		return nil, ErrZeroDuration
	}

	receipt, err := r.vault.Deposit(asset, amount)
	if err != nil {
		return nil, fmt.Errorf("custody deposit failed: %w", err)
	}
	backing, err := r.vault.Backing(receipt)
	if err != nil {
		return nil, fmt.Errorf("custody backing check failed: %w", err)
	}
	if !backing.Equal(amount) {
		return nil, fmt.Errorf("%w: backing %s, amount %s", ErrBackingMismatch, backing, amount)
	}

	r.nextID++
	lock := &types.Lock{
		ID:        r.nextID,
		Owner:     owner,
		PoolID:    poolID,
		Asset:     asset,
		Amount:    amount,
		Duration:  duration,
		StartTime: now,
		State:     types.LockStateLocked,
		Receipt:   string(receipt),
	}
	r.locks[lock.ID] = lock

	r.logger.Info().
		Uint64("lockID", uint64(lock.ID)).
		Uint64("poolID", uint64(poolID)).
		Str("owner", owner).
		Str("amount", amount.String()).
		Dur("duration", duration).
		Msg("Lock created")
	return lock, nil
}

// Get returns the lock or ErrLockNotFound.
func (r *LockRegistry) Get(id types.LockID) (*types.Lock, error) {
	lock, ok := r.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	return lock, nil
}

// MarkParticipating transfers the lock's custody reference to the ledger so
// the original owner cannot independently release it.
func (r *LockRegistry) MarkParticipating(id types.LockID) error {
	lock, ok := r.locks[id]
	if !ok {
		return ErrLockNotFound
	}
	if lock.State != types.LockStateLocked {
		return fmt.Errorf("%w: state %s", ErrLockConsumed, lock.State)
	}
	lock.State = types.LockStateParticipating
	return nil
}

// Release redeems the custody receipt, marks the lock exited, and returns
// the released amount. The backing is re-validated before redemption.
func (r *LockRegistry) Release(id types.LockID) (sdkmath.Int, error) {
	lock, ok := r.locks[id]
	if !ok {
		return sdkmath.ZeroInt(), ErrLockNotFound
	}
	if lock.State == types.LockStateExited {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: state %s", ErrLockConsumed, lock.State)
	}

	backing, err := r.vault.Backing(custody.Receipt(lock.Receipt))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("custody backing check failed: %w", err)
	}
	if !backing.Equal(lock.Amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: backing %s, amount %s", ErrBackingMismatch, backing, lock.Amount)
	}

	released, err := r.vault.Withdraw(custody.Receipt(lock.Receipt))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("custody withdraw failed: %w", err)
	}
	lock.State = types.LockStateExited

	r.logger.Info().
		Uint64("lockID", uint64(lock.ID)).
		Str("released", released.String()).
		Str("owner", lock.Owner).
		Msg("Lock released")
	return released, nil
}

// Locks returns every lock in the table, in id order.
func (r *LockRegistry) Locks() []types.Lock {
	out := make([]types.Lock, 0, len(r.locks))
	for id := types.LockID(1); id <= r.nextID; id++ {
		if lock, ok := r.locks[id]; ok {
			out = append(out, *lock)
		}
	}
	return out
}

// Restore loads locks from a snapshot, replacing the current table.
func (r *LockRegistry) Restore(locks []types.Lock) {
	r.locks = make(map[types.LockID]*types.Lock, len(locks))
	r.nextID = 0
	for i := range locks {
		lock := locks[i]
		r.locks[lock.ID] = &lock
		if lock.ID > r.nextID {
			r.nextID = lock.ID
		}
	}
}
