/*

This file contains the position ledger: the single writer of pool twAML
statistics and the owner of the participate/exit/exercise lifecycle. Locks
come from the lock registry, positions are represented through the NFT-style
ownership registry, weekly vote windows are registered with the reward
ledger, and OTC payments are priced through the pricer.

Every mutating method either fully commits or returns an error with no state
change. Pool statistics are reverted on exit from the exact values recorded
at mint, never recomputed, so a participate/exit pair restores the pool
bit-for-bit.

*/

package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/nft"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/oracle"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/pricer"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/registry"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/twaml"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/utils"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/weekly"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotAuthorized        = errors.New("caller is not owner or approved")
	ErrPoolNotFound         = errors.New("pool not registered")
	ErrPoolExists           = errors.New("pool already registered")
	ErrPoolInactive         = errors.New("pool is not active")
	ErrPositionNotFound     = errors.New("position not found")
	ErrAlreadyParticipating = errors.New("lock already has a position")
	ErrLockExited           = errors.New("lock has already been released")
	ErrNotExpired           = errors.New("lock duration has not elapsed")
	ErrPositionExpired      = errors.New("position is past expiry")
	ErrPaymentTokenDisabled = errors.New("payment token is disabled")
	ErrExceedsEntitlement   = errors.New("exercise exceeds epoch entitlement")
	ErrPaymentMismatch      = errors.New("funded payment does not match quote")
	ErrOracleFailure        = errors.New("oracle query failed")
)

// Ledger owns pools, positions and payment-token configuration.
type Ledger struct {
	params twaml.Params

	pools         map[types.PoolID]*types.Pool
	positions     map[types.PositionID]*types.Position
	paymentTokens map[string]types.PaymentTokenConfig

	locks  *registry.LockRegistry
	owners nft.Registry
	weeks  *weekly.RewardLedger
	pricer *pricer.Pricer
	rates  oracle.Source

	logger zerolog.Logger
}

func New(params twaml.Params, locks *registry.LockRegistry, owners nft.Registry, weeks *weekly.RewardLedger, quote *pricer.Pricer, rates oracle.Source) *Ledger {
	return &Ledger{
		params:        params,
		pools:         make(map[types.PoolID]*types.Pool),
		positions:     make(map[types.PositionID]*types.Position),
		paymentTokens: make(map[string]types.PaymentTokenConfig),
		locks:         locks,
		owners:        owners,
		weeks:         weeks,
		pricer:        quote,
		rates:         rates,
		logger:        logger.GetForComponent("position_ledger"),
	}
}

// RegisterPool adds a pool with an emission weight.
func (l *Ledger) RegisterPool(id types.PoolID, weight sdkmath.Int) (*types.Pool, error) {
	if _, ok := l.pools[id]; ok {
		return nil, fmt.Errorf("%w: pool %d", ErrPoolExists, id)
	}
	pool := types.NewPool(id, weight)
	l.pools[id] = pool
	l.logger.Info().Uint64("poolID", uint64(id)).Str("weight", weight.String()).Msg("Pool registered")
	return pool, nil
}

// SetPoolWeight updates a pool's emission weight. The change takes effect
// at the next epoch allocation.
func (l *Ledger) SetPoolWeight(id types.PoolID, weight sdkmath.Int) error {
	pool, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	pool.Weight = weight
	return nil
}

// SetPoolActive flips a pool in or out of the active set.
func (l *Ledger) SetPoolActive(id types.PoolID, active bool) error {
	pool, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	pool.Active = active
	return nil
}

// Pool returns a pool by id.
func (l *Ledger) Pool(id types.PoolID) (*types.Pool, error) {
	pool, ok := l.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	return pool, nil
}

// Pools returns all registered pools in id order.
func (l *Ledger) Pools() []*types.Pool {
	out := make([]*types.Pool, 0, len(l.pools))
	for _, pool := range l.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPaymentToken enables or reconfigures a payment token. A config with
// Enabled == false, or one whose oracle refuses the query, disables the
// token for subsequent exercises.
func (l *Ledger) SetPaymentToken(cfg types.PaymentTokenConfig) {
	l.paymentTokens[cfg.Denom] = cfg
	l.logger.Info().Str("denom", cfg.Denom).Bool("enabled", cfg.Enabled).Msg("Payment token configured")
}

// PaymentTokens returns configured payment tokens in denom order.
func (l *Ledger) PaymentTokens() []types.PaymentTokenConfig {
	out := make([]types.PaymentTokenConfig, 0, len(l.paymentTokens))
	for _, cfg := range l.paymentTokens {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}

// Participate evaluates a lock against its pool's twAML statistics, mints a
// position, applies the pool-stat update, and registers the position's
// weekly vote window. Dust locks still count toward totalDeposited but
// leave the magnitude statistics untouched.
func (l *Ledger) Participate(caller string, lockID types.LockID, now time.Time) (*types.Position, error) {
	lock, err := l.locks.Get(lockID)
	if err != nil {
		return nil, err
	}
	if lock.Owner != caller {
		return nil, fmt.Errorf("%w: lock %d", ErrNotAuthorized, lockID)
	}
	switch lock.State {
	case types.LockStateParticipating:
		return nil, fmt.Errorf("%w: lock %d", ErrAlreadyParticipating, lockID)
	case types.LockStateExited:
		return nil, fmt.Errorf("%w: lock %d", ErrLockExited, lockID)
	}
	pool, ok := l.pools[lock.PoolID]
	if !ok {
		return nil, fmt.Errorf("%w: pool %d", ErrPoolNotFound, lock.PoolID)
	}
	if !pool.Active {
		return nil, fmt.Errorf("%w: pool %d", ErrPoolInactive, lock.PoolID)
	}

	part, err := twaml.Evaluate(*pool, lock.Amount, lock.Duration, l.params)
	if err != nil {
		return nil, fmt.Errorf("evaluating participation for lock %d: %w", lockID, err)
	}

	minted, err := l.owners.Mint(lock.Owner)
	if err != nil {
		return nil, fmt.Errorf("minting position for lock %d: %w", lockID, err)
	}
	id := types.PositionID(minted)

	expiry := lock.Expiry()
	entryWeek := l.weeks.CurrentWeek(now)
	exitWeek := l.weeks.CurrentWeek(expiry)
	if err := l.weeks.RegisterVotes(entryWeek+1, exitWeek, part.Votes); err != nil {
		return nil, fmt.Errorf("registering votes for lock %d: %w", lockID, err)
	}

	if err := l.locks.MarkParticipating(lockID); err != nil {
		return nil, err
	}
	l.applyParticipation(pool, lock.Amount, part)

	position := &types.Position{
		ID:                     id,
		LockID:                 lockID,
		PoolID:                 lock.PoolID,
		Owner:                  lock.Owner,
		Magnitude:              part.Magnitude,
		AverageMagnitudeAtMint: part.AverageAtMint,
		FactorBps:              part.FactorBps,
		Votes:                  part.Votes,
		Expiry:                 expiry,
		HasVotingPower:         part.HasVotingPower,
		EntryWeek:              entryWeek,
		ExitWeek:               exitWeek,
		ExercisedByEpoch:       make(map[uint64]sdkmath.Int),
	}
	l.positions[id] = position

	l.logger.Info().
		Uint64("positionID", uint64(id)).
		Uint64("lockID", uint64(lockID)).
		Uint64("poolID", uint64(lock.PoolID)).
		Str("amount", lock.Amount.String()).
		Str("votes", part.Votes.String()).
		Str("factorBps", part.FactorBps.String()).
		Bool("votingPower", part.HasVotingPower).
		Msg("Position minted")
	return position, nil
}

// Exit releases an expired position: pool statistics are reverted from the
// values recorded at mint, custody returns to the owner, and the position
// token is burned. Exiting a missing or already-exited position is a no-op.
// The position record stays behind so accrued weekly rewards remain
// claimable.
func (l *Ledger) Exit(caller string, positionID types.PositionID, now time.Time) error {
	position, ok := l.positions[positionID]
	if !ok {
		return nil
	}
	lock, err := l.locks.Get(position.LockID)
	if err != nil {
		return err
	}
	if lock.State == types.LockStateExited {
		return nil
	}

	if !l.owners.IsApprovedOrOwner(uint64(positionID), caller) {
		return fmt.Errorf("%w: position %d", ErrNotAuthorized, positionID)
	}
	if now.Before(position.Expiry) {
		return fmt.Errorf("%w: position %d expires at %s", ErrNotExpired, positionID, position.Expiry.Format(time.RFC3339))
	}
	pool, ok := l.pools[position.PoolID]
	if !ok {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, position.PoolID)
	}

	released, err := l.locks.Release(position.LockID)
	if err != nil {
		return err
	}
	l.revertParticipation(pool, lock.Amount, position)
	if err := l.owners.Burn(uint64(positionID)); err != nil {
		return fmt.Errorf("burning position %d: %w", positionID, err)
	}

	l.logger.Info().
		Uint64("positionID", uint64(positionID)).
		Uint64("lockID", uint64(position.LockID)).
		Str("released", released.String()).
		Msg("Position exited")
	return nil
}

// Exercise buys reward tokens at the position's discount against a payment
// token. wantedAmount == 0 means the full remaining epoch entitlement;
// otherwise it must be an exact multiple of the pricing unit. The funded
// payment must equal the quote exactly: a payment token that delivers less
// than quoted fails the whole exercise.
func (l *Ledger) Exercise(caller string, positionID types.PositionID, epoch types.EpochState, paymentToken string, wantedAmount, funded sdkmath.Int, now time.Time) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	position, ok := l.positions[positionID]
	if !ok {
		return zero, zero, fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}
	lock, err := l.locks.Get(position.LockID)
	if err != nil {
		return zero, zero, err
	}
	if lock.State == types.LockStateExited {
		return zero, zero, fmt.Errorf("%w: lock %d", ErrLockExited, position.LockID)
	}
	if !l.owners.IsApprovedOrOwner(uint64(positionID), caller) {
		return zero, zero, fmt.Errorf("%w: position %d", ErrNotAuthorized, positionID)
	}
	if !now.Before(position.Expiry) {
		return zero, zero, fmt.Errorf("%w: position %d", ErrPositionExpired, positionID)
	}

	rate, err := l.paymentRate(paymentToken)
	if err != nil {
		return zero, zero, err
	}
	cfg := l.paymentTokens[paymentToken]

	pool, ok := l.pools[position.PoolID]
	if !ok {
		return zero, zero, fmt.Errorf("%w: pool %d", ErrPoolNotFound, position.PoolID)
	}
	entitlement := l.entitlement(position, pool, epoch)
	exercised := position.Exercised(epoch.Epoch)
	remaining := entitlement.Sub(exercised)

	amount := wantedAmount
	if amount.IsNil() || amount.IsZero() {
		amount = l.pricer.TruncateToUnit(remaining)
	} else if err := l.pricer.CheckUnit(amount); err != nil {
		return zero, zero, err
	}
	if !amount.IsPositive() || amount.GT(remaining) {
		return zero, zero, fmt.Errorf("%w: position %d wants %s of %s remaining",
			ErrExceedsEntitlement, positionID, amount.String(), remaining.String())
	}

	payment, err := l.pricer.PaymentAmount(amount, epoch.Valuation, position.FactorBps, rate, cfg.Decimals)
	if err != nil {
		return zero, zero, err
	}
	if funded.IsNil() || !funded.Equal(payment) {
		return zero, zero, fmt.Errorf("%w: quoted %s, funded %s", ErrPaymentMismatch, payment.String(), funded.String())
	}

	position.ExercisedByEpoch[epoch.Epoch] = exercised.Add(amount)

	l.logger.Info().
		Uint64("positionID", uint64(positionID)).
		Uint64("epoch", epoch.Epoch).
		Str("rewardAmount", amount.String()).
		Str("payment", payment.String()).
		Str("paymentToken", paymentToken).
		Msg("Position exercised")
	return amount, payment, nil
}

// Entitlement returns a position's total reward entitlement for an epoch:
// the pool's allocation pro-rata to the lock's share of total deposits.
func (l *Ledger) Entitlement(positionID types.PositionID, epoch types.EpochState) (sdkmath.Int, error) {
	position, ok := l.positions[positionID]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}
	pool, ok := l.pools[position.PoolID]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: pool %d", ErrPoolNotFound, position.PoolID)
	}
	return l.entitlement(position, pool, epoch), nil
}

// Claim pays out one reward token's accrual. While the position token
// exists an approved operator may claim like the owner; claims outlive
// exit, so after the burn only the owner of record remains authorized.
func (l *Ledger) Claim(caller string, positionID types.PositionID, token string) (sdkmath.Int, error) {
	position, ok := l.positions[positionID]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}
	if !l.claimAuthorized(position, caller) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: position %d", ErrNotAuthorized, positionID)
	}
	return l.weeks.Claim(*position, token), nil
}

// ClaimAll claims every reward token for a position, returning the paid
// amounts by token.
func (l *Ledger) ClaimAll(caller string, positionID types.PositionID) (map[string]sdkmath.Int, error) {
	position, ok := l.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}
	if !l.claimAuthorized(position, caller) {
		return nil, fmt.Errorf("%w: position %d", ErrNotAuthorized, positionID)
	}
	out := make(map[string]sdkmath.Int)
	for _, token := range l.weeks.RewardTokens() {
		if amount := l.weeks.Claim(*position, token); !amount.IsZero() {
			out[token] = amount
		}
	}
	return out, nil
}

// Claimable returns the unclaimed weekly accrual per reward token.
func (l *Ledger) Claimable(positionID types.PositionID) (map[string]sdkmath.Int, error) {
	position, ok := l.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: position %d", ErrPositionNotFound, positionID)
	}
	out := make(map[string]sdkmath.Int)
	for _, token := range l.weeks.RewardTokens() {
		if amount := l.weeks.Claimable(*position, token); !amount.IsZero() {
			out[token] = amount
		}
	}
	return out, nil
}

// Position returns a position by id.
func (l *Ledger) Position(id types.PositionID) (*types.Position, error) {
	position, ok := l.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: position %d", ErrPositionNotFound, id)
	}
	return position, nil
}

// Positions returns all position records in id order, including exited
// ones that still carry claimable rewards.
func (l *Ledger) Positions() []*types.Position {
	out := make([]*types.Position, 0, len(l.positions))
	for _, position := range l.positions {
		out = append(out, position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore loads pools, positions and payment tokens from a snapshot.
func (l *Ledger) Restore(pools []types.Pool, positions []types.Position, tokens []types.PaymentTokenConfig) {
	l.pools = make(map[types.PoolID]*types.Pool, len(pools))
	for i := range pools {
		pool := pools[i]
		l.pools[pool.ID] = &pool
	}
	l.positions = make(map[types.PositionID]*types.Position, len(positions))
	for i := range positions {
		position := positions[i]
		if position.ExercisedByEpoch == nil {
			position.ExercisedByEpoch = make(map[uint64]sdkmath.Int)
		}
		l.positions[position.ID] = &position
	}
	l.paymentTokens = make(map[string]types.PaymentTokenConfig, len(tokens))
	for _, cfg := range tokens {
		l.paymentTokens[cfg.Denom] = cfg
	}
}

func (l *Ledger) entitlement(position *types.Position, pool *types.Pool, epoch types.EpochState) sdkmath.Int {
	allocation := epoch.Allocation(position.PoolID)
	if allocation.IsZero() || pool.TotalDeposited.IsZero() {
		return sdkmath.ZeroInt()
	}
	lock, err := l.locks.Get(position.LockID)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	share, err := utils.MulDiv(allocation, lock.Amount, pool.TotalDeposited)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return share
}

// applyParticipation is the only code path that increases pool twAML
// statistics. Dust participations move totalDeposited only.
func (l *Ledger) applyParticipation(pool *types.Pool, amount sdkmath.Int, part twaml.Participation) {
	pool.TotalDeposited = pool.TotalDeposited.Add(amount)
	if !part.HasVotingPower {
		return
	}
	pool.TotalParticipants++
	pool.CumulativeMagnitude = pool.CumulativeMagnitude.Add(part.Magnitude)
	pool.AverageMagnitude = twaml.AverageMagnitude(*pool)
}

// revertParticipation subtracts exactly what applyParticipation added,
// using the magnitude recorded on the position at mint.
func (l *Ledger) revertParticipation(pool *types.Pool, amount sdkmath.Int, position *types.Position) {
	pool.TotalDeposited = pool.TotalDeposited.Sub(amount)
	if !position.HasVotingPower {
		return
	}
	pool.TotalParticipants--
	pool.CumulativeMagnitude = pool.CumulativeMagnitude.Sub(position.Magnitude)
	pool.AverageMagnitude = twaml.AverageMagnitude(*pool)
}

// claimAuthorized admits the owner of record always, and approved
// operators for as long as the position token is alive.
func (l *Ledger) claimAuthorized(position *types.Position, caller string) bool {
	if position.Owner == caller {
		return true
	}
	return l.owners.IsApprovedOrOwner(uint64(position.ID), caller)
}

func (l *Ledger) paymentRate(denom string) (sdkmath.LegacyDec, error) {
	cfg, ok := l.paymentTokens[denom]
	if !ok || !cfg.Enabled {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrPaymentTokenDisabled, denom)
	}
	ok, rate, err := l.rates.Get(cfg.OracleData)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s: %v", ErrOracleFailure, denom, err)
	}
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s oracle declined", ErrPaymentTokenDisabled, denom)
	}
	return rate, nil
}
