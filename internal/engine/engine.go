/*

This file contains the engine service: the single entry point for every
mutating operation. One mutex serializes all calls, so each operation is
atomic and totally ordered relative to every other. The engine composes the
lock registry, the position ledger, the epoch scheduler and the weekly
reward ledger, tags each mutating call with an operation id for log
tracing, and persists a snapshot after successful mutations. Persistence
failures are logged and never undo the in-memory transition that produced
them.

*/

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/ledger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/registry"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/weekly"

	scheduler "github.com/Tapioca-DAO/tap-token-sub000/internal/epoch"
)

// Store persists engine snapshots and claim audit rows. A nil Store
// disables persistence.
type Store interface {
	SaveSnapshot(snapshot types.EngineSnapshot) error
	LatestSnapshot() (*types.EngineSnapshot, error)
	RecordClaim(positionID types.PositionID, owner, token string, amount sdkmath.Int) error
}

// Engine serializes all ledger operations behind one mutex.
type Engine struct {
	mu sync.Mutex

	locks  *registry.LockRegistry
	ledger *ledger.Ledger
	epochs *scheduler.Scheduler
	weeks  *weekly.RewardLedger

	store        Store
	maxWeekSteps int64
	clock        func() time.Time

	logger zerolog.Logger
}

// New builds an engine. clock may be nil, in which case time.Now is used.
func New(locks *registry.LockRegistry, posLedger *ledger.Ledger, epochs *scheduler.Scheduler, weeks *weekly.RewardLedger, store Store, maxWeekSteps int64, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		locks:        locks,
		ledger:       posLedger,
		epochs:       epochs,
		weeks:        weeks,
		store:        store,
		maxWeekSteps: maxWeekSteps,
		clock:        clock,
		logger:       logger.GetForComponent("engine"),
	}
}

// RegisterPool adds a pool with an emission weight.
func (e *Engine) RegisterPool(id types.PoolID, weight sdkmath.Int) (*types.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	pool, err := e.ledger.RegisterPool(id, weight)
	if err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Uint64("poolID", uint64(id)).Msg("RegisterPool failed")
		return nil, err
	}
	e.persist(opID)
	return pool, nil
}

// SetPoolWeight updates a pool's emission weight.
func (e *Engine) SetPoolWeight(id types.PoolID, weight sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	if err := e.ledger.SetPoolWeight(id, weight); err != nil {
		return err
	}
	e.persist(opID)
	return nil
}

// SetPoolActive flips a pool in or out of the active set.
func (e *Engine) SetPoolActive(id types.PoolID, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	if err := e.ledger.SetPoolActive(id, active); err != nil {
		return err
	}
	e.persist(opID)
	return nil
}

// SetPaymentToken enables or reconfigures a payment token for exercise.
func (e *Engine) SetPaymentToken(cfg types.PaymentTokenConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	e.ledger.SetPaymentToken(cfg)
	e.persist(opID)
}

// Lock deposits an asset into custody for a chosen duration. The target
// pool must be registered and active.
func (e *Engine) Lock(owner string, poolID types.PoolID, asset string, amount sdkmath.Int, duration time.Duration) (*types.Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	pool, err := e.ledger.Pool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, fmt.Errorf("%w: pool %d", ledger.ErrPoolInactive, poolID)
	}
	lock, err := e.locks.CreateLock(owner, poolID, asset, amount, duration, e.clock())
	if err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Str("owner", owner).Msg("Lock failed")
		return nil, err
	}
	e.persist(opID)
	return lock, nil
}

// Participate converts a lock into a voting/option position.
func (e *Engine) Participate(caller string, lockID types.LockID) (*types.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	position, err := e.ledger.Participate(caller, lockID, e.clock())
	if err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Uint64("lockID", uint64(lockID)).Msg("Participate failed")
		return nil, err
	}
	e.persist(opID)
	return position, nil
}

// Exit releases an expired position back to its owner.
func (e *Engine) Exit(caller string, positionID types.PositionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	if err := e.ledger.Exit(caller, positionID, e.clock()); err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Uint64("positionID", uint64(positionID)).Msg("Exit failed")
		return err
	}
	e.persist(opID)
	return nil
}

// Exercise buys reward tokens at the position's discount against the
// current epoch's frozen valuation. It returns the reward amount filled
// and the payment collected.
func (e *Engine) Exercise(caller string, positionID types.PositionID, paymentToken string, wantedAmount, funded sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	reward, payment, err := e.ledger.Exercise(caller, positionID, e.epochs.Current(), paymentToken, wantedAmount, funded, e.clock())
	if err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Uint64("positionID", uint64(positionID)).Msg("Exercise failed")
		return reward, payment, err
	}
	e.persist(opID)
	return reward, payment, nil
}

// NewEpoch advances the epoch if the interval has elapsed. Calling early
// returns (false, nil).
func (e *Engine) NewEpoch() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	advanced, err := e.epochs.Advance(e.clock(), e.poolValues())
	if err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Msg("NewEpoch failed")
		return false, err
	}
	if advanced {
		e.persist(opID)
	}
	return advanced, nil
}

// AdvanceWeek integrates pending weekly vote deltas, bounded per call.
// It returns the number of weeks processed.
func (e *Engine) AdvanceWeek() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	steps := e.weeks.AdvanceWeek(e.clock(), e.maxWeekSteps)
	if steps > 0 {
		e.persist(opID)
	}
	return steps
}

// DistributeReward spreads a reward amount over the current week's active
// votes. The weekly ledger must be fully caught up.
func (e *Engine) DistributeReward(token string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	if err := e.weeks.DistributeReward(e.clock(), token, amount); err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Str("token", token).Msg("DistributeReward failed")
		return err
	}
	e.persist(opID)
	return nil
}

// Claim pays out one reward token's accrual for a position.
func (e *Engine) Claim(caller string, positionID types.PositionID, token string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	amount, err := e.ledger.Claim(caller, positionID, token)
	if err != nil {
		return amount, err
	}
	if !amount.IsZero() {
		e.audit(opID, positionID, caller, token, amount)
		e.persist(opID)
	}
	return amount, nil
}

// ClaimAll claims every reward token for a position.
func (e *Engine) ClaimAll(caller string, positionID types.PositionID) (map[string]sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opID := uuid.New().String()

	amounts, err := e.ledger.ClaimAll(caller, positionID)
	if err != nil {
		return nil, err
	}
	if len(amounts) > 0 {
		for token, amount := range amounts {
			e.audit(opID, positionID, caller, token, amount)
		}
		e.persist(opID)
	}
	return amounts, nil
}

// Pools returns all registered pools.
func (e *Engine) Pools() []types.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poolValues()
}

// Pool returns one pool by id.
func (e *Engine) Pool(id types.PoolID) (types.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.ledger.Pool(id)
	if err != nil {
		return types.Pool{}, err
	}
	return *pool, nil
}

// Position returns one position by id.
func (e *Engine) Position(id types.PositionID) (types.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	position, err := e.ledger.Position(id)
	if err != nil {
		return types.Position{}, err
	}
	return *position, nil
}

// Claimable returns unclaimed weekly accrual per reward token.
func (e *Engine) Claimable(id types.PositionID) (map[string]sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Claimable(id)
}

// PaymentTokens returns configured payment tokens.
func (e *Engine) PaymentTokens() []types.PaymentTokenConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PaymentTokens()
}

// EpochState returns the current epoch snapshot.
func (e *Engine) EpochState() types.EpochState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epochs.Current()
}

// WeeklyStatus reports the week watermark and active vote total.
func (e *Engine) WeeklyStatus() (currentWeek, lastProcessedWeek int64, activeVotes sdkmath.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weeks.CurrentWeek(e.clock()), e.weeks.LastProcessedWeek(), e.weeks.ActiveVotes()
}

// Snapshot exports the full durable state of the engine.
func (e *Engine) Snapshot() types.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Restore loads engine state from a snapshot, replacing all current state.
func (e *Engine) Restore(snapshot types.EngineSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.locks.Restore(snapshot.Locks)
	e.ledger.Restore(snapshot.Pools, snapshot.Positions, snapshot.PaymentTokens)
	e.epochs.Restore(snapshot.Epoch)
	e.weeks.Restore(snapshot.Weekly)
	e.logger.Info().Int64("snapshotID", snapshot.SnapshotID).Time("takenAt", snapshot.Timestamp).Msg("Engine state restored")
}

// RecoverFromStore restores the latest persisted snapshot if one exists.
func (e *Engine) RecoverFromStore() error {
	if e.store == nil {
		return nil
	}
	snapshot, err := e.store.LatestSnapshot()
	if err != nil {
		return err
	}
	if snapshot == nil {
		e.logger.Info().Msg("No snapshot found, starting from genesis state")
		return nil
	}
	e.Restore(*snapshot)
	return nil
}

// RunLoop drives epoch and week catch-up on a ticker until the context is
// cancelled. Early-epoch no-ops are silent; real failures are logged and
// retried on the next tick.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Engine loop starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopping")
			return
		case <-ticker.C:
			if steps := e.AdvanceWeek(); steps > 0 {
				e.logger.Info().Int64("weeks", steps).Msg("Weekly catch-up")
			}
			if advanced, err := e.NewEpoch(); err != nil {
				e.logger.Warn().Err(err).Msg("Epoch advance failed, will retry")
			} else if advanced {
				e.logger.Info().Uint64("epoch", e.EpochState().Epoch).Msg("Epoch advanced")
			}
		}
	}
}

func (e *Engine) poolValues() []types.Pool {
	pools := e.ledger.Pools()
	out := make([]types.Pool, 0, len(pools))
	for _, pool := range pools {
		out = append(out, *pool)
	}
	return out
}

func (e *Engine) snapshotLocked() types.EngineSnapshot {
	positions := e.ledger.Positions()
	posValues := make([]types.Position, 0, len(positions))
	for _, position := range positions {
		posValues = append(posValues, *position)
	}
	tokens := e.ledger.PaymentTokens()
	return types.EngineSnapshot{
		Timestamp:     e.clock(),
		Pools:         e.poolValues(),
		Locks:         e.locks.Locks(),
		Positions:     posValues,
		PaymentTokens: tokens,
		Epoch:         e.epochs.Current(),
		Weekly:        e.weeks.Snapshot(),
	}
}

// audit records a claim payout. Best effort, same as persist.
func (e *Engine) audit(opID string, positionID types.PositionID, owner, token string, amount sdkmath.Int) {
	if e.store == nil {
		return
	}
	if err := e.store.RecordClaim(positionID, owner, token, amount); err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Msg("Claim audit failed")
	}
}

// persist saves a snapshot after a successful mutation. Best effort: a
// failing store never rolls back the in-memory transition.
func (e *Engine) persist(opID string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSnapshot(e.snapshotLocked()); err != nil {
		e.logger.Error().Str("opID", opID).Err(err).Msg("Snapshot persistence failed")
	}
}
