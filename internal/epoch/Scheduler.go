/*

This file contains the epoch scheduler: a monotonic epoch counter advanced
no faster than once per configured interval, an oracle valuation snapshot
frozen per epoch, and the weight-proportional split of each epoch's emission
across registered pools.

*/

package epoch

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/oracle"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoActivePools = errors.New("no active pools registered")
	ErrOracleFailure = errors.New("valuation oracle is unusable")
	ErrZeroWeight    = errors.New("total pool weight is zero")
)

// Scheduler advances the global epoch state.
type Scheduler struct {
	duration   time.Duration
	emission   sdkmath.Int // Per-epoch allocation budget
	valuation  oracle.Source
	oracleData string

	state  types.EpochState
	logger zerolog.Logger
}

func New(duration time.Duration, emission sdkmath.Int, valuation oracle.Source, oracleData string, genesis time.Time) *Scheduler {
	return &Scheduler{
		duration:   duration,
		emission:   emission,
		valuation:  valuation,
		oracleData: oracleData,
		state: types.EpochState{
			Epoch:           0,
			LastEpochUpdate: genesis,
			Valuation:       sdkmath.LegacyZeroDec(),
			Allocations:     make(map[types.PoolID]sdkmath.Int),
		},
		logger: logger.GetForComponent("epoch_scheduler"),
	}
}

// Advance opens a new epoch if the interval has elapsed. It returns false
// with no error when called early (idempotent no-op); it returns an error
// when the system is not in a state to open an epoch at all. Integer
// remainders of the weight split are permanently lost to rounding.
func (s *Scheduler) Advance(now time.Time, pools []types.Pool) (bool, error) {
	if now.Before(s.state.LastEpochUpdate.Add(s.duration)) {
		return false, nil
	}

	active := make([]types.Pool, 0, len(pools))
	totalWeight := sdkmath.ZeroInt()
	for _, p := range pools {
		if p.Active && !p.Weight.IsNil() && p.Weight.IsPositive() {
			active = append(active, p)
			totalWeight = totalWeight.Add(p.Weight)
		}
	}
	if len(active) == 0 {
		return false, ErrNoActivePools
	}
	if totalWeight.IsZero() {
		return false, ErrZeroWeight
	}

	ok, rate, err := s.valuation.Get(s.oracleData)
	if err != nil {
		return false, fmt.Errorf("valuation snapshot failed: %w", err)
	}
	if !ok {
		return false, ErrOracleFailure
	}

	allocations := make(map[types.PoolID]sdkmath.Int, len(active))
	for _, p := range active {
		share, err := utils.MulDiv(s.emission, p.Weight, totalWeight)
		if err != nil {
			return false, fmt.Errorf("allocation split failed for pool %d: %w", p.ID, err)
		}
		allocations[p.ID] = share
	}

	s.state.Epoch++
	s.state.LastEpochUpdate = now
	s.state.Valuation = rate
	s.state.Allocations = allocations

	s.logger.Info().
		Uint64("epoch", s.state.Epoch).
		Str("valuation", rate.String()).
		Int("pools", len(active)).
		Str("emission", s.emission.String()).
		Msg("New epoch opened")
	return true, nil
}

// Current returns the epoch state. The valuation and allocations are frozen
// until the next successful Advance.
func (s *Scheduler) Current() types.EpochState {
	return s.state
}

// Restore loads epoch state from a snapshot.
func (s *Scheduler) Restore(state types.EpochState) {
	if state.Allocations == nil {
		state.Allocations = make(map[types.PoolID]sdkmath.Int)
	}
	s.state = state
}
