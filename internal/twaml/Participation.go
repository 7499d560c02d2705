/*

This file contains the evaluation of a single lock participation against the
pool's running twAML statistics: the dust rule, the factor derivation, and
the exact statistic deltas the ledger applies at mint and reverts at exit.

*/

package twaml

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/utils"
)

var (
	ErrZeroAmount = errors.New("amount must be positive")
)

var amlLogger = logger.GetForComponent("twaml_engine")

// Params are the deployment-configurable twAML knobs.
type Params struct {
	MaxDuration  time.Duration
	DustBps      int64 // Minimum share of TotalDeposited, in bps, for voting power
	MinFactorBps int64
	MaxFactorBps int64
}

// Participation is the exact record of how a single lock perturbed the pool
// statistics. The ledger stores it on the position and reverts precisely
// these values at exit, never a recomputation.
type Participation struct {
	Magnitude      sdkmath.Int
	AverageAtMint  sdkmath.Int
	FactorBps      sdkmath.Int
	Votes          sdkmath.Int
	HasVotingPower bool
}

// Evaluate computes a lock's participation against the current pool state
// without mutating it. The dust rule compares the amount to the pool's
// TotalDeposited before this lock is added: below the threshold the
// participation carries no voting power and no votes.
func Evaluate(pool types.Pool, amount sdkmath.Int, duration time.Duration, params Params) (Participation, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return Participation{}, ErrZeroAmount
	}

	magnitude, err := ComputeMagnitude(duration, params.MaxDuration)
	if err != nil {
		return Participation{}, fmt.Errorf("magnitude computation failed: %w", err)
	}

	average := AverageMagnitude(pool)
	factor, err := ComputeFactor(magnitude, average, params.MinFactorBps, params.MaxFactorBps)
	if err != nil {
		return Participation{}, fmt.Errorf("factor computation failed: %w", err)
	}

	p := Participation{
		Magnitude:      magnitude,
		AverageAtMint:  average,
		FactorBps:      factor,
		Votes:          sdkmath.ZeroInt(),
		HasVotingPower: hasVotingPower(pool, amount, params.DustBps),
	}
	if p.HasVotingPower {
		votes, err := utils.MulDiv(amount, factor, sdkmath.NewInt(utils.BpsDivisor))
		if err != nil {
			return Participation{}, fmt.Errorf("vote weighting failed: %w", err)
		}
		p.Votes = votes
	} else {
		amlLogger.Debug().
			Uint64("poolID", uint64(pool.ID)).
			Str("amount", amount.String()).
			Msg("Participation below dust threshold, voting power withheld")
	}
	return p, nil
}

// AverageMagnitude derives the pool average from the exact cumulative sum.
// Deriving rather than incrementally updating makes add/remove of the same
// magnitude an exact inverse.
func AverageMagnitude(pool types.Pool) sdkmath.Int {
	if pool.TotalParticipants <= 0 || pool.CumulativeMagnitude.IsNil() {
		return sdkmath.ZeroInt()
	}
	return pool.CumulativeMagnitude.QuoRaw(pool.TotalParticipants)
}

// hasVotingPower applies the dust rule: amount must be at least
// dustBps/10000 of the pool's deposits at mint time. An empty pool always
// grants voting power.
func hasVotingPower(pool types.Pool, amount sdkmath.Int, dustBps int64) bool {
	if pool.TotalDeposited.IsNil() || pool.TotalDeposited.IsZero() {
		return true
	}
	threshold, err := utils.BpsOf(pool.TotalDeposited, dustBps)
	if err != nil {
		return false
	}
	return amount.GTE(threshold)
}
