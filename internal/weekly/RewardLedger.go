/*

This file contains the weekly reward ledger: a signed difference array of
vote deltas per week, a bounded-step catch-up that integrates it into a
running active-vote total, and per-token cumulative reward-per-vote
checkpoints that make any position's claim O(1) regardless of history.

Votes registered during week w become effective at week w+1, so a
distribution made during a fully processed week can never be claimed by a
position that was absent from its denominator.

*/

package weekly

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrWeeksPending     = errors.New("weeks pending processing, advance first")
	ErrNoActiveVotes    = errors.New("no active votes to distribute against")
	ErrZeroDistribution = errors.New("distribution amount must be positive")
	ErrZeroVotes        = errors.New("votes must be positive")
	ErrWeekInPast       = errors.New("vote delta targets an already processed week")
)

// RewardLedger tracks weekly vote totals and reward accrual.
type RewardLedger struct {
	genesis    time.Time
	weekLength time.Duration

	deltas            map[int64]sdkmath.Int // Signed vote deltas by week
	processedTotals   map[int64]sdkmath.Int // Integrated active votes per processed week
	lastProcessedWeek int64
	activeVotes       sdkmath.Int // Integrated total at lastProcessedWeek

	checkpoints map[string][]types.RewardCheckpoint
	claimed     map[types.PositionID]map[string]sdkmath.Int

	logger zerolog.Logger
}

func New(genesis time.Time, weekLength time.Duration) *RewardLedger {
	return &RewardLedger{
		genesis:           genesis,
		weekLength:        weekLength,
		deltas:            make(map[int64]sdkmath.Int),
		processedTotals:   map[int64]sdkmath.Int{0: sdkmath.ZeroInt()},
		lastProcessedWeek: 0,
		activeVotes:       sdkmath.ZeroInt(),
		checkpoints:       make(map[string][]types.RewardCheckpoint),
		claimed:           make(map[types.PositionID]map[string]sdkmath.Int),
		logger:            logger.GetForComponent("weekly_ledger"),
	}
}

// CurrentWeek is a pure function of wall-clock time.
func (l *RewardLedger) CurrentWeek(now time.Time) int64 {
	if now.Before(l.genesis) {
		return 0
	}
	return int64(now.Sub(l.genesis) / l.weekLength)
}

// LastProcessedWeek returns the catch-up watermark.
func (l *RewardLedger) LastProcessedWeek() int64 {
	return l.lastProcessedWeek
}

// ActiveVotes returns the integrated vote total at the watermark.
func (l *RewardLedger) ActiveVotes() sdkmath.Int {
	return l.activeVotes
}

// RegisterVotes records the two point-events of a participation: +votes at
// firstActiveWeek and -votes at firstInactiveWeek. An empty window is a
// no-op: locks shorter than a week earn no weekly accrual.
func (l *RewardLedger) RegisterVotes(firstActiveWeek, firstInactiveWeek int64, votes sdkmath.Int) error {
	if votes.IsNil() || votes.IsZero() {
		return nil
	}
	if votes.IsNegative() {
		return ErrZeroVotes
	}
	if firstInactiveWeek <= firstActiveWeek {
		return nil
	}
	if firstActiveWeek <= l.lastProcessedWeek {
		return fmt.Errorf("%w: week %d, processed through %d", ErrWeekInPast, firstActiveWeek, l.lastProcessedWeek)
	}

	l.deltas[firstActiveWeek] = l.deltaAt(firstActiveWeek).Add(votes)
	l.deltas[firstInactiveWeek] = l.deltaAt(firstInactiveWeek).Sub(votes)
	return nil
}

// AdvanceWeek integrates the difference array from the watermark toward the
// current week, at most maxSteps weeks per call. Partial advances are safe
// and resumable; it returns the number of weeks processed.
func (l *RewardLedger) AdvanceWeek(now time.Time, maxSteps int64) int64 {
	if maxSteps <= 0 {
		return 0
	}
	target := l.CurrentWeek(now)
	if capped := l.lastProcessedWeek + maxSteps; target > capped {
		target = capped
	}

	steps := int64(0)
	for w := l.lastProcessedWeek + 1; w <= target; w++ {
		l.activeVotes = l.activeVotes.Add(l.deltaAt(w))
		l.processedTotals[w] = l.activeVotes
		steps++
	}
	if steps > 0 {
		l.lastProcessedWeek = target
		l.logger.Debug().
			Int64("week", l.lastProcessedWeek).
			Int64("steps", steps).
			Str("activeVotes", l.activeVotes.String()).
			Msg("Weeks processed")
	}
	return steps
}

// DistributeReward adds amount/activeVotes to the token's cumulative
// per-vote accumulator at the current week. The ledger must be fully caught
// up, and there must be active votes: distributing against an empty week is
// a defined failure the caller retries later. The integer-division
// remainder stays undistributed.
func (l *RewardLedger) DistributeReward(now time.Time, token string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroDistribution
	}
	current := l.CurrentWeek(now)
	if l.lastProcessedWeek != current {
		return fmt.Errorf("%w: processed %d, current %d", ErrWeeksPending, l.lastProcessedWeek, current)
	}
	if l.activeVotes.IsZero() {
		return ErrNoActiveVotes
	}

	perVote := sdkmath.LegacyNewDecFromInt(amount).QuoInt(l.activeVotes)
	l.appendCheckpoint(token, current, perVote)

	l.logger.Info().
		Str("token", token).
		Str("amount", amount.String()).
		Int64("week", current).
		Str("perVote", perVote.String()).
		Msg("Reward distributed")
	return nil
}

// Claimable returns the unclaimed accrual for a position in one token. It
// stays valid after exit: the window is bounded by the position's last
// active week, not its lifecycle.
func (l *RewardLedger) Claimable(p types.Position, token string) sdkmath.Int {
	if p.Votes.IsNil() || p.Votes.IsZero() {
		return sdkmath.ZeroInt()
	}
	end := p.ExitWeek - 1
	if l.lastProcessedWeek < end {
		end = l.lastProcessedWeek
	}
	if end <= p.EntryWeek {
		return sdkmath.ZeroInt()
	}

	accrued := l.cumAt(token, end).Sub(l.cumAt(token, p.EntryWeek)).MulInt(p.Votes).TruncateInt()
	paid := l.claimedAmount(p.ID, token)
	if accrued.LTE(paid) {
		return sdkmath.ZeroInt()
	}
	return accrued.Sub(paid)
}

// Claim pays out and records the claimable amount for one token.
func (l *RewardLedger) Claim(p types.Position, token string) sdkmath.Int {
	amount := l.Claimable(p, token)
	if amount.IsZero() {
		return amount
	}
	byToken, ok := l.claimed[p.ID]
	if !ok {
		byToken = make(map[string]sdkmath.Int)
		l.claimed[p.ID] = byToken
	}
	byToken[token] = l.claimedAmount(p.ID, token).Add(amount)

	l.logger.Info().
		Uint64("positionID", uint64(p.ID)).
		Str("token", token).
		Str("amount", amount.String()).
		Msg("Reward claimed")
	return amount
}

// RewardTokens lists every token that has ever been distributed, sorted.
func (l *RewardLedger) RewardTokens() []string {
	tokens := make([]string, 0, len(l.checkpoints))
	for token := range l.checkpoints {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// ProcessedTotal returns the integrated active-vote total at a processed
// week, zero for weeks before genesis or beyond the watermark.
func (l *RewardLedger) ProcessedTotal(week int64) sdkmath.Int {
	if total, ok := l.processedTotals[week]; ok {
		return total
	}
	return sdkmath.ZeroInt()
}

// Snapshot exports the ledger's durable state.
func (l *RewardLedger) Snapshot() types.WeeklyState {
	deltas := make(map[int64]sdkmath.Int, len(l.deltas))
	for w, d := range l.deltas {
		deltas[w] = d
	}
	totals := make(map[int64]sdkmath.Int, len(l.processedTotals))
	for w, t := range l.processedTotals {
		totals[w] = t
	}
	checkpoints := make(map[string][]types.RewardCheckpoint, len(l.checkpoints))
	for token, cps := range l.checkpoints {
		checkpoints[token] = append([]types.RewardCheckpoint(nil), cps...)
	}
	claimed := make(map[types.PositionID]map[string]sdkmath.Int, len(l.claimed))
	for id, byToken := range l.claimed {
		inner := make(map[string]sdkmath.Int, len(byToken))
		for token, amt := range byToken {
			inner[token] = amt
		}
		claimed[id] = inner
	}
	return types.WeeklyState{
		LastProcessedWeek: l.lastProcessedWeek,
		ActiveVotes:       l.activeVotes,
		VoteDeltas:        deltas,
		ProcessedTotals:   totals,
		Checkpoints:       checkpoints,
		Claimed:           claimed,
	}
}

// Restore loads ledger state from a snapshot.
func (l *RewardLedger) Restore(state types.WeeklyState) {
	l.lastProcessedWeek = state.LastProcessedWeek
	l.activeVotes = state.ActiveVotes
	if l.activeVotes.IsNil() {
		l.activeVotes = sdkmath.ZeroInt()
	}
	l.deltas = make(map[int64]sdkmath.Int, len(state.VoteDeltas))
	for w, d := range state.VoteDeltas {
		l.deltas[w] = d
	}
	l.processedTotals = make(map[int64]sdkmath.Int, len(state.ProcessedTotals))
	for w, t := range state.ProcessedTotals {
		l.processedTotals[w] = t
	}
	l.checkpoints = make(map[string][]types.RewardCheckpoint, len(state.Checkpoints))
	for token, cps := range state.Checkpoints {
		l.checkpoints[token] = append([]types.RewardCheckpoint(nil), cps...)
	}
	l.claimed = make(map[types.PositionID]map[string]sdkmath.Int, len(state.Claimed))
	for id, byToken := range state.Claimed {
		inner := make(map[string]sdkmath.Int, len(byToken))
		for token, amt := range byToken {
			inner[token] = amt
		}
		l.claimed[id] = inner
	}
}

func (l *RewardLedger) deltaAt(week int64) sdkmath.Int {
	if d, ok := l.deltas[week]; ok {
		return d
	}
	return sdkmath.ZeroInt()
}

func (l *RewardLedger) claimedAmount(id types.PositionID, token string) sdkmath.Int {
	if byToken, ok := l.claimed[id]; ok {
		if amt, ok := byToken[token]; ok {
			return amt
		}
	}
	return sdkmath.ZeroInt()
}

// cumAt returns the cumulative per-vote accumulator as of the end of the
// given week: the nearest checkpoint at or before it, zero if none.
func (l *RewardLedger) cumAt(token string, week int64) sdkmath.LegacyDec {
	cps := l.checkpoints[token]
	if len(cps) == 0 {
		return sdkmath.LegacyZeroDec()
	}
	// First checkpoint strictly after week; the answer precedes it.
	idx := sort.Search(len(cps), func(i int) bool { return cps[i].Week > week })
	if idx == 0 {
		return sdkmath.LegacyZeroDec()
	}
	return cps[idx-1].CumPerVote
}

func (l *RewardLedger) appendCheckpoint(token string, week int64, perVote sdkmath.LegacyDec) {
	cps := l.checkpoints[token]
	if n := len(cps); n > 0 && cps[n-1].Week == week {
		cps[n-1].CumPerVote = cps[n-1].CumPerVote.Add(perVote)
		l.checkpoints[token] = cps
		return
	}
	prev := sdkmath.LegacyZeroDec()
	if n := len(cps); n > 0 {
		prev = cps[n-1].CumPerVote
	}
	l.checkpoints[token] = append(cps, types.RewardCheckpoint{Week: week, CumPerVote: prev.Add(perVote)})
}
