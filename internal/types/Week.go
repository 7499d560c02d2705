/*

This file contains the serializable state of the weekly reward ledger: the
signed vote difference array, per-token cumulative reward-per-vote
checkpoints, and per-position claim bookkeeping.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// RewardCheckpoint records the cumulative reward-per-vote accumulator for a
// token as of the end of a processed week. Checkpoints are kept sorted by
// week; the value at any week is the nearest checkpoint at or before it.
type RewardCheckpoint struct {
	Week       int64             `json:"week"`
	CumPerVote sdkmath.LegacyDec `json:"cum_per_vote"`
}

// WeeklyState is the durable footprint of the weekly reward ledger.
type WeeklyState struct {
	LastProcessedWeek int64                               `json:"last_processed_week"`
	ActiveVotes       sdkmath.Int                         `json:"active_votes"`
	VoteDeltas        map[int64]sdkmath.Int               `json:"vote_deltas"`
	ProcessedTotals   map[int64]sdkmath.Int               `json:"processed_totals"`
	Checkpoints       map[string][]RewardCheckpoint       `json:"checkpoints"`
	Claimed           map[PositionID]map[string]sdkmath.Int `json:"claimed"`
}
