// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// PostgresStore persists engine snapshots through the global DB pool.
type PostgresStore struct{}

// SaveSnapshot saves a complete engine snapshot to the database.
func (PostgresStore) SaveSnapshot(snapshot types.EngineSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// Marshal all JSONB fields
	poolsJSON, err := json.Marshal(snapshot.Pools)
	if err != nil {
		return fmt.Errorf("failed to marshal pools: %w", err)
	}

	locksJSON, err := json.Marshal(snapshot.Locks)
	if err != nil {
		return fmt.Errorf("failed to marshal locks: %w", err)
	}

	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}

	paymentTokensJSON, err := json.Marshal(snapshot.PaymentTokens)
	if err != nil {
		return fmt.Errorf("failed to marshal payment_tokens: %w", err)
	}

	epochJSON, err := json.Marshal(snapshot.Epoch)
	if err != nil {
		return fmt.Errorf("failed to marshal epoch_state: %w", err)
	}

	weeklyJSON, err := json.Marshal(snapshot.Weekly)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly_state: %w", err)
	}

	rewardTokens := make([]string, 0, len(snapshot.Weekly.Checkpoints))
	for token := range snapshot.Weekly.Checkpoints {
		rewardTokens = append(rewardTokens, token)
	}

	query := `
		INSERT INTO engine_snapshots (
			snapshot_timestamp, epoch, last_processed_week, active_votes, reward_tokens,
			pools, locks, positions, payment_tokens, epoch_state, weekly_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING snapshot_id;
	`

	activeVotes := snapshot.Weekly.ActiveVotes
	if activeVotes.IsNil() {
		activeVotes = sdkmath.ZeroInt()
	}

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.Timestamp, snapshot.Epoch.Epoch, snapshot.Weekly.LastProcessedWeek,
		activeVotes.String(), pq.Array(rewardTokens),
		poolsJSON, locksJSON, positionsJSON, paymentTokensJSON, epochJSON, weeklyJSON,
	).Scan(&snapshotID)

	if err != nil {
		return fmt.Errorf("failed to save engine snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Uint64("epoch", snapshot.Epoch.Epoch).
		Int64("last_processed_week", snapshot.Weekly.LastProcessedWeek).
		Msg("Engine snapshot saved to database")

	return nil
}

// LatestSnapshot loads the most recent engine snapshot, or nil if the
// database holds none.
func (PostgresStore) LatestSnapshot() (*types.EngineSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, snapshot_timestamp,
		       pools, locks, positions, payment_tokens, epoch_state, weekly_state
		FROM engine_snapshots
		ORDER BY snapshot_id DESC
		LIMIT 1;
	`

	var (
		snapshot          types.EngineSnapshot
		poolsJSON         []byte
		locksJSON         []byte
		positionsJSON     []byte
		paymentTokensJSON []byte
		epochJSON         []byte
		weeklyJSON        []byte
	)

	err := DB.QueryRow(query).Scan(
		&snapshot.SnapshotID, &snapshot.Timestamp,
		&poolsJSON, &locksJSON, &positionsJSON, &paymentTokensJSON, &epochJSON, &weeklyJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest engine snapshot: %w", err)
	}

	if err := json.Unmarshal(poolsJSON, &snapshot.Pools); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pools: %w", err)
	}
	if err := json.Unmarshal(locksJSON, &snapshot.Locks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal locks: %w", err)
	}
	if err := json.Unmarshal(positionsJSON, &snapshot.Positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
	}
	if err := json.Unmarshal(paymentTokensJSON, &snapshot.PaymentTokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment_tokens: %w", err)
	}
	if err := json.Unmarshal(epochJSON, &snapshot.Epoch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal epoch_state: %w", err)
	}
	if err := json.Unmarshal(weeklyJSON, &snapshot.Weekly); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weekly_state: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshot.SnapshotID).
		Uint64("epoch", snapshot.Epoch.Epoch).
		Msg("Loaded latest engine snapshot from database")

	return &snapshot, nil
}

// RecordClaim writes an audit row for a paid-out reward claim.
func (PostgresStore) RecordClaim(positionID types.PositionID, owner, token string, amount sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO claim_audit (position_id, owner_address, reward_token, amount)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := DB.Exec(query, uint64(positionID), owner, token, amount.String()); err != nil {
		return fmt.Errorf("failed to record claim: %w", err)
	}
	return nil
}
