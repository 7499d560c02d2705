/*

This file contains the full engine snapshot persisted after each mutating
operation batch, and restored on restart.

*/

package types

import (
	"time"
)

// EngineSnapshot is the entirety of the engine's durable state.
type EngineSnapshot struct {
	SnapshotID int64     `json:"snapshot_id,omitempty"` // Assigned by the store
	Timestamp  time.Time `json:"timestamp"`

	Pools         []Pool               `json:"pools"`
	Locks         []Lock               `json:"locks"`
	Positions     []Position           `json:"positions"`
	PaymentTokens []PaymentTokenConfig `json:"payment_tokens"`
	Epoch         EpochState           `json:"epoch"`
	Weekly        WeeklyState          `json:"weekly"`
}
