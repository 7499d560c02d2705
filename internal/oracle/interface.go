package oracle

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrNoRate indicates the source holds no rate for the requested data.
	ErrNoRate = errors.New("no rate available for oracle data")
)

// Source is the price-oracle collaborator. A false first return means the
// rate is unusable (stale, missing); callers must treat that as "payment
// token disabled", never as a rate of zero. A non-nil error additionally
// aborts the whole enclosing operation.
type Source interface {
	Get(data string) (bool, sdkmath.LegacyDec, error)
}
