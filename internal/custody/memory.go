/*

This file contains the in-process custody vault used by the service binary
and the test suites. The on-chain vault this models is outside the engine;
only the interface contract matters here.

*/

package custody

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownReceipt = errors.New("receipt is unknown or already redeemed")
	ErrInvalidAmount  = errors.New("deposit amount is invalid")
	ErrShortTransfer  = errors.New("transfer delivered less than requested")
)

type holding struct {
	asset  string
	amount sdkmath.Int
}

// MemoryVault is a map-backed Vault implementation.
type MemoryVault struct {
	holdings map[Receipt]holding

	// shortfall, when positive, is subtracted from the next deposit to model
	// a fee-on-transfer asset. Used by tests; the deposit then fails.
	shortfall sdkmath.Int
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		holdings:  make(map[Receipt]holding),
		shortfall: sdkmath.ZeroInt(),
	}
}

// SetTransferShortfall makes the next deposit deliver less than requested.
func (v *MemoryVault) SetTransferShortfall(amount sdkmath.Int) {
	v.shortfall = amount
}

func (v *MemoryVault) Deposit(asset string, amount sdkmath.Int) (Receipt, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return "", ErrInvalidAmount
	}

	delivered := amount
	if v.shortfall.IsPositive() {
		delivered = amount.Sub(v.shortfall)
		v.shortfall = sdkmath.ZeroInt()
	}
	if !delivered.Equal(amount) {
		return "", fmt.Errorf("%w: wanted %s, received %s", ErrShortTransfer, amount, delivered)
	}

	receipt := Receipt(uuid.New().String())
	v.holdings[receipt] = holding{asset: asset, amount: amount}
	return receipt, nil
}

func (v *MemoryVault) Withdraw(receipt Receipt) (sdkmath.Int, error) {
	h, ok := v.holdings[receipt]
	if !ok {
		return sdkmath.ZeroInt(), ErrUnknownReceipt
	}
	delete(v.holdings, receipt)
	return h.amount, nil
}

func (v *MemoryVault) Backing(receipt Receipt) (sdkmath.Int, error) {
	h, ok := v.holdings[receipt]
	if !ok {
		return sdkmath.ZeroInt(), ErrUnknownReceipt
	}
	return h.amount, nil
}
