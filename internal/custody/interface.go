package custody

import (
	sdkmath "cosmossdk.io/math"
)

// Receipt is an opaque share receipt issued by the vault for a deposit. The
// ledger only ever holds and forwards receipts, never raw asset balances.
type Receipt string

// Vault defines the interface to the asset-custody collaborator. Any failure
// here aborts the enclosing ledger operation; retries belong to the caller.
type Vault interface {
	// Deposit places amount of asset into custody and returns a receipt.
	Deposit(asset string, amount sdkmath.Int) (Receipt, error)

	// Withdraw redeems a receipt and returns the backing amount. The receipt
	// is consumed.
	Withdraw(receipt Receipt) (sdkmath.Int, error)

	// Backing returns the amount currently backing a receipt without
	// consuming it. Callers re-validate backing at lock creation and release.
	Backing(receipt Receipt) (sdkmath.Int, error)
}
