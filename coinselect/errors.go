package coinselect

import "errors"

var (
	// ErrInvalidTarget indicates the requested amount is zero.
	ErrInvalidTarget = errors.New("coinselect: target amount must be positive")

	// ErrNoCombination indicates no subset of the available proofs reaches the
	// required amount within the overpayment tolerance.
	ErrNoCombination = errors.New("coinselect: no proof combination within tolerance")

	// ErrFeeLoop indicates the fee feedback loop did not converge within the
	// iteration cap.
	ErrFeeLoop = errors.New("coinselect: fee iteration did not converge")

	// ErrInventoryMismatch indicates the denomination index claimed more proof
	// instances than actually exist, or the materialized sum disagrees with
	// the solved amount. Either way the inventory is corrupt and the selection
	// must not be trusted.
	ErrInventoryMismatch = errors.New("coinselect: denomination inventory mismatch")
)
