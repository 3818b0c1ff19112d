package coinselect

import "github.com/shopspring/decimal"

// Fee returns the issuer fee for spending count proofs at the given
// parts-per-thousand rate, rounded up to the next whole unit. A mint
// charging feePpk=100 takes 1 unit for every 10 proofs spent.
func Fee(count int, feePpk uint64) uint64 {
	if count <= 0 || feePpk == 0 {
		return 0
	}
	return (uint64(count)*feePpk + 999) / 1000
}

// overpaymentCeiling returns the largest acceptable selection sum for the
// required amount under the given fractional tolerance:
// ceil(required * (1 + tolerance)). Computed in decimal so the boundary is
// exact for any amount; ceil(r*(1+t)) == r + ceil(r*t) for integer r.
func overpaymentCeiling(required uint64, tolerance float64) uint64 {
	if tolerance <= 0 {
		return required
	}
	over := decimal.NewFromUint64(required).
		Mul(decimal.NewFromFloat(tolerance)).
		Ceil()
	return required + uint64(over.IntPart())
}
