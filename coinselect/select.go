// Package coinselect implements the change-making engine: given the
// denominations a wallet holds at one mint, it selects a subset of proofs
// whose sum covers a requested amount plus the issuer fee that spending
// those proofs induces, overpaying at most by a caller-supplied tolerance.
//
// The search is a bounded dynamic program over reachable sums. It looks for
// any feasible combination, not a minimal-count one; the mint reissues
// compact denominations on the next swap anyway.
package coinselect

import (
	"fmt"
	"sort"

	"github.com/ecashorg/libecash-go/cashu"
)

// maxFeeIterations bounds the fee feedback loop. The fee depends on how
// many proofs end up selected, which is only known after a candidate is
// found, so the target is re-solved until a solution covers its own fee.
const maxFeeIterations = 100

// Options tune a selection.
type Options struct {
	// FeePpk is the issuer's per-proof fee rate in parts per thousand.
	// Zero means the mint charges no input fee.
	FeePpk uint64

	// Tolerance is the maximum acceptable fractional overpayment when no
	// exact combination exists. 0.05 allows sums up to ceil(target*1.05).
	Tolerance float64
}

// Selection is a successful proof selection.
type Selection struct {
	// Send are the proofs chosen to cover the target plus fee.
	Send cashu.Proofs

	// Keep are the remaining proofs, untouched by the selection.
	Keep cashu.Proofs

	// Amount is the summed amount of Send.
	Amount uint64

	// Fee is the issuer fee induced by spending Send.
	Fee uint64
}

// denomination is one amount class of the available inventory.
type denomination struct {
	amount uint64
	proofs cashu.Proofs
}

// Select picks a subset of available proofs summing to at least target plus
// the fee induced by the chosen proof count, without exceeding the
// overpayment ceiling. It returns ErrNoCombination when no subset qualifies,
// ErrFeeLoop when the fee feedback does not converge within the iteration
// cap, and ErrInventoryMismatch when the materialized proofs disagree with
// the solved amount.
func Select(target uint64, available cashu.Proofs, opts Options) (*Selection, error) {
	if target == 0 {
		return nil, ErrInvalidTarget
	}

	denoms := buildDenominations(available)
	total := available.Amount()

	required := target
	for iter := 0; iter < maxFeeIterations; iter++ {
		limit := overpaymentCeiling(required, opts.Tolerance)
		if limit > total {
			limit = total
		}
		if required > limit {
			return nil, fmt.Errorf("%w: need %d, have %d available", ErrNoCombination, required, total)
		}

		counts, amount, ok := solve(required, limit, denoms)
		if !ok {
			return nil, fmt.Errorf("%w: target %d, tolerance %.2f", ErrNoCombination, required, opts.Tolerance)
		}

		fee := Fee(countProofs(counts), opts.FeePpk)
		if amount >= target+fee {
			return materialize(counts, amount, fee, denoms, available)
		}

		// The candidate does not cover the fee it induces. Re-target and
		// solve again; required only grows, and the limit check above fails
		// the search once it outruns the inventory.
		required = target + fee
	}

	return nil, fmt.Errorf("%w: target %d after %d iterations", ErrFeeLoop, target, maxFeeIterations)
}

// buildDenominations groups proofs into an amount-sorted multiset.
func buildDenominations(available cashu.Proofs) []denomination {
	byAmount := make(map[uint64]cashu.Proofs)
	for _, p := range available {
		byAmount[p.Amount] = append(byAmount[p.Amount], p)
	}

	denoms := make([]denomination, 0, len(byAmount))
	for amount, proofs := range byAmount {
		denoms = append(denoms, denomination{amount: amount, proofs: proofs})
	}
	sort.Slice(denoms, func(i, j int) bool { return denoms[i].amount < denoms[j].amount })
	return denoms
}

// solve runs the bounded DP over reachable sums 0..limit and returns the
// per-denomination counts for the smallest reachable sum in [required,
// limit]. Feasibility only; no attempt to minimize the proof count.
func solve(required, limit uint64, denoms []denomination) ([]int, uint64, bool) {
	reach := make([]bool, limit+1)
	reach[0] = true

	// coin[s] records which denomination newly reached sum s, prev[s] the
	// sum it extended. Each sum is assigned once, on first reach, so
	// walking prev reconstructs one feasible combination.
	coin := make([]int, limit+1)
	prev := make([]uint64, limit+1)

	for i, d := range denoms {
		if d.amount == 0 || d.amount > limit {
			continue
		}
		// used[s] counts coins of this denomination along the chain built
		// during this pass, enforcing the available count.
		used := make([]int, limit+1)
		for s := d.amount; s <= limit; s++ {
			from := s - d.amount
			if reach[s] || !reach[from] || used[from] >= len(d.proofs) {
				continue
			}
			reach[s] = true
			used[s] = used[from] + 1
			coin[s] = i
			prev[s] = from
		}
	}

	for s := required; s <= limit; s++ {
		if !reach[s] {
			continue
		}
		counts := make([]int, len(denoms))
		for at := s; at != 0; at = prev[at] {
			counts[coin[at]]++
		}
		return counts, s, true
	}
	return nil, 0, false
}

func countProofs(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// materialize maps denomination counts back to concrete proofs,
// first-available-first-chosen, and verifies the selected sum against the
// solved amount before trusting it.
func materialize(counts []int, amount, fee uint64, denoms []denomination, available cashu.Proofs) (*Selection, error) {
	send := make(cashu.Proofs, 0, countProofs(counts))
	chosen := make(map[string]bool)

	for i, c := range counts {
		if c > len(denoms[i].proofs) {
			return nil, fmt.Errorf("%w: %d proofs of %d claimed, %d held",
				ErrInventoryMismatch, c, denoms[i].amount, len(denoms[i].proofs))
		}
		for _, p := range denoms[i].proofs[:c] {
			send = append(send, p)
			chosen[p.Secret] = true
		}
	}

	if send.Amount() != amount {
		return nil, fmt.Errorf("%w: selected %d, solved %d", ErrInventoryMismatch, send.Amount(), amount)
	}

	keep := make(cashu.Proofs, 0, len(available)-len(send))
	for _, p := range available {
		if !chosen[p.Secret] {
			keep = append(keep, p)
		}
	}

	return &Selection{Send: send, Keep: keep, Amount: amount, Fee: fee}, nil
}
