package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/mint"
)

// MigrationResult summarizes one keyset migration pass.
type MigrationResult struct {
	// Migrated counts the amount reissued under active keysets, net of fees.
	Migrated uint64

	// Skipped lists keysets whose proofs could not be migrated this pass,
	// keyed by keyset id, with the reason.
	Skipped map[string]error
}

// MigrateInactiveKeysets walks every mint whose ledger holds proofs on deactivated
// keysets and swaps those proofs into the mint's active keyset in the same
// unit. Proof sets are deduplicated by (secret, C) first so mint-side
// rejections of duplicates cannot strand a whole keyset. A keyset that fails
// with a spent-proof or balance error gets a scoped cleanup and is skipped
// until the next pass; other keysets keep migrating.
func (w *Wallet) MigrateInactiveKeysets(ctx context.Context) (*MigrationResult, error) {
	result := &MigrationResult{Skipped: make(map[string]error)}

	for mintURL, perKeyset := range w.ledger.InactiveKeysetBalances() {
		if _, err := w.registry.activate(ctx, mintURL); err != nil {
			for keysetID := range perKeyset {
				result.Skipped[keysetID] = err
			}
			continue
		}

		for keysetID := range perKeyset {
			migrated, err := w.migrateKeyset(ctx, mintURL, keysetID)
			if err != nil {
				result.Skipped[keysetID] = err
				w.log.Warn().Str("mint", mintURL).Str("keyset", keysetID).
					Err(err).Msg("keyset migration skipped")
				continue
			}
			result.Migrated += migrated
		}
	}
	return result, nil
}

// migrateKeyset swaps one deactivated keyset's proofs into the mint's active
// keyset of the same unit.
func (w *Wallet) migrateKeyset(ctx context.Context, mintURL, keysetID string) (uint64, error) {
	old, ok := w.ledger.Keyset(keysetID)
	if !ok {
		return 0, fmt.Errorf("wallet: unknown keyset %q", keysetID)
	}
	target, err := w.registry.activeKeyset(ctx, mintURL, old.Unit)
	if err != nil {
		return 0, err
	}

	proofs := dedupeProofs(w.ledger.ProofsForKeyset(keysetID))
	if len(proofs) == 0 {
		return 0, nil
	}

	// SendAmount zero folds everything, minus the fee, into change under
	// the target keyset.
	res, err := w.svc.Swap(ctx, mint.SwapRequest{
		MintURL:  mintURL,
		Inputs:   proofs,
		KeysetID: target.ID,
		FeePpk:   target.InputFeePpk,
	})
	if err != nil {
		if errors.Is(err, mint.ErrAlreadySpent) || errors.Is(err, mint.ErrInsufficientFunds) {
			if _, cleanErr := w.CleanSpentProofs(ctx, mintURL, keysetID); cleanErr != nil {
				w.log.Warn().Str("keyset", keysetID).Err(cleanErr).
					Msg("scoped cleanup after migration failure")
			}
		}
		return 0, err
	}

	if _, err := w.ledger.RemoveProofs(proofs); err != nil {
		return 0, err
	}
	if _, err := w.ledger.AddProofs(res.Keep); err != nil {
		return 0, err
	}

	w.log.Info().Str("mint", mintURL).Str("from", keysetID).Str("to", target.ID).
		Uint64("amount", res.Keep.Amount()).Uint64("fee", res.Fee).
		Msg("keyset migrated")
	return res.Keep.Amount(), nil
}

// dedupeProofs drops proofs sharing a (secret, C) pair with an earlier one.
func dedupeProofs(proofs cashu.Proofs) cashu.Proofs {
	seen := make(map[[2]string]struct{}, len(proofs))
	out := make(cashu.Proofs, 0, len(proofs))
	for _, p := range proofs {
		key := [2]string{p.Secret, p.C}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
