package wallet

import (
	"context"
	"fmt"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/mint"
)

// CleanSpentProofs checks the mint's spend state for the wallet's proofs and
// removes the ones the mint reports spent. An empty keysetID covers every
// keyset of the mint. Concurrent calls for the same mint and keyset coalesce
// into one state check whose result all callers share.
func (w *Wallet) CleanSpentProofs(ctx context.Context, mintURL, keysetID string) (cashu.Proofs, error) {
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}

	// Coalesced callers observe the first caller's context.
	v, err, _ := w.cleanups.Do(url+"|"+keysetID, func() (interface{}, error) {
		return w.cleanSpent(ctx, url, keysetID)
	})
	if err != nil {
		return nil, err
	}
	return v.(cashu.Proofs), nil
}

func (w *Wallet) cleanSpent(ctx context.Context, mintURL, keysetID string) (cashu.Proofs, error) {
	var proofs cashu.Proofs
	if keysetID == "" {
		proofs = w.ledger.ProofsForMint(mintURL)
	} else {
		proofs = w.ledger.ProofsForKeyset(keysetID)
	}
	if len(proofs) == 0 {
		return nil, nil
	}

	states, err := w.svc.CheckProofStates(ctx, mintURL, proofs)
	if err != nil {
		return nil, fmt.Errorf("wallet: check proof states: %w", err)
	}

	spent := make(cashu.Proofs, 0)
	for _, res := range states {
		if res.State == mint.ProofStateSpent {
			spent = append(spent, res.Proof)
		}
	}
	if len(spent) == 0 {
		return spent, nil
	}

	removed, err := w.ledger.RemoveProofs(spent)
	if err != nil {
		return nil, err
	}
	w.log.Info().Str("mint", mintURL).Str("keyset", keysetID).
		Int("removed", removed).Uint64("amount", spent.Amount()).
		Msg("purged spent proofs")
	return spent, nil
}
