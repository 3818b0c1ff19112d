package wallet

import (
	"context"
	"fmt"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
)

// Receive redeems an encoded token: its proofs are swapped at the issuing
// mint for fresh proofs under the mint's active keyset, which go into the
// ledger. The mint's input fee comes out of the received amount. The issuing
// mint is registered as a side effect. Returns the proofs added.
func (w *Wallet) Receive(ctx context.Context, encoded string) (cashu.Proofs, error) {
	token, err := cashu.DecodeToken(encoded)
	if err != nil {
		return nil, err
	}
	url, err := cashu.NormalizeMintURL(token.Mint)
	if err != nil {
		return nil, err
	}
	token.Mint = url

	m, err := w.registry.activate(ctx, url)
	if err != nil {
		return nil, err
	}
	keyset, ok := m.ActiveKeyset(token.Unit)
	if !ok {
		return nil, fmt.Errorf("%w: mint %s, unit %s", ErrNoActiveKeyset, url, token.Unit)
	}

	// The fee is charged per input at the input keysets' rates; use the
	// highest rate among the token's keysets so we never under-budget.
	feePpk := keyset.InputFeePpk
	for _, p := range token.Proofs {
		for _, ks := range m.Keysets {
			if ks.ID == p.ID && ks.InputFeePpk > feePpk {
				feePpk = ks.InputFeePpk
			}
		}
	}

	proofs, err := w.svc.Receive(ctx, token, keyset.ID, feePpk)
	if err != nil {
		return nil, fmt.Errorf("wallet: receive at %s: %w", url, err)
	}

	if _, err := w.ledger.AddProofs(proofs); err != nil {
		return nil, err
	}
	if err := w.ledger.AppendHistory(ledger.HistoryEntry{
		Kind:      ledger.HistoryReceive,
		MintURL:   url,
		Unit:      token.Unit,
		Amount:    proofs.Amount(),
		Fee:       token.Proofs.Amount() - proofs.Amount(),
		CreatedAt: w.clock.Now(),
	}); err != nil {
		return nil, err
	}

	w.log.Info().Str("mint", url).Uint64("amount", proofs.Amount()).Msg("token received")
	return proofs, nil
}
