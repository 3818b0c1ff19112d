package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/coinselect"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

// Send produces an encoded token worth amount, spendable by anyone, drawn
// from the wallet's balance at mintURL. The preferred path swaps inputs at
// the mint for an exact send set plus change; when the mint refuses, the
// wallet purges spent proofs and retries, then falls back to assembling the
// token from proofs it already holds (exact first, then within the
// configured overpayment tolerance), and finally retries the mint once more.
// The outgoing proofs are staged durably before the ledger is touched, so a
// crash between the two cannot lose them.
func (w *Wallet) Send(ctx context.Context, mintURL string, amount uint64) (string, error) {
	if amount == 0 {
		return "", ErrInvalidAmount
	}
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return "", err
	}

	unit, err := w.registry.preferredUnit(ctx, url)
	if err != nil {
		return "", err
	}
	keyset, err := w.registry.activeKeyset(ctx, url, unit)
	if err != nil {
		return "", err
	}

	proofs := w.proofsForUnit(url, unit)
	if proofs.Amount() < amount {
		return "", fmt.Errorf("%w: have %d %s at %s, need %d",
			ErrInsufficientFunds, proofs.Amount(), unit, url, amount)
	}

	swap := func(inputs cashu.Proofs) (*mint.SwapResult, error) {
		return w.svc.Swap(ctx, mint.SwapRequest{
			MintURL:    url,
			Inputs:     inputs,
			SendAmount: amount,
			KeysetID:   keyset.ID,
			FeePpk:     keyset.InputFeePpk,
		})
	}

	res, err := swap(proofs)
	if err == nil {
		return w.finalizeSwapSend(url, unit, amount, proofs, res)
	}
	lastErr := err
	w.log.Debug().Str("mint", url).Err(err).Msg("swap send failed, trying fallbacks")

	// A mint that reports spent inputs or an unbalanced transaction is
	// telling us the ledger is out of date: purge and retry once.
	if errors.Is(err, mint.ErrAlreadySpent) || errors.Is(err, mint.ErrInsufficientFunds) || errors.Is(err, mint.ErrTransactionUnbalanced) {
		if _, cleanErr := w.CleanSpentProofs(ctx, url, ""); cleanErr != nil {
			w.log.Warn().Str("mint", url).Err(cleanErr).Msg("spent-proof cleanup failed")
		}
		proofs = w.proofsForUnit(url, unit)
		if res, err = swap(proofs); err == nil {
			return w.finalizeSwapSend(url, unit, amount, proofs, res)
		}
		lastErr = err
	}

	// Local fallback: assemble the token from held proofs, exact match
	// first, then allowing bounded overpayment.
	sel, selErr := coinselect.Select(amount, proofs, coinselect.Options{FeePpk: keyset.InputFeePpk})
	if selErr != nil {
		sel, selErr = coinselect.Select(amount, proofs, coinselect.Options{
			FeePpk:    keyset.InputFeePpk,
			Tolerance: w.sendTolerance,
		})
	}
	if selErr == nil {
		return w.finalizeLocalSend(url, unit, amount, sel)
	}

	// Last resort: one more swap in case the mint recovered.
	if res, err = swap(proofs); err == nil {
		return w.finalizeSwapSend(url, unit, amount, proofs, res)
	}
	lastErr = err

	return "", fmt.Errorf("%w: mint %s: %w", ErrSendFailed, url, lastErr)
}

// finalizeSwapSend commits a mint-swapped send: stage the outgoing proofs,
// swap the ledger contents, encode the token, then clear the stage.
func (w *Wallet) finalizeSwapSend(url string, unit cashu.Unit, amount uint64, inputs cashu.Proofs, res *mint.SwapResult) (string, error) {
	key, err := w.stagePending(url, unit, amount, res.Send)
	if err != nil {
		return "", err
	}
	if _, err := w.ledger.RemoveProofs(inputs); err != nil {
		return "", err
	}
	if _, err := w.ledger.AddProofs(res.Keep); err != nil {
		return "", err
	}
	return w.sealSend(url, unit, amount, res.Fee, res.Send, key)
}

// finalizeLocalSend commits a locally assembled send. No mint round trip
// happened; the receiver pays the input fee when redeeming, which the
// selection already covered.
func (w *Wallet) finalizeLocalSend(url string, unit cashu.Unit, amount uint64, sel *coinselect.Selection) (string, error) {
	key, err := w.stagePending(url, unit, amount, sel.Send)
	if err != nil {
		return "", err
	}
	if _, err := w.ledger.RemoveProofs(sel.Send); err != nil {
		return "", err
	}
	return w.sealSend(url, unit, amount, sel.Fee, sel.Send, key)
}

func (w *Wallet) stagePending(url string, unit cashu.Unit, amount uint64, send cashu.Proofs) (string, error) {
	return w.ledger.StagePendingSend(ledger.PendingSendRecord{
		MintURL:   url,
		Proofs:    send,
		Amount:    amount,
		Unit:      unit,
		CreatedAt: w.clock.Now(),
	})
}

// sealSend encodes the token, records history, and clears the staging
// record. Runs after the ledger mutation so a crash anywhere earlier leaves
// the staged proofs recoverable.
func (w *Wallet) sealSend(url string, unit cashu.Unit, amount, fee uint64, send cashu.Proofs, stageKey string) (string, error) {
	token := cashu.Token{Mint: url, Proofs: send, Unit: unit}
	encoded, err := token.Encode()
	if err != nil {
		return "", err
	}

	if err := w.ledger.AppendHistory(ledger.HistoryEntry{
		Kind:      ledger.HistorySend,
		MintURL:   url,
		Unit:      unit,
		Amount:    amount,
		Fee:       fee,
		Token:     encoded,
		CreatedAt: w.clock.Now(),
	}); err != nil {
		return "", err
	}
	if err := w.ledger.DeletePendingSend(stageKey); err != nil {
		return "", err
	}

	w.log.Info().Str("mint", url).Str("unit", string(unit)).
		Uint64("amount", amount).Uint64("fee", fee).Msg("send complete")
	return encoded, nil
}
