package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/coinselect"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

const quotePollInterval = 5 * time.Second

// RequestMint asks the mint for a bolt11 quote worth amount in the mint's
// preferred unit. Paying the returned invoice entitles the wallet to mint
// proofs via MintTokens.
func (w *Wallet) RequestMint(ctx context.Context, mintURL string, amount uint64) (*mint.MintQuote, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}
	unit, err := w.registry.preferredUnit(ctx, url)
	if err != nil {
		return nil, err
	}
	return w.svc.RequestMintQuote(ctx, url, amount, unit)
}

// AwaitMintQuote blocks until the quote is paid (or issued), the quote
// expires, or ctx is done. It prefers the mint's websocket stream and falls
// back to polling when subscriptions are unavailable or the stream ends.
func (w *Wallet) AwaitMintQuote(ctx context.Context, mintURL, quoteID string) (*mint.MintQuote, error) {
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}

	updates, stop, err := w.svc.SubscribeMintQuote(ctx, url, quoteID)
	if err == nil {
		defer stop()
		for {
			select {
			case quote, ok := <-updates:
				if !ok {
					return w.pollMintQuote(ctx, url, quoteID)
				}
				if quote.State == mint.QuotePaid || quote.State == mint.QuoteIssued {
					return &quote, nil
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	w.log.Debug().Str("mint", url).Err(err).Msg("quote subscription unavailable, polling")
	return w.pollMintQuote(ctx, url, quoteID)
}

func (w *Wallet) pollMintQuote(ctx context.Context, mintURL, quoteID string) (*mint.MintQuote, error) {
	for {
		quote, err := w.svc.MintQuoteState(ctx, mintURL, quoteID)
		if err != nil {
			return nil, err
		}
		if quote.State == mint.QuotePaid || quote.State == mint.QuoteIssued {
			return quote, nil
		}
		if quote.Expiry > 0 && !w.clock.Now().Before(time.Unix(quote.Expiry, 0)) {
			return nil, fmt.Errorf("%w: quote %s expired", mint.ErrQuoteNotPaid, quoteID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.clock.TickAfter(quotePollInterval):
		}
	}
}

// MintTokens redeems a paid mint quote for proofs under the mint's active
// keyset and adds them to the ledger.
func (w *Wallet) MintTokens(ctx context.Context, mintURL, quoteID string) (cashu.Proofs, error) {
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}

	quote, err := w.svc.MintQuoteState(ctx, url, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.State != mint.QuotePaid {
		return nil, fmt.Errorf("%w: quote %s is %s", mint.ErrQuoteNotPaid, quoteID, quote.State)
	}

	unit := quote.Unit
	if unit == "" {
		if unit, err = w.registry.preferredUnit(ctx, url); err != nil {
			return nil, err
		}
	}
	keyset, err := w.registry.activeKeyset(ctx, url, unit)
	if err != nil {
		return nil, err
	}

	proofs, err := w.svc.MintProofs(ctx, url, quoteID, quote.Amount, keyset.ID)
	if err != nil {
		return nil, err
	}

	if _, err := w.ledger.AddProofs(proofs); err != nil {
		return nil, err
	}
	if err := w.ledger.AppendHistory(ledger.HistoryEntry{
		Kind:      ledger.HistoryMint,
		MintURL:   url,
		Unit:      unit,
		Amount:    proofs.Amount(),
		CreatedAt: w.clock.Now(),
	}); err != nil {
		return nil, err
	}

	w.log.Info().Str("mint", url).Uint64("amount", proofs.Amount()).Msg("proofs minted")
	return proofs, nil
}

// Melt pays a bolt11 request with the wallet's balance at mintURL. Inputs
// covering the quote amount plus the fee reserve are selected, staged, and
// removed from the ledger before the mint call; unused reserve comes back as
// change. A failed or unpaid melt restores the inputs; a melt whose payment
// is still in flight returns the result with ErrMeltPending and leaves the
// inputs staged until recovery reconciles them against the mint.
func (w *Wallet) Melt(ctx context.Context, mintURL, request string) (*mint.MeltResult, error) {
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}
	unit, err := w.registry.preferredUnit(ctx, url)
	if err != nil {
		return nil, err
	}
	keyset, err := w.registry.activeKeyset(ctx, url, unit)
	if err != nil {
		return nil, err
	}

	quote, err := w.svc.RequestMeltQuote(ctx, url, request, unit)
	if err != nil {
		return nil, err
	}
	need := quote.Amount + quote.FeeReserve

	proofs := w.proofsForUnit(url, unit)
	sel, err := coinselect.Select(need, proofs, coinselect.Options{FeePpk: keyset.InputFeePpk})
	if err != nil {
		sel, err = coinselect.Select(need, proofs, coinselect.Options{
			FeePpk:    keyset.InputFeePpk,
			Tolerance: w.sendTolerance,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: melt needs %d %s at %s: %w",
			ErrInsufficientFunds, need, unit, url, err)
	}

	key, err := w.stagePending(url, unit, quote.Amount, sel.Send)
	if err != nil {
		return nil, err
	}
	if _, err := w.ledger.RemoveProofs(sel.Send); err != nil {
		return nil, err
	}

	res, err := w.svc.Melt(ctx, url, quote, sel.Send)
	if err == nil && res.State == mint.QuotePending {
		// The payment may still settle and spend the inputs. They stay
		// staged and out of the ledger until the quote resolves.
		w.log.Info().Str("mint", url).Str("quote", quote.Quote).Msg("melt pending")
		return res, fmt.Errorf("%w: mint %s: quote %s", ErrMeltPending, url, quote.Quote)
	}
	if err != nil || res.State != mint.QuotePaid {
		// Restore the inputs; they were never spent.
		if _, addErr := w.ledger.AddProofs(sel.Send); addErr != nil {
			return nil, addErr
		}
		if delErr := w.ledger.DeletePendingSend(key); delErr != nil {
			return nil, delErr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mint %s: %w", ErrMeltFailed, url, err)
		}
		return nil, fmt.Errorf("%w: mint %s: quote %s is %s", ErrMeltFailed, url, quote.Quote, res.State)
	}

	if _, err := w.ledger.AddProofs(res.Change); err != nil {
		return nil, err
	}
	if err := w.ledger.AppendHistory(ledger.HistoryEntry{
		Kind:      ledger.HistoryMelt,
		MintURL:   url,
		Unit:      unit,
		Amount:    quote.Amount,
		Fee:       sel.Send.Amount() - quote.Amount - res.Change.Amount(),
		CreatedAt: w.clock.Now(),
	}); err != nil {
		return nil, err
	}
	if err := w.ledger.DeletePendingSend(key); err != nil {
		return nil, err
	}

	w.log.Info().Str("mint", url).Uint64("amount", quote.Amount).
		Uint64("change", res.Change.Amount()).Msg("melt paid")
	return res, nil
}
