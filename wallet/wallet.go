// Package wallet orchestrates the ecash wallet: it owns the proof ledger,
// talks to mints through the mint.Service seam, and implements the send,
// receive, funding, cleanup, recovery, and keyset-migration flows on top.
package wallet

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

const (
	defaultSendTolerance = 0.05
	defaultRegistryTTL   = time.Hour
	defaultStaleAfter    = time.Hour
)

// Options configures a Wallet. Store and Service are required; everything
// else has a sensible default.
type Options struct {
	// Store is the durable backend for proofs, mints, and staging records.
	Store ledger.Store

	// Service performs mint protocol operations.
	Service mint.Service

	// Clock drives staging timestamps and cache expiry. Defaults to the
	// system clock; tests inject a fake.
	Clock clock.Clock

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger

	// SendTolerance bounds overpayment on the local change-making fallback,
	// as a fraction of the requested amount. Defaults to 0.05.
	SendTolerance float64

	// RegistryTTL is how long fetched mint metadata stays fresh before the
	// registry re-fetches. Defaults to one hour.
	RegistryTTL time.Duration

	// PendingStaleAfter is the age past which a staged pending send is no
	// longer replayed on recovery. Defaults to one hour.
	PendingStaleAfter time.Duration

	// ReclaimStalePending reconciles stale staging records against the mint
	// instead of discarding them: proofs the mint still reports unspent are
	// restored to the ledger.
	ReclaimStalePending bool
}

// Wallet is the top-level handle. All methods are safe for concurrent use.
type Wallet struct {
	ledger   *ledger.Ledger
	svc      mint.Service
	registry *registry
	recovery *recoveryCoordinator
	cleanups singleflight.Group
	clock    clock.Clock
	log      zerolog.Logger

	sendTolerance float64
	staleAfter    time.Duration
	reclaimStale  bool
}

// New opens the ledger from opts.Store and assembles a wallet around it.
func New(opts Options) (*Wallet, error) {
	if opts.Store == nil {
		return nil, ErrNilStore
	}
	if opts.Service == nil {
		return nil, ErrNilService
	}

	led, err := ledger.Open(opts.Store)
	if err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	tolerance := opts.SendTolerance
	if tolerance == 0 {
		tolerance = defaultSendTolerance
	}
	ttl := opts.RegistryTTL
	if ttl == 0 {
		ttl = defaultRegistryTTL
	}
	staleAfter := opts.PendingStaleAfter
	if staleAfter == 0 {
		staleAfter = defaultStaleAfter
	}

	w := &Wallet{
		ledger:        led,
		svc:           opts.Service,
		clock:         clk,
		log:           log,
		sendTolerance: tolerance,
		staleAfter:    staleAfter,
		reclaimStale:  opts.ReclaimStalePending,
	}
	w.registry = newRegistry(led, opts.Service, clk, ttl, log)
	w.recovery = newRecoveryCoordinator()
	return w, nil
}

// Close releases the wallet's store.
func (w *Wallet) Close() error { return w.ledger.Close() }

// AddMint registers a mint by URL, fetching its metadata and keysets.
// Re-adding a known mint refreshes its record.
func (w *Wallet) AddMint(ctx context.Context, mintURL string) (*cashu.Mint, error) {
	return w.registry.activate(ctx, mintURL)
}

// RefreshMintKeys fetches a keyset's signing keys, amount to compressed
// public key hex.
func (w *Wallet) RefreshMintKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
	return w.registry.refreshKeys(ctx, mintURL, keysetID)
}

// TrustedMints returns every mint the wallet has registered, sorted by URL.
func (w *Wallet) TrustedMints() []*cashu.Mint {
	return w.ledger.Mints()
}

// BalanceByMint reports per-mint balances in each mint's own unit.
func (w *Wallet) BalanceByMint() map[string]ledger.Balance {
	return w.ledger.BalanceByMint()
}

// TotalBalance reports the wallet-wide balance in whole satoshis.
func (w *Wallet) TotalBalance() uint64 {
	return w.ledger.TotalBalance()
}

// Proofs returns every proof the wallet holds.
func (w *Wallet) Proofs() cashu.Proofs {
	return w.ledger.AllProofs()
}

// History returns up to limit transaction records, newest first. A
// non-positive limit returns everything.
func (w *Wallet) History(limit int) ([]ledger.HistoryEntry, error) {
	return w.ledger.History(limit)
}

// proofsForUnit returns the mint's proofs whose keyset denominates in unit.
func (w *Wallet) proofsForUnit(mintURL string, unit cashu.Unit) cashu.Proofs {
	all := w.ledger.ProofsForMint(mintURL)
	out := make(cashu.Proofs, 0, len(all))
	for _, p := range all {
		if ks, ok := w.ledger.Keyset(p.ID); ok && ks.Unit == unit {
			out = append(out, p)
		}
	}
	return out
}
