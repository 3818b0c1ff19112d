package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

// registry maintains the wallet's view of known mints. Activation fetches a
// mint's info and keysets, normalizes them, filters malformed keyset ids,
// and caches the result in the ledger. A fetch failure degrades to the
// cached record when one exists, so a flaky mint does not brick a wallet
// that already knows it.
type registry struct {
	led *ledger.Ledger
	svc mint.Service
	clk clock.Clock
	ttl time.Duration
	log zerolog.Logger

	mu      sync.Mutex
	fetched map[string]time.Time // normalized url -> last successful fetch
}

func newRegistry(led *ledger.Ledger, svc mint.Service, clk clock.Clock, ttl time.Duration, log zerolog.Logger) *registry {
	return &registry{
		led:     led,
		svc:     svc,
		clk:     clk,
		ttl:     ttl,
		log:     log,
		fetched: make(map[string]time.Time),
	}
}

// activate returns the mint record for rawURL, fetching from the mint when
// the cached record is missing or past its TTL.
func (r *registry) activate(ctx context.Context, rawURL string) (*cashu.Mint, error) {
	url, err := cashu.NormalizeMintURL(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	last, seen := r.fetched[url]
	r.mu.Unlock()

	cached, haveCached := r.led.Mint(url)
	if haveCached && seen && r.clk.Now().Sub(last) < r.ttl && len(cached.Keysets) > 0 {
		return cached, nil
	}

	info, err := r.svc.GetInfo(ctx, url)
	if err != nil {
		return r.degrade(url, cached, haveCached, err)
	}
	keysets, err := r.svc.GetKeysets(ctx, url)
	if err != nil {
		return r.degrade(url, cached, haveCached, err)
	}

	valid := make([]cashu.Keyset, 0, len(keysets))
	for _, ks := range keysets {
		if !cashu.ValidKeysetID(ks.ID) {
			r.log.Warn().Str("mint", url).Str("keyset", ks.ID).
				Msg("dropping malformed keyset id")
			continue
		}
		ks.MintURL = url
		valid = append(valid, ks)
	}

	m := cashu.Mint{URL: url, Info: *info, Keysets: valid, Active: true}
	if err := r.led.PutMint(m); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.fetched[url] = r.clk.Now()
	r.mu.Unlock()

	r.log.Debug().Str("mint", url).Int("keysets", len(valid)).Msg("mint activated")
	return &m, nil
}

// degrade returns the cached record after a failed refresh, or the fetch
// error when nothing is cached.
func (r *registry) degrade(url string, cached *cashu.Mint, haveCached bool, err error) (*cashu.Mint, error) {
	if haveCached && len(cached.Keysets) > 0 {
		r.log.Warn().Str("mint", url).Err(err).Msg("mint refresh failed, using cached record")
		return cached, nil
	}
	return nil, fmt.Errorf("wallet: activate mint %s: %w", url, err)
}

// activeKeyset returns the mint's active keyset in the given unit.
func (r *registry) activeKeyset(ctx context.Context, mintURL string, unit cashu.Unit) (cashu.Keyset, error) {
	m, err := r.activate(ctx, mintURL)
	if err != nil {
		return cashu.Keyset{}, err
	}
	ks, ok := m.ActiveKeyset(unit)
	if !ok {
		return cashu.Keyset{}, fmt.Errorf("%w: mint %s, unit %s", ErrNoActiveKeyset, m.URL, unit)
	}
	return ks, nil
}

// refreshKeys fetches a keyset's signing keys through the service, which
// caches them; keysets are immutable once published.
func (r *registry) refreshKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
	url, err := cashu.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}
	return r.svc.GetKeys(ctx, url, keysetID)
}

// preferredUnit picks the unit to operate in at a mint: msat when the mint
// has an active msat keyset, else sat, else an error.
func (r *registry) preferredUnit(ctx context.Context, mintURL string) (cashu.Unit, error) {
	m, err := r.activate(ctx, mintURL)
	if err != nil {
		return "", err
	}
	if _, ok := m.ActiveKeyset(cashu.UnitMsat); ok {
		return cashu.UnitMsat, nil
	}
	if _, ok := m.ActiveKeyset(cashu.UnitSat); ok {
		return cashu.UnitSat, nil
	}
	return "", fmt.Errorf("%w: mint %s", ErrUnitNotSupported, m.URL)
}
