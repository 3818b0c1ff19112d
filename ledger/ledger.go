package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ecashorg/libecash-go/cashu"
)

// Ledger is the in-memory view of the wallet's owned proofs and cached mint
// records, write-through to a durable Store. Proofs are keyed by secret:
// adding a proof already present is a no-op, as is removing an absent one,
// so replayed mutations never double-count.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	proofs  map[string]cashu.Proof  // secret -> proof
	keysets map[string]cashu.Keyset // keyset id -> keyset
	mints   map[string]cashu.Mint   // normalized url -> mint (keysets held separately)
}

// Balance is a per-mint balance in the unit its keysets denominate.
type Balance struct {
	Amount uint64     `json:"amount"`
	Unit   cashu.Unit `json:"unit"`
}

// Open loads the ledger state from the store.
func Open(store Store) (*Ledger, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	l := &Ledger{
		store:   store,
		proofs:  make(map[string]cashu.Proof),
		keysets: make(map[string]cashu.Keyset),
		mints:   make(map[string]cashu.Mint),
	}

	entries, err := store.ListPrefix(nsProofs, "")
	if err != nil {
		return nil, fmt.Errorf("ledger: load proofs: %w", err)
	}
	for k, v := range entries {
		var p cashu.Proof
		if err := json.Unmarshal(v, &p); err != nil {
			return nil, fmt.Errorf("%w: proof %q: %w", ErrCorruptRecord, k, err)
		}
		l.proofs[p.Secret] = p
	}

	entries, err = store.ListPrefix(nsKeysets, "")
	if err != nil {
		return nil, fmt.Errorf("ledger: load keysets: %w", err)
	}
	for k, v := range entries {
		var ks cashu.Keyset
		if err := json.Unmarshal(v, &ks); err != nil {
			return nil, fmt.Errorf("%w: keyset %q: %w", ErrCorruptRecord, k, err)
		}
		l.keysets[ks.ID] = ks
	}

	entries, err = store.ListPrefix(nsMints, "")
	if err != nil {
		return nil, fmt.Errorf("ledger: load mints: %w", err)
	}
	for k, v := range entries {
		var m cashu.Mint
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("%w: mint %q: %w", ErrCorruptRecord, k, err)
		}
		m.Keysets = nil
		l.mints[m.URL] = m
	}

	return l, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error { return l.store.Close() }

// --- Proofs ---

// AddProofs merges proofs into the ledger, skipping any whose secret is
// already present. Returns the number actually added.
func (l *Ledger) AddProofs(proofs cashu.Proofs) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, p := range proofs {
		if _, ok := l.proofs[p.Secret]; ok {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return added, fmt.Errorf("ledger: marshal proof: %w", err)
		}
		if err := l.store.Set(nsProofs, p.Secret, data); err != nil {
			return added, err
		}
		l.proofs[p.Secret] = p
		added++
	}
	return added, nil
}

// RemoveProofs deletes proofs by secret. Absent secrets are skipped.
// Returns the number actually removed.
func (l *Ledger) RemoveProofs(proofs cashu.Proofs) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, p := range proofs {
		if _, ok := l.proofs[p.Secret]; !ok {
			continue
		}
		if err := l.store.Delete(nsProofs, p.Secret); err != nil {
			return removed, err
		}
		delete(l.proofs, p.Secret)
		removed++
	}
	return removed, nil
}

// AllProofs returns every proof in the ledger.
func (l *Ledger) AllProofs() cashu.Proofs {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(cashu.Proof) bool { return true })
}

// ProofsForMint returns the proofs whose keyset belongs to the mint.
func (l *Ledger) ProofsForMint(mintURL string) cashu.Proofs {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(p cashu.Proof) bool {
		ks, ok := l.keysets[p.ID]
		return ok && ks.MintURL == mintURL
	})
}

// ProofsForKeyset returns the proofs issued under one keyset.
func (l *Ledger) ProofsForKeyset(keysetID string) cashu.Proofs {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(func(p cashu.Proof) bool { return p.ID == keysetID })
}

// collect gathers matching proofs in deterministic (secret) order.
// Callers hold l.mu.
func (l *Ledger) collect(match func(cashu.Proof) bool) cashu.Proofs {
	secrets := make([]string, 0, len(l.proofs))
	for s, p := range l.proofs {
		if match(p) {
			secrets = append(secrets, s)
		}
	}
	sort.Strings(secrets)
	out := make(cashu.Proofs, len(secrets))
	for i, s := range secrets {
		out[i] = l.proofs[s]
	}
	return out
}

// --- Balances ---

// BalanceByMint sums proofs per owning mint, in the unit of the keysets
// the mint holds proofs under. Proofs referencing unknown keysets cannot be
// attributed and are excluded.
func (l *Ledger) BalanceByMint() map[string]Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Balance)
	for _, p := range l.proofs {
		ks, ok := l.keysets[p.ID]
		if !ok {
			continue
		}
		b := out[ks.MintURL]
		b.Amount += p.Amount
		b.Unit = ks.Unit
		out[ks.MintURL] = b
	}
	return out
}

// TotalBalance returns the wallet-wide balance in whole satoshis, applying
// msat conversion per keyset unit at this aggregation boundary only.
func (l *Ledger) TotalBalance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	perUnit := make(map[cashu.Unit]uint64)
	for _, p := range l.proofs {
		ks, ok := l.keysets[p.ID]
		if !ok {
			continue
		}
		perUnit[ks.Unit] += p.Amount
	}
	var total uint64
	for unit, amount := range perUnit {
		total += unit.SatValue(amount)
	}
	return total
}

// InactiveKeysetBalances reports, per mint, the balance held on each
// deactivated keyset. Feeds the migration engine.
func (l *Ledger) InactiveKeysetBalances() map[string]map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]map[string]uint64)
	for _, p := range l.proofs {
		ks, ok := l.keysets[p.ID]
		if !ok || ks.Active {
			continue
		}
		perKeyset := out[ks.MintURL]
		if perKeyset == nil {
			perKeyset = make(map[string]uint64)
			out[ks.MintURL] = perKeyset
		}
		perKeyset[ks.ID] += p.Amount
	}
	return out
}

// --- Mints and keysets ---

// PutMint upserts a mint record and its keysets. The URL must already be
// normalized; it is the sole identity key.
func (l *Ledger) PutMint(m cashu.Mint) error {
	if err := l.PutKeysets(m.Keysets); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := m
	stored.Keysets = nil
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("ledger: marshal mint: %w", err)
	}
	if err := l.store.Set(nsMints, m.URL, data); err != nil {
		return err
	}
	l.mints[m.URL] = stored
	return nil
}

// Mint returns the mint record for a normalized URL, keysets attached.
func (l *Ledger) Mint(mintURL string) (*cashu.Mint, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.mints[mintURL]
	if !ok {
		return nil, false
	}
	m.Keysets = l.keysetsForMint(mintURL)
	return &m, true
}

// Mints returns all known mints sorted by URL, keysets attached.
func (l *Ledger) Mints() []*cashu.Mint {
	l.mu.Lock()
	defer l.mu.Unlock()

	urls := make([]string, 0, len(l.mints))
	for u := range l.mints {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	out := make([]*cashu.Mint, len(urls))
	for i, u := range urls {
		m := l.mints[u]
		m.Keysets = l.keysetsForMint(u)
		out[i] = &m
	}
	return out
}

// PutKeysets upserts keyset records.
func (l *Ledger) PutKeysets(keysets []cashu.Keyset) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ks := range keysets {
		data, err := json.Marshal(ks)
		if err != nil {
			return fmt.Errorf("ledger: marshal keyset: %w", err)
		}
		if err := l.store.Set(nsKeysets, ks.ID, data); err != nil {
			return err
		}
		l.keysets[ks.ID] = ks
	}
	return nil
}

// Keyset returns a keyset record by id.
func (l *Ledger) Keyset(id string) (cashu.Keyset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ks, ok := l.keysets[id]
	return ks, ok
}

// KeysetsForMint returns all keyset records of one mint.
func (l *Ledger) KeysetsForMint(mintURL string) []cashu.Keyset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keysetsForMint(mintURL)
}

// keysetsForMint gathers a mint's keysets in id order. Callers hold l.mu.
func (l *Ledger) keysetsForMint(mintURL string) []cashu.Keyset {
	ids := make([]string, 0, 4)
	for id, ks := range l.keysets {
		if ks.MintURL == mintURL {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]cashu.Keyset, len(ids))
	for i, id := range ids {
		out[i] = l.keysets[id]
	}
	return out
}

// --- Derivation counters ---

// NextCounter reserves n deterministic-secret indices for a keyset and
// returns the first. The counter is persisted before the indices are handed
// out, so a crash can skip indices but never reuse them.
func (l *Ledger) NextCounter(keysetID string, n uint32) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var current uint32
	if data, err := l.store.Get(nsCounters, keysetID); err != nil {
		return 0, err
	} else if data != nil {
		v, err := strconv.ParseUint(string(data), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: counter %q: %w", ErrCorruptRecord, keysetID, err)
		}
		current = uint32(v)
	}

	next := current + n
	if err := l.store.Set(nsCounters, keysetID, []byte(strconv.FormatUint(uint64(next), 10))); err != nil {
		return 0, err
	}
	return current, nil
}
