package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecashorg/libecash-go/cashu"
)

// PendingSendRecord stages the proofs of an outgoing send before the ledger
// is mutated. It is deleted once the send completes; if the process dies in
// between, startup recovery re-adds the proofs so they are neither lost nor
// double-spent locally.
type PendingSendRecord struct {
	MintURL   string       `json:"mint_url"`
	Proofs    cashu.Proofs `json:"proofs"`
	Amount    uint64       `json:"amount"`
	Unit      cashu.Unit   `json:"unit"`
	CreatedAt time.Time    `json:"created_at"`
}

// StagedSend pairs a pending-send record with its staging key. Record is nil
// when the stored value failed to decode; recovery logs and discards those.
type StagedSend struct {
	Key    string
	Record *PendingSendRecord
}

// StagePendingSend durably stages a pending send and returns its key. Keys
// are the big-endian hex of the record's creation time in nanoseconds, so
// they sort chronologically; a same-nanosecond collision bumps the key.
func (l *Ledger) StagePendingSend(rec PendingSendRecord) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal pending send: %w", err)
	}

	nano := rec.CreatedAt.UnixNano()
	for {
		key := fmt.Sprintf("%016x", uint64(nano))
		existing, err := l.store.Get(nsPending, key)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return key, l.store.Set(nsPending, key, data)
		}
		nano++
	}
}

// PendingSends returns all staged sends in creation order.
func (l *Ledger) PendingSends() ([]StagedSend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.store.ListPrefix(nsPending, "")
	if err != nil {
		return nil, err
	}

	out := make([]StagedSend, 0, len(entries))
	for _, key := range sortedKeys(entries) {
		var rec PendingSendRecord
		if err := json.Unmarshal(entries[key], &rec); err != nil {
			out = append(out, StagedSend{Key: key})
			continue
		}
		out = append(out, StagedSend{Key: key, Record: &rec})
	}
	return out, nil
}

// DeletePendingSend removes a staged send. Deleting an absent key is a
// no-op, tolerating double cleanup.
func (l *Ledger) DeletePendingSend(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(nsPending, key)
}
