package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ecashorg/libecash-go/cashu"
)

// HistoryKind classifies a history entry.
type HistoryKind string

const (
	HistorySend    HistoryKind = "send"
	HistoryReceive HistoryKind = "receive"
	HistoryMint    HistoryKind = "mint"
	HistoryMelt    HistoryKind = "melt"
)

// HistoryEntry is one append-only transaction record.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Kind      HistoryKind `json:"kind"`
	MintURL   string      `json:"mint_url"`
	Unit      cashu.Unit  `json:"unit"`
	Amount    uint64      `json:"amount"`
	Fee       uint64      `json:"fee,omitempty"`
	Token     string      `json:"token,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// AppendHistory records a transaction. A missing ID is assigned.
func (l *Ledger) AppendHistory(e HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: marshal history entry: %w", err)
	}
	// Time-prefixed key so listing is chronological; the uuid suffix keeps
	// same-nanosecond entries distinct.
	key := fmt.Sprintf("%016x-%s", uint64(e.CreatedAt.UnixNano()), e.ID)
	return l.store.Set(nsHistory, key, data)
}

// History returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (l *Ledger) History(limit int) ([]HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.store.ListPrefix(nsHistory, "")
	if err != nil {
		return nil, err
	}

	keys := sortedKeys(entries)
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]HistoryEntry, 0, len(keys))
	for _, key := range keys {
		var e HistoryEntry
		if err := json.Unmarshal(entries[key], &e); err != nil {
			return nil, fmt.Errorf("%w: history %q: %w", ErrCorruptRecord, key, err)
		}
		out = append(out, e)
	}
	return out, nil
}
