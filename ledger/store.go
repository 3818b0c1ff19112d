// Package ledger holds the wallet's local state: owned proofs keyed by
// secret, cached mint and keyset records, staged pending sends, derivation
// counters, and transaction history. State lives in memory behind one mutex
// and every mutation writes through to a durable key-value store.
package ledger

import (
	"sort"
	"strings"
	"sync"
)

// Namespaces of the durable store. One bucket per namespace.
const (
	nsProofs   = "proofs"
	nsKeysets  = "keysets"
	nsMints    = "mints"
	nsPending  = "pending_sends"
	nsCounters = "counters"
	nsHistory  = "history"
)

func namespaces() []string {
	return []string{nsProofs, nsKeysets, nsMints, nsPending, nsCounters, nsHistory}
}

// Store is the durable key-value contract the ledger persists through.
// Values are opaque bytes (JSON at this layer). Implementations must treat
// Get of an absent key as (nil, nil) and Delete of an absent key as a no-op.
type Store interface {
	// Get returns the value for key in the namespace, or nil when absent.
	Get(ns, key string) ([]byte, error)

	// Set writes the value for key in the namespace.
	Set(ns, key string, value []byte) error

	// Delete removes key from the namespace. Absent keys are a no-op.
	Delete(ns, key string) error

	// ListPrefix returns all entries in the namespace whose key starts with
	// prefix, keyed by full key. An empty prefix lists the namespace.
	ListPrefix(ns, prefix string) (map[string][]byte, error)

	// Close releases the store.
	Close() error
}

// MemStore is an in-memory Store for tests and ephemeral wallets.
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	data := make(map[string]map[string][]byte, len(namespaces()))
	for _, ns := range namespaces() {
		data[ns] = make(map[string][]byte)
	}
	return &MemStore{data: data}
}

func (s *MemStore) bucket(ns string) (map[string][]byte, error) {
	b, ok := s.data[ns]
	if !ok {
		return nil, ErrUnknownNamespace
	}
	return b, nil
}

func (s *MemStore) Get(ns, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return nil, err
	}
	v, ok := b[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemStore) Set(ns, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	b[key] = v
	return nil
}

func (s *MemStore) Delete(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return err
	}
	delete(b, key)
	return nil
}

func (s *MemStore) ListPrefix(ns, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for k, v := range b {
		if strings.HasPrefix(k, prefix) {
			cp := make([]byte, len(v))
			copy(cp, v)
			out[k] = cp
		}
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

// sortedKeys returns the keys of a ListPrefix result in ascending order,
// for callers that need deterministic iteration.
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
