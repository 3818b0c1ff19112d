package wallet

import (
	"context"
	"sync"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

// recoveryCoordinator serializes pending-send recovery. Only one run executes
// at a time; callers arriving during a run wait for it and share its result.
// Keys processed in this session are remembered so a record cannot be
// replayed twice even if deletion of the staging record fails.
type recoveryCoordinator struct {
	mu        sync.Mutex
	current   *recoveryRun
	processed map[string]struct{}
}

type recoveryRun struct {
	done     chan struct{}
	restored cashu.Proofs
	err      error
}

func newRecoveryCoordinator() *recoveryCoordinator {
	return &recoveryCoordinator{processed: make(map[string]struct{})}
}

func (rc *recoveryCoordinator) isProcessed(key string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.processed[key]
	return ok
}

func (rc *recoveryCoordinator) markProcessed(key string) {
	rc.mu.Lock()
	rc.processed[key] = struct{}{}
	rc.mu.Unlock()
}

// RecoverPendingSends replays staged pending sends left behind by a crash:
// fresh records put their proofs back into the ledger, records past the
// stale cutoff are discarded (or reconciled against the mint when the wallet
// was configured to reclaim them), and undecodable records are logged and
// dropped. Returns the proofs restored to the ledger. Concurrent callers
// share a single run.
func (w *Wallet) RecoverPendingSends(ctx context.Context) (cashu.Proofs, error) {
	w.recovery.mu.Lock()
	if run := w.recovery.current; run != nil {
		w.recovery.mu.Unlock()
		select {
		case <-run.done:
			return run.restored, run.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	run := &recoveryRun{done: make(chan struct{})}
	w.recovery.current = run
	w.recovery.mu.Unlock()

	run.restored, run.err = w.recoverPending(ctx)

	w.recovery.mu.Lock()
	w.recovery.current = nil
	w.recovery.mu.Unlock()
	close(run.done)

	return run.restored, run.err
}

func (w *Wallet) recoverPending(ctx context.Context) (cashu.Proofs, error) {
	staged, err := w.ledger.PendingSends()
	if err != nil {
		return nil, err
	}

	var restored cashu.Proofs
	now := w.clock.Now()
	for _, s := range staged {
		if s.Record == nil {
			w.log.Error().Str("key", s.Key).Err(ErrRecoveryInconsistency).
				Msg("discarding undecodable pending-send record")
			if err := w.ledger.DeletePendingSend(s.Key); err != nil {
				return restored, err
			}
			continue
		}

		stale := now.Sub(s.Record.CreatedAt) > w.staleAfter
		processed := w.recovery.isProcessed(s.Key)

		switch {
		case processed:
			if err := w.ledger.DeletePendingSend(s.Key); err != nil {
				return restored, err
			}

		case stale && w.reclaimStale:
			proofs, err := w.reclaimStaleRecord(ctx, s)
			if err != nil {
				// Mint unreachable: keep the record for a later run.
				w.log.Warn().Str("key", s.Key).Str("mint", s.Record.MintURL).
					Err(err).Msg("stale pending-send reconciliation deferred")
				continue
			}
			restored = append(restored, proofs...)

		case stale:
			w.log.Info().Str("key", s.Key).Str("mint", s.Record.MintURL).
				Uint64("amount", s.Record.Amount).
				Msg("discarding stale pending send")
			if err := w.ledger.DeletePendingSend(s.Key); err != nil {
				return restored, err
			}

		default:
			w.recovery.markProcessed(s.Key)
			if _, err := w.ledger.AddProofs(s.Record.Proofs); err != nil {
				return restored, err
			}
			if err := w.ledger.DeletePendingSend(s.Key); err != nil {
				return restored, err
			}
			restored = append(restored, s.Record.Proofs...)
			w.log.Info().Str("key", s.Key).Str("mint", s.Record.MintURL).
				Uint64("amount", s.Record.Proofs.Amount()).
				Msg("restored pending send")
		}
	}
	return restored, nil
}

// reclaimStaleRecord asks the mint which of a stale record's proofs are still
// unspent, restores those, and deletes the record.
func (w *Wallet) reclaimStaleRecord(ctx context.Context, s ledger.StagedSend) (cashu.Proofs, error) {
	states, err := w.svc.CheckProofStates(ctx, s.Record.MintURL, s.Record.Proofs)
	if err != nil {
		return nil, err
	}

	unspent := make(cashu.Proofs, 0, len(states))
	for _, res := range states {
		if res.State == mint.ProofStateUnspent {
			unspent = append(unspent, res.Proof)
		}
	}

	w.recovery.markProcessed(s.Key)
	if _, err := w.ledger.AddProofs(unspent); err != nil {
		return nil, err
	}
	if err := w.ledger.DeletePendingSend(s.Key); err != nil {
		return nil, err
	}
	w.log.Info().Str("key", s.Key).Str("mint", s.Record.MintURL).
		Uint64("reclaimed", unspent.Amount()).Int("proofs", len(unspent)).
		Msg("reconciled stale pending send")
	return unspent, nil
}
