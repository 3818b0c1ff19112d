package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

const testMintURL = "https://mint.example.com"

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// --- helpers ---

func testKeysets() []cashu.Keyset {
	return []cashu.Keyset{
		{ID: "00ad268c4d1f5826", Unit: cashu.UnitSat, Active: true, InputFeePpk: 100},
		{ID: "00deadbeef001122", Unit: cashu.UnitSat, Active: false},
	}
}

// registryMock pre-wires the mint metadata endpoints a wallet hits on
// activation.
func registryMock(keysets []cashu.Keyset) *mint.MockService {
	return &mint.MockService{
		GetInfoFn: func(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
			return &cashu.MintInfo{Name: "testmint"}, nil
		},
		GetKeysetsFn: func(ctx context.Context, mintURL string) ([]cashu.Keyset, error) {
			return keysets, nil
		},
	}
}

func newTestWallet(t *testing.T, svc mint.Service, tweak func(*Options)) (*Wallet, *clock.TestClock) {
	t.Helper()
	clk := clock.NewTestClock(testStart)
	opts := Options{
		Store:   ledger.NewMemStore(),
		Service: svc,
		Clock:   clk,
	}
	if tweak != nil {
		tweak(&opts)
	}
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, clk
}

func proofSet(keysetID string, amounts ...uint64) cashu.Proofs {
	out := make(cashu.Proofs, len(amounts))
	for i, a := range amounts {
		out[i] = cashu.Proof{
			Amount: a,
			ID:     keysetID,
			Secret: fmt.Sprintf("sec-%s-%d-%d", keysetID, a, i),
			C:      fmt.Sprintf("02%04x%04x", a, i),
		}
	}
	return out
}

// seedWallet puts keysets and proofs into the wallet's ledger directly.
func seedWallet(t *testing.T, w *Wallet, keysets []cashu.Keyset, proofs cashu.Proofs) {
	t.Helper()
	for i := range keysets {
		keysets[i].MintURL = testMintURL
	}
	require.NoError(t, w.ledger.PutMint(cashu.Mint{URL: testMintURL, Keysets: keysets, Active: true}))
	_, err := w.ledger.AddProofs(proofs)
	require.NoError(t, err)
}

// --- constructor ---

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Service: &mint.MockService{}})
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = New(Options{Store: ledger.NewMemStore()})
	assert.ErrorIs(t, err, ErrNilService)
}

// --- registry ---

func TestAddMint_FiltersMalformedKeysets(t *testing.T) {
	svc := registryMock([]cashu.Keyset{
		{ID: "00ad268c4d1f5826", Unit: cashu.UnitSat, Active: true},
		{ID: "not-hex!", Unit: cashu.UnitSat, Active: true},
		{ID: "abc", Unit: cashu.UnitSat, Active: true}, // odd length
	})
	w, _ := newTestWallet(t, svc, nil)

	m, err := w.AddMint(context.Background(), testMintURL+"/")
	require.NoError(t, err)
	assert.Equal(t, testMintURL, m.URL)
	require.Len(t, m.Keysets, 1)
	assert.Equal(t, "00ad268c4d1f5826", m.Keysets[0].ID)
}

func TestAddMint_CachedWithinTTL(t *testing.T) {
	var calls int
	svc := registryMock(testKeysets())
	base := svc.GetInfoFn
	svc.GetInfoFn = func(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
		calls++
		return base(ctx, mintURL)
	}
	w, clk := newTestWallet(t, svc, nil)

	_, err := w.AddMint(context.Background(), testMintURL)
	require.NoError(t, err)
	_, err = w.AddMint(context.Background(), testMintURL)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second activation within TTL should not refetch")

	clk.SetTime(testStart.Add(2 * time.Hour))
	_, err = w.AddMint(context.Background(), testMintURL)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAddMint_DegradesToCache(t *testing.T) {
	svc := registryMock(testKeysets())
	w, clk := newTestWallet(t, svc, nil)

	_, err := w.AddMint(context.Background(), testMintURL)
	require.NoError(t, err)

	svc.GetInfoFn = func(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
		return nil, errors.New("mint down")
	}
	clk.SetTime(testStart.Add(2 * time.Hour))

	m, err := w.AddMint(context.Background(), testMintURL)
	require.NoError(t, err, "stale cache should serve when refresh fails")
	assert.NotEmpty(t, m.Keysets)
}

func TestAddMint_UnknownMintFetchFailure(t *testing.T) {
	svc := &mint.MockService{
		GetInfoFn: func(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
			return nil, errors.New("mint down")
		},
	}
	w, _ := newTestWallet(t, svc, nil)

	_, err := w.AddMint(context.Background(), testMintURL)
	assert.Error(t, err)
}

func TestPreferredUnit_MsatOverSat(t *testing.T) {
	svc := registryMock([]cashu.Keyset{
		{ID: "00ad268c4d1f5826", Unit: cashu.UnitSat, Active: true},
		{ID: "00bb268c4d1f5826", Unit: cashu.UnitMsat, Active: true},
	})
	w, _ := newTestWallet(t, svc, nil)

	unit, err := w.registry.preferredUnit(context.Background(), testMintURL)
	require.NoError(t, err)
	assert.Equal(t, cashu.UnitMsat, unit)
}

func TestPreferredUnit_NoSupportedUnit(t *testing.T) {
	svc := registryMock([]cashu.Keyset{
		{ID: "00cc268c4d1f5826", Unit: cashu.Unit("usd"), Active: true},
	})
	w, _ := newTestWallet(t, svc, nil)

	_, err := w.registry.preferredUnit(context.Background(), testMintURL)
	assert.ErrorIs(t, err, ErrUnitNotSupported)
}

func TestRefreshMintKeys(t *testing.T) {
	svc := registryMock(testKeysets())
	svc.GetKeysFn = func(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
		assert.Equal(t, testMintURL, mintURL)
		return map[uint64]string{1: "02aa", 2: "02bb"}, nil
	}
	w, _ := newTestWallet(t, svc, nil)

	keys, err := w.RefreshMintKeys(context.Background(), testMintURL+"/", "00ad268c4d1f5826")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

// --- send ---

func TestSend_SwapPath(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true, InputFeePpk: 0}})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		assert.Equal(t, uint64(10), req.SendAmount)
		return &mint.SwapResult{
			Send: proofSet(keysetID, 8, 2),
			Keep: proofSet(keysetID, 16, 4, 1),
		}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		cashu.Proofs{{Amount: 32, ID: keysetID, Secret: "big", C: "02a1b2c3d4"}})

	encoded, err := w.Send(context.Background(), testMintURL, 10)
	require.NoError(t, err)

	token, err := cashu.DecodeToken(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), token.Proofs.Amount())
	assert.Equal(t, testMintURL, token.Mint)

	// Change landed, input gone, staging cleared.
	assert.Equal(t, uint64(21), w.TotalBalance())
	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	assert.Empty(t, staged)

	hist, err := w.History(0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ledger.HistorySend, hist[0].Kind)
	assert.Equal(t, encoded, hist[0].Token)
}

func TestSend_CleanupThenRetry(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	spent := cashu.Proof{Amount: 16, ID: keysetID, Secret: "spent", C: "02c3d4e5f6"}
	good := cashu.Proof{Amount: 16, ID: keysetID, Secret: "good", C: "02d4e5f6a7"}

	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	swapCalls := 0
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		swapCalls++
		for _, p := range req.Inputs {
			if p.Secret == "spent" {
				return nil, fmt.Errorf("%w", mint.ErrAlreadySpent)
			}
		}
		return &mint.SwapResult{Send: proofSet(keysetID, 8, 2), Keep: proofSet(keysetID, 4, 2)}, nil
	}
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		out := make([]mint.ProofStateResult, len(proofs))
		for i, p := range proofs {
			state := mint.ProofStateUnspent
			if p.Secret == "spent" {
				state = mint.ProofStateSpent
			}
			out[i] = mint.ProofStateResult{Proof: p, State: state}
		}
		return out, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		cashu.Proofs{spent, good})

	encoded, err := w.Send(context.Background(), testMintURL, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
	assert.Equal(t, 2, swapCalls)

	// The spent proof was purged, not spent again.
	for _, p := range w.Proofs() {
		assert.NotEqual(t, "spent", p.Secret)
	}
}

func TestSend_LocalFallback(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		return nil, fmt.Errorf("%w: boom", mint.ErrMintCommunication)
	}
	w, _ := newTestWallet(t, svc, nil)
	keysets := []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}
	seedWallet(t, w, keysets, proofSet(keysetID, 8, 2, 1))

	// 10 is exactly representable from {8, 2}: offline send succeeds.
	encoded, err := w.Send(context.Background(), testMintURL, 10)
	require.NoError(t, err)

	token, err := cashu.DecodeToken(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), token.Proofs.Amount())
	assert.Equal(t, uint64(1), w.TotalBalance())
}

func TestSend_LocalFallbackWithinTolerance(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		return nil, fmt.Errorf("%w: boom", mint.ErrMintCommunication)
	}
	w, _ := newTestWallet(t, svc, func(o *Options) { o.SendTolerance = 0.5 })
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 4, 8))

	// 10 has no exact combination; 12 is within the 50% ceiling.
	encoded, err := w.Send(context.Background(), testMintURL, 10)
	require.NoError(t, err)

	token, err := cashu.DecodeToken(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), token.Proofs.Amount())
}

func TestSend_FailsWithMintAttribution(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		return nil, fmt.Errorf("%w: boom", mint.ErrMintCommunication)
	}
	w, _ := newTestWallet(t, svc, func(o *Options) { o.SendTolerance = 0.01 })
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 64))

	// No exact or in-tolerance combination for 10 from a single 64.
	_, err := w.Send(context.Background(), testMintURL, 10)
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), testMintURL)

	// Nothing was lost or staged.
	assert.Equal(t, uint64(64), w.TotalBalance())
	staged, _ := w.ledger.PendingSends()
	assert.Empty(t, staged)
}

func TestSend_InsufficientBalance(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 4))

	_, err := w.Send(context.Background(), testMintURL, 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = w.Send(context.Background(), testMintURL, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// --- receive ---

func TestReceive(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true, InputFeePpk: 100}})
	svc.ReceiveFn = func(ctx context.Context, token *cashu.Token, ksID string, feePpk uint64) (cashu.Proofs, error) {
		assert.Equal(t, keysetID, ksID)
		assert.Equal(t, uint64(100), feePpk)
		return proofSet(keysetID, 8, 1), nil // 10 in, 9 out after fee
	}
	w, _ := newTestWallet(t, svc, nil)

	token := cashu.Token{Mint: testMintURL, Unit: cashu.UnitSat, Proofs: proofSet("00deadbeef001122", 8, 2)}
	encoded, err := token.Encode()
	require.NoError(t, err)

	proofs, err := w.Receive(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), proofs.Amount())
	assert.Equal(t, uint64(9), w.TotalBalance())

	hist, err := w.History(0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ledger.HistoryReceive, hist[0].Kind)
	assert.Equal(t, uint64(1), hist[0].Fee)
}

func TestReceive_InvalidToken(t *testing.T) {
	w, _ := newTestWallet(t, registryMock(testKeysets()), nil)
	_, err := w.Receive(context.Background(), "not a token")
	assert.Error(t, err)
}

// --- cleanup ---

func TestCleanSpentProofs_Coalesces(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	var mu sync.Mutex
	checks := 0
	release := make(chan struct{})

	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		mu.Lock()
		checks++
		mu.Unlock()
		<-release
		out := make([]mint.ProofStateResult, len(proofs))
		for i, p := range proofs {
			out[i] = mint.ProofStateResult{Proof: p, State: mint.ProofStateSpent}
		}
		return out, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 1, 2, 4))

	var wg sync.WaitGroup
	results := make([]cashu.Proofs, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spent, err := w.CleanSpentProofs(context.Background(), testMintURL, keysetID)
			assert.NoError(t, err)
			results[i] = spent
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, checks, "concurrent cleanups must coalesce")
	for _, r := range results {
		assert.Len(t, r, 3)
	}
	assert.Empty(t, w.Proofs())
}

func TestCleanSpentProofs_RemovesOnlySpent(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		out := make([]mint.ProofStateResult, len(proofs))
		for i, p := range proofs {
			state := mint.ProofStateUnspent
			if p.Amount == 2 {
				state = mint.ProofStateSpent
			}
			out[i] = mint.ProofStateResult{Proof: p, State: state}
		}
		return out, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 1, 2, 4))

	spent, err := w.CleanSpentProofs(context.Background(), testMintURL, "")
	require.NoError(t, err)
	require.Len(t, spent, 1)
	assert.Equal(t, uint64(2), spent[0].Amount)
	assert.Equal(t, uint64(5), w.TotalBalance())
}

// --- recovery ---

func stage(t *testing.T, w *Wallet, createdAt time.Time, proofs cashu.Proofs) string {
	t.Helper()
	key, err := w.ledger.StagePendingSend(ledger.PendingSendRecord{
		MintURL:   testMintURL,
		Proofs:    proofs,
		Amount:    proofs.Amount(),
		Unit:      cashu.UnitSat,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	return key
}

func TestRecoverPendingSends_RestoresFresh(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	w, _ := newTestWallet(t, registryMock(testKeysets()), nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)

	stage(t, w, testStart.Add(-10*time.Minute), proofSet(keysetID, 8, 2))

	restored, err := w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), restored.Amount())
	assert.Equal(t, uint64(10), w.TotalBalance())

	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestRecoverPendingSends_DiscardsStale(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	w, _ := newTestWallet(t, registryMock(testKeysets()), nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)

	stage(t, w, testStart.Add(-2*time.Hour), proofSet(keysetID, 8))

	restored, err := w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Empty(t, restored)
	assert.Zero(t, w.TotalBalance())

	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	assert.Empty(t, staged, "stale record is deleted without replay")
}

func TestRecoverPendingSends_ReclaimsStaleUnspent(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock(testKeysets())
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		out := make([]mint.ProofStateResult, len(proofs))
		for i, p := range proofs {
			state := mint.ProofStateUnspent
			if p.Amount == 8 {
				state = mint.ProofStateSpent
			}
			out[i] = mint.ProofStateResult{Proof: p, State: state}
		}
		return out, nil
	}
	w, _ := newTestWallet(t, svc, func(o *Options) { o.ReclaimStalePending = true })
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)

	stage(t, w, testStart.Add(-2*time.Hour), proofSet(keysetID, 8, 2, 1))

	restored, err := w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), restored.Amount(), "only unspent proofs come back")

	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestRecoverPendingSends_KeepsStaleWhenMintUnreachable(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock(testKeysets())
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		return nil, errors.New("mint down")
	}
	w, _ := newTestWallet(t, svc, func(o *Options) { o.ReclaimStalePending = true })
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)

	stage(t, w, testStart.Add(-2*time.Hour), proofSet(keysetID, 8))

	restored, err := w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Empty(t, restored)

	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	assert.Len(t, staged, 1, "unreconciled record survives for the next run")
}

func TestRecoverPendingSends_SecondRunIsNoop(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	w, _ := newTestWallet(t, registryMock(testKeysets()), nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)

	stage(t, w, testStart.Add(-time.Minute), proofSet(keysetID, 4))

	restored, err := w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), restored.Amount())

	restored, err = w.RecoverPendingSends(context.Background())
	require.NoError(t, err)
	assert.Empty(t, restored)
	assert.Equal(t, uint64(4), w.TotalBalance())
}

func TestRecoverPendingSends_Concurrent(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	w, _ := newTestWallet(t, registryMock(testKeysets()), nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}}, nil)
	stage(t, w, testStart.Add(-time.Minute), proofSet(keysetID, 8, 4))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.RecoverPendingSends(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(12), w.TotalBalance(), "replays must not double-count")
}

// --- migration ---

func TestMigrateInactiveKeysets(t *testing.T) {
	activeID := "00ad268c4d1f5826"
	oldID := "00deadbeef001122"
	svc := registryMock([]cashu.Keyset{
		{ID: activeID, Unit: cashu.UnitSat, Active: true},
		{ID: oldID, Unit: cashu.UnitSat, Active: false},
	})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		assert.Zero(t, req.SendAmount, "migration folds everything into change")
		assert.Equal(t, activeID, req.KeysetID)
		return &mint.SwapResult{Keep: proofSet(activeID, 8, 2)}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{
		{ID: activeID, Unit: cashu.UnitSat, Active: true},
		{ID: oldID, Unit: cashu.UnitSat, Active: false},
	}, proofSet(oldID, 8, 2))

	res, err := w.MigrateInactiveKeysets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Migrated)
	assert.Empty(t, res.Skipped)

	for _, p := range w.Proofs() {
		assert.Equal(t, activeID, p.ID)
	}
	assert.Empty(t, w.ledger.InactiveKeysetBalances())
}

func TestMigrateInactiveKeysets_SkipsFailedKeyset(t *testing.T) {
	activeID := "00ad268c4d1f5826"
	oldID := "00deadbeef001122"
	svc := registryMock([]cashu.Keyset{
		{ID: activeID, Unit: cashu.UnitSat, Active: true},
		{ID: oldID, Unit: cashu.UnitSat, Active: false},
	})
	svc.SwapFn = func(ctx context.Context, req mint.SwapRequest) (*mint.SwapResult, error) {
		return nil, fmt.Errorf("%w", mint.ErrAlreadySpent)
	}
	svc.CheckProofStatesFn = func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]mint.ProofStateResult, error) {
		out := make([]mint.ProofStateResult, len(proofs))
		for i, p := range proofs {
			out[i] = mint.ProofStateResult{Proof: p, State: mint.ProofStateSpent}
		}
		return out, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{
		{ID: activeID, Unit: cashu.UnitSat, Active: true},
		{ID: oldID, Unit: cashu.UnitSat, Active: false},
	}, proofSet(oldID, 8))

	res, err := w.MigrateInactiveKeysets(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Migrated)
	assert.Contains(t, res.Skipped, oldID)

	// Scoped cleanup purged the spent proofs.
	assert.Empty(t, w.Proofs())
}

func TestDedupeProofs(t *testing.T) {
	p := cashu.Proof{Amount: 1, ID: "00ab", Secret: "s", C: "02aa"}
	out := dedupeProofs(cashu.Proofs{p, p, {Amount: 2, ID: "00ab", Secret: "s2", C: "02bb"}})
	assert.Len(t, out, 2)
}

// --- funding ---

func TestMintTokens(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.MintQuoteStateFn = func(ctx context.Context, mintURL, quoteID string) (*mint.MintQuote, error) {
		return &mint.MintQuote{Quote: quoteID, Amount: 10, Unit: cashu.UnitSat, State: mint.QuotePaid}, nil
	}
	svc.MintProofsFn = func(ctx context.Context, mintURL, quoteID string, amount uint64, ksID string) (cashu.Proofs, error) {
		assert.Equal(t, keysetID, ksID)
		return proofSet(keysetID, 8, 2), nil
	}
	w, _ := newTestWallet(t, svc, nil)

	proofs, err := w.MintTokens(context.Background(), testMintURL, "q1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), proofs.Amount())
	assert.Equal(t, uint64(10), w.TotalBalance())

	hist, err := w.History(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ledger.HistoryMint, hist[0].Kind)
}

func TestMintTokens_UnpaidQuote(t *testing.T) {
	svc := registryMock(testKeysets())
	svc.MintQuoteStateFn = func(ctx context.Context, mintURL, quoteID string) (*mint.MintQuote, error) {
		return &mint.MintQuote{Quote: quoteID, State: mint.QuoteUnpaid}, nil
	}
	w, _ := newTestWallet(t, svc, nil)

	_, err := w.MintTokens(context.Background(), testMintURL, "q1")
	assert.ErrorIs(t, err, mint.ErrQuoteNotPaid)
}

func TestAwaitMintQuote_Subscription(t *testing.T) {
	svc := registryMock(testKeysets())
	svc.SubscribeMintQuoteFn = func(ctx context.Context, mintURL, quoteID string) (<-chan mint.MintQuote, func(), error) {
		ch := make(chan mint.MintQuote, 2)
		ch <- mint.MintQuote{Quote: quoteID, State: mint.QuoteUnpaid}
		ch <- mint.MintQuote{Quote: quoteID, State: mint.QuotePaid}
		return ch, func() {}, nil
	}
	w, _ := newTestWallet(t, svc, nil)

	quote, err := w.AwaitMintQuote(context.Background(), testMintURL, "q1")
	require.NoError(t, err)
	assert.Equal(t, mint.QuotePaid, quote.State)
}

func TestAwaitMintQuote_PollingFallback(t *testing.T) {
	svc := registryMock(testKeysets())
	svc.SubscribeMintQuoteFn = func(ctx context.Context, mintURL, quoteID string) (<-chan mint.MintQuote, func(), error) {
		return nil, nil, mint.ErrSubscriptionUnsupported
	}
	var mu sync.Mutex
	polls := 0
	svc.MintQuoteStateFn = func(ctx context.Context, mintURL, quoteID string) (*mint.MintQuote, error) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		state := mint.QuoteUnpaid
		if polls >= 3 {
			state = mint.QuotePaid
		}
		return &mint.MintQuote{Quote: quoteID, State: state}, nil
	}
	w, clk := newTestWallet(t, svc, nil)

	done := make(chan struct{})
	var quote *mint.MintQuote
	var err error
	go func() {
		defer close(done)
		quote, err = w.AwaitMintQuote(context.Background(), testMintURL, "q1")
	}()

	// Each tick releases one poll.
	for i := 1; i <= 2; i++ {
		time.Sleep(20 * time.Millisecond)
		clk.SetTime(testStart.Add(time.Duration(i) * quotePollInterval))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling fallback did not complete")
	}
	require.NoError(t, err)
	assert.Equal(t, mint.QuotePaid, quote.State)
}

func TestMelt(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.RequestMeltQuoteFn = func(ctx context.Context, mintURL, request string, unit cashu.Unit) (*mint.MeltQuote, error) {
		return &mint.MeltQuote{Quote: "mq1", Amount: 10, FeeReserve: 2, Unit: unit}, nil
	}
	svc.MeltFn = func(ctx context.Context, mintURL string, quote *mint.MeltQuote, inputs cashu.Proofs) (*mint.MeltResult, error) {
		assert.GreaterOrEqual(t, inputs.Amount(), uint64(12))
		return &mint.MeltResult{State: mint.QuotePaid, Preimage: "preimage", Change: proofSet(keysetID, 1)}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 8, 4, 2))

	res, err := w.Melt(context.Background(), testMintURL, "lnbc...")
	require.NoError(t, err)
	assert.Equal(t, "preimage", res.Preimage)

	// 12 selected and spent, 1 back as change, 2 untouched.
	assert.Equal(t, uint64(3), w.TotalBalance())
	staged, _ := w.ledger.PendingSends()
	assert.Empty(t, staged)

	hist, err := w.History(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ledger.HistoryMelt, hist[0].Kind)
	assert.Equal(t, uint64(10), hist[0].Amount)
	assert.Equal(t, uint64(1), hist[0].Fee)
}

func TestMelt_FailureRestoresProofs(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.RequestMeltQuoteFn = func(ctx context.Context, mintURL, request string, unit cashu.Unit) (*mint.MeltQuote, error) {
		return &mint.MeltQuote{Quote: "mq1", Amount: 10, FeeReserve: 2, Unit: unit}, nil
	}
	svc.MeltFn = func(ctx context.Context, mintURL string, quote *mint.MeltQuote, inputs cashu.Proofs) (*mint.MeltResult, error) {
		return &mint.MeltResult{State: mint.QuoteUnpaid}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 8, 4))

	_, err := w.Melt(context.Background(), testMintURL, "lnbc...")
	require.ErrorIs(t, err, ErrMeltFailed)

	assert.Equal(t, uint64(12), w.TotalBalance(), "failed melt restores inputs")
	staged, _ := w.ledger.PendingSends()
	assert.Empty(t, staged)
}

func TestMelt_PendingKeepsStage(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.RequestMeltQuoteFn = func(ctx context.Context, mintURL, request string, unit cashu.Unit) (*mint.MeltQuote, error) {
		return &mint.MeltQuote{Quote: "mq1", Amount: 10, FeeReserve: 2, Unit: unit}, nil
	}
	svc.MeltFn = func(ctx context.Context, mintURL string, quote *mint.MeltQuote, inputs cashu.Proofs) (*mint.MeltResult, error) {
		return &mint.MeltResult{State: mint.QuotePending}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 8, 4))

	res, err := w.Melt(context.Background(), testMintURL, "lnbc...")
	require.ErrorIs(t, err, ErrMeltPending)
	require.NotNil(t, res)
	assert.Equal(t, mint.QuotePending, res.State)

	// The in-flight payment may still spend the inputs: they are not
	// restored, and the staging record survives for recovery.
	assert.Zero(t, w.TotalBalance())
	staged, err := w.ledger.PendingSends()
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.NotNil(t, staged[0].Record)
	assert.Equal(t, uint64(12), staged[0].Record.Proofs.Amount())
}

func TestMelt_InsufficientFunds(t *testing.T) {
	keysetID := "00ad268c4d1f5826"
	svc := registryMock([]cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}})
	svc.RequestMeltQuoteFn = func(ctx context.Context, mintURL, request string, unit cashu.Unit) (*mint.MeltQuote, error) {
		return &mint.MeltQuote{Quote: "mq1", Amount: 100, FeeReserve: 2, Unit: unit}, nil
	}
	w, _ := newTestWallet(t, svc, nil)
	seedWallet(t, w, []cashu.Keyset{{ID: keysetID, Unit: cashu.UnitSat, Active: true}},
		proofSet(keysetID, 8))

	_, err := w.Melt(context.Background(), testMintURL, "lnbc...")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

// --- balances ---

func TestTotalBalance_MixedUnits(t *testing.T) {
	satID := "00ad268c4d1f5826"
	msatID := "00bb268c4d1f5826"
	w, _ := newTestWallet(t, registryMock(nil), nil)
	seedWallet(t, w, []cashu.Keyset{
		{ID: satID, Unit: cashu.UnitSat, Active: true},
		{ID: msatID, Unit: cashu.UnitMsat, Active: true},
	}, append(proofSet(satID, 8, 2), proofSet(msatID, 4096, 904)...))

	// 10 sat + 5000 msat = 15 sat.
	assert.Equal(t, uint64(15), w.TotalBalance())

	byMint := w.BalanceByMint()
	require.Contains(t, byMint, testMintURL)
}
