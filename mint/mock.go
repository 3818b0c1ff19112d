package mint

import (
	"context"

	"github.com/ecashorg/libecash-go/cashu"
)

// MockService is a test double for Service. Function fields must be set
// before the corresponding method is called.
type MockService struct {
	GetInfoFn            func(ctx context.Context, mintURL string) (*cashu.MintInfo, error)
	GetKeysetsFn         func(ctx context.Context, mintURL string) ([]cashu.Keyset, error)
	GetKeysFn            func(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error)
	SwapFn               func(ctx context.Context, req SwapRequest) (*SwapResult, error)
	ReceiveFn            func(ctx context.Context, token *cashu.Token, keysetID string, feePpk uint64) (cashu.Proofs, error)
	CheckProofStatesFn   func(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]ProofStateResult, error)
	RequestMintQuoteFn   func(ctx context.Context, mintURL string, amount uint64, unit cashu.Unit) (*MintQuote, error)
	MintQuoteStateFn     func(ctx context.Context, mintURL, quoteID string) (*MintQuote, error)
	MintProofsFn         func(ctx context.Context, mintURL, quoteID string, amount uint64, keysetID string) (cashu.Proofs, error)
	RequestMeltQuoteFn   func(ctx context.Context, mintURL, request string, unit cashu.Unit) (*MeltQuote, error)
	MeltFn               func(ctx context.Context, mintURL string, quote *MeltQuote, inputs cashu.Proofs) (*MeltResult, error)
	SubscribeMintQuoteFn func(ctx context.Context, mintURL, quoteID string) (<-chan MintQuote, func(), error)
}

// Compile-time interface check.
var _ Service = (*MockService)(nil)

func (m *MockService) GetInfo(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
	return m.GetInfoFn(ctx, mintURL)
}
func (m *MockService) GetKeysets(ctx context.Context, mintURL string) ([]cashu.Keyset, error) {
	return m.GetKeysetsFn(ctx, mintURL)
}
func (m *MockService) GetKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
	return m.GetKeysFn(ctx, mintURL, keysetID)
}
func (m *MockService) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	return m.SwapFn(ctx, req)
}
func (m *MockService) Receive(ctx context.Context, token *cashu.Token, keysetID string, feePpk uint64) (cashu.Proofs, error) {
	return m.ReceiveFn(ctx, token, keysetID, feePpk)
}
func (m *MockService) CheckProofStates(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]ProofStateResult, error) {
	return m.CheckProofStatesFn(ctx, mintURL, proofs)
}
func (m *MockService) RequestMintQuote(ctx context.Context, mintURL string, amount uint64, unit cashu.Unit) (*MintQuote, error) {
	return m.RequestMintQuoteFn(ctx, mintURL, amount, unit)
}
func (m *MockService) MintQuoteState(ctx context.Context, mintURL, quoteID string) (*MintQuote, error) {
	return m.MintQuoteStateFn(ctx, mintURL, quoteID)
}
func (m *MockService) MintProofs(ctx context.Context, mintURL, quoteID string, amount uint64, keysetID string) (cashu.Proofs, error) {
	return m.MintProofsFn(ctx, mintURL, quoteID, amount, keysetID)
}
func (m *MockService) RequestMeltQuote(ctx context.Context, mintURL, request string, unit cashu.Unit) (*MeltQuote, error) {
	return m.RequestMeltQuoteFn(ctx, mintURL, request, unit)
}
func (m *MockService) Melt(ctx context.Context, mintURL string, quote *MeltQuote, inputs cashu.Proofs) (*MeltResult, error) {
	return m.MeltFn(ctx, mintURL, quote, inputs)
}
func (m *MockService) SubscribeMintQuote(ctx context.Context, mintURL, quoteID string) (<-chan MintQuote, func(), error) {
	return m.SubscribeMintQuoteFn(ctx, mintURL, quoteID)
}
