// Package mint speaks the mint's HTTP and websocket protocol and assembles
// the blinded-output side of swap, mint, and melt operations. The blinding
// scheme itself is not implemented here: blinding, unblinding, and proof
// identifier derivation are delegated to an injected Crypto capability, and
// fresh secrets come from an injected SecretSource.
package mint

import (
	"context"

	"github.com/ecashorg/libecash-go/cashu"
)

// BlindedMessage is an output the mint is asked to sign.
type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"` // keyset id
	B      string `json:"B_"` // blinded point, compressed hex
}

// BlindedSignature is the mint's signature over a blinded message.
type BlindedSignature struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	C      string `json:"C_"` // blinded signature point, compressed hex
}

// ProofState is the mint's view of one proof.
type ProofState string

const (
	ProofStateUnspent ProofState = "UNSPENT"
	ProofStatePending ProofState = "PENDING"
	ProofStateSpent   ProofState = "SPENT"
)

// ProofStateResult pairs a proof with its remote spend state.
type ProofStateResult struct {
	Proof cashu.Proof
	State ProofState
}

// QuoteState is the lifecycle state of a mint or melt quote.
type QuoteState string

const (
	QuoteUnpaid  QuoteState = "UNPAID"
	QuotePaid    QuoteState = "PAID"
	QuoteIssued  QuoteState = "ISSUED"
	QuotePending QuoteState = "PENDING"
)

// MintQuote is an offer to issue proofs once its bolt11 request is paid.
type MintQuote struct {
	Quote   string     `json:"quote"`
	Request string     `json:"request"` // bolt11 invoice to pay
	Amount  uint64     `json:"amount"`
	Unit    cashu.Unit `json:"unit"`
	State   QuoteState `json:"state"`
	Expiry  int64      `json:"expiry"` // unix seconds
}

// MeltQuote is an offer to pay a bolt11 request in exchange for proofs
// covering Amount plus FeeReserve.
type MeltQuote struct {
	Quote      string     `json:"quote"`
	Amount     uint64     `json:"amount"`
	FeeReserve uint64     `json:"fee_reserve"`
	Unit       cashu.Unit `json:"unit"`
	State      QuoteState `json:"state"`
	Expiry     int64      `json:"expiry"`
}

// SwapRequest asks a mint to reissue Inputs as a send set plus change.
type SwapRequest struct {
	MintURL string
	Inputs  cashu.Proofs

	// SendAmount is the portion reissued as the Send set. Zero refreshes
	// the whole balance into Keep (used by keyset migration).
	SendAmount uint64

	// KeysetID is the keyset the fresh outputs are issued under.
	KeysetID string

	// FeePpk is the per-proof input fee rate the mint charges.
	FeePpk uint64
}

// SwapResult is the outcome of a provider swap.
type SwapResult struct {
	Send cashu.Proofs
	Keep cashu.Proofs
	Fee  uint64
}

// MeltResult is the outcome of a melt execution.
type MeltResult struct {
	State    QuoteState
	Preimage string
	// Change is the unused part of the fee reserve, returned as proofs.
	Change cashu.Proofs
}

// Crypto is the blinding capability. Implementations perform the BDHKE
// operations; this library ships only test fakes.
type Crypto interface {
	// Blind blinds a secret, returning the blinded point and the blinding
	// factor needed to unblind the mint's signature.
	Blind(secret string) (blinded, factor string, err error)

	// Unblind converts a blinded signature into a proof commitment using
	// the blinding factor and the mint's public key for the amount.
	Unblind(signed, factor, mintKey string) (commitment string, err error)

	// ProofID derives the public identifier (Y point) the mint indexes a
	// secret's spend state under.
	ProofID(secret string) (string, error)
}

// SecretSource supplies fresh proof secrets for new outputs, typically
// derived deterministically per keyset so a wallet can be restored from
// seed.
type SecretSource interface {
	Secrets(keysetID string, n int) ([]string, error)
}

// Service is the mint capability the wallet consumes. The Provider
// implements it over HTTP; tests inject the function-field Mock.
type Service interface {
	GetInfo(ctx context.Context, mintURL string) (*cashu.MintInfo, error)
	GetKeysets(ctx context.Context, mintURL string) ([]cashu.Keyset, error)
	GetKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error)

	// Swap exchanges inputs for freshly issued send and change proofs.
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)

	// Receive redeems a token at its issuing mint, reissuing its proofs
	// under the given keyset so the sender can no longer spend them.
	Receive(ctx context.Context, token *cashu.Token, keysetID string, feePpk uint64) (cashu.Proofs, error)

	// CheckProofStates reports the mint's spend state for each proof.
	CheckProofStates(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]ProofStateResult, error)

	RequestMintQuote(ctx context.Context, mintURL string, amount uint64, unit cashu.Unit) (*MintQuote, error)
	MintQuoteState(ctx context.Context, mintURL, quoteID string) (*MintQuote, error)
	MintProofs(ctx context.Context, mintURL, quoteID string, amount uint64, keysetID string) (cashu.Proofs, error)

	RequestMeltQuote(ctx context.Context, mintURL, request string, unit cashu.Unit) (*MeltQuote, error)
	Melt(ctx context.Context, mintURL string, quote *MeltQuote, inputs cashu.Proofs) (*MeltResult, error)

	// SubscribeMintQuote streams state changes for a mint quote. The stop
	// function ends the subscription; ErrSubscriptionUnsupported means the
	// caller should poll instead.
	SubscribeMintQuote(ctx context.Context, mintURL, quoteID string) (<-chan MintQuote, func(), error)
}
