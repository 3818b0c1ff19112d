package mint

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/coinselect"
)

// Provider implements Service over the HTTP protocol client, handling
// output decomposition, blinding, and unblinding around each operation.
type Provider struct {
	api     *Client
	crypto  Crypto
	secrets SecretSource
	log     zerolog.Logger

	keysMu sync.Mutex
	keys   map[string]map[uint64]string // keyset id -> amount -> mint pubkey
}

// Compile-time interface check.
var _ Service = (*Provider)(nil)

// NewProvider wires a protocol client to the blinding capability and the
// secret source.
func NewProvider(api *Client, crypto Crypto, secrets SecretSource, log zerolog.Logger) *Provider {
	return &Provider{
		api:     api,
		crypto:  crypto,
		secrets: secrets,
		log:     log,
		keys:    make(map[string]map[uint64]string),
	}
}

func (p *Provider) GetInfo(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
	return p.api.GetInfo(ctx, mintURL)
}

func (p *Provider) GetKeysets(ctx context.Context, mintURL string) ([]cashu.Keyset, error) {
	return p.api.GetKeysets(ctx, mintURL)
}

// GetKeys returns a keyset's signing keys, cached after the first fetch;
// keysets are immutable once published.
func (p *Provider) GetKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
	p.keysMu.Lock()
	cached, ok := p.keys[keysetID]
	p.keysMu.Unlock()
	if ok {
		return cached, nil
	}

	keys, err := p.api.GetKeys(ctx, mintURL, keysetID)
	if err != nil {
		return nil, err
	}
	p.keysMu.Lock()
	p.keys[keysetID] = keys
	p.keysMu.Unlock()
	return keys, nil
}

// outputPlan is a set of blinded messages awaiting signatures, with the
// material needed to unblind them.
type outputPlan struct {
	messages []BlindedMessage
	secrets  []string
	factors  []string
}

// planOutputs decomposes amounts into power-of-two outputs and blinds a
// fresh secret for each.
func (p *Provider) planOutputs(keysetID string, amounts []uint64) (*outputPlan, error) {
	secrets, err := p.secrets.Secrets(keysetID, len(amounts))
	if err != nil {
		return nil, fmt.Errorf("mint: derive secrets: %w", err)
	}

	plan := &outputPlan{secrets: secrets}
	for i, amount := range amounts {
		blinded, factor, err := p.crypto.Blind(secrets[i])
		if err != nil {
			return nil, fmt.Errorf("mint: blind output: %w", err)
		}
		plan.messages = append(plan.messages, BlindedMessage{Amount: amount, ID: keysetID, B: blinded})
		plan.factors = append(plan.factors, factor)
	}
	return plan, nil
}

// unblind converts the mint's signatures into proofs, position-matched to
// the plan's outputs.
func (p *Provider) unblind(ctx context.Context, mintURL, keysetID string, plan *outputPlan, sigs []BlindedSignature) (cashu.Proofs, error) {
	if len(sigs) != len(plan.messages) {
		return nil, fmt.Errorf("%w: %d signatures for %d outputs", ErrMintCommunication, len(sigs), len(plan.messages))
	}

	keys, err := p.GetKeys(ctx, mintURL, keysetID)
	if err != nil {
		return nil, err
	}

	proofs := make(cashu.Proofs, len(sigs))
	for i, sig := range sigs {
		mintKey, ok := keys[sig.Amount]
		if !ok {
			return nil, fmt.Errorf("%w: no mint key for amount %d", ErrMintCommunication, sig.Amount)
		}
		c, err := p.crypto.Unblind(sig.C, plan.factors[i], mintKey)
		if err != nil {
			return nil, fmt.Errorf("mint: unblind signature: %w", err)
		}
		proofs[i] = cashu.Proof{Amount: sig.Amount, ID: keysetID, Secret: plan.secrets[i], C: c}
	}
	return proofs, nil
}

// Swap reissues inputs as a send set of SendAmount plus change, both under
// req.KeysetID. The mint keeps the input fee; change is what remains.
func (p *Provider) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	fee := coinselect.Fee(len(req.Inputs), req.FeePpk)
	total := req.Inputs.Amount()
	if total < req.SendAmount+fee {
		return nil, fmt.Errorf("%w: inputs %d, need %d plus fee %d",
			ErrInsufficientFunds, total, req.SendAmount, fee)
	}
	change := total - req.SendAmount - fee

	sendParts := cashu.SplitAmount(req.SendAmount)
	changeParts := cashu.SplitAmount(change)
	plan, err := p.planOutputs(req.KeysetID, append(append([]uint64{}, sendParts...), changeParts...))
	if err != nil {
		return nil, err
	}

	sigs, err := p.api.Swap(ctx, req.MintURL, req.Inputs, plan.messages)
	if err != nil {
		return nil, err
	}

	proofs, err := p.unblind(ctx, req.MintURL, req.KeysetID, plan, sigs)
	if err != nil {
		return nil, err
	}

	p.log.Debug().Str("mint", req.MintURL).Uint64("send", req.SendAmount).
		Uint64("change", change).Uint64("fee", fee).Msg("swap complete")

	return &SwapResult{
		Send: proofs[:len(sendParts)],
		Keep: proofs[len(sendParts):],
		Fee:  fee,
	}, nil
}

// Receive redeems a token's proofs at its issuing mint for fresh proofs
// under keysetID. The input fee comes out of the received amount.
func (p *Provider) Receive(ctx context.Context, token *cashu.Token, keysetID string, feePpk uint64) (cashu.Proofs, error) {
	fee := coinselect.Fee(len(token.Proofs), feePpk)
	amount := token.Proofs.Amount()
	if amount <= fee {
		return nil, fmt.Errorf("%w: token amount %d does not cover fee %d", ErrInsufficientFunds, amount, fee)
	}

	plan, err := p.planOutputs(keysetID, cashu.SplitAmount(amount-fee))
	if err != nil {
		return nil, err
	}

	sigs, err := p.api.Swap(ctx, token.Mint, token.Proofs, plan.messages)
	if err != nil {
		return nil, err
	}
	return p.unblind(ctx, token.Mint, keysetID, plan, sigs)
}

// CheckProofStates reports the mint's spend state for each proof, in input
// order.
func (p *Provider) CheckProofStates(ctx context.Context, mintURL string, proofs cashu.Proofs) ([]ProofStateResult, error) {
	ys := make([]string, len(proofs))
	for i, proof := range proofs {
		y, err := p.crypto.ProofID(proof.Secret)
		if err != nil {
			return nil, fmt.Errorf("mint: derive proof id: %w", err)
		}
		ys[i] = y
	}

	states, err := p.api.CheckState(ctx, mintURL, ys)
	if err != nil {
		return nil, err
	}

	out := make([]ProofStateResult, len(proofs))
	for i, proof := range proofs {
		state, ok := states[ys[i]]
		if !ok {
			return nil, fmt.Errorf("%w: no state for proof %q", ErrMintCommunication, ys[i])
		}
		out[i] = ProofStateResult{Proof: proof, State: state}
	}
	return out, nil
}

func (p *Provider) RequestMintQuote(ctx context.Context, mintURL string, amount uint64, unit cashu.Unit) (*MintQuote, error) {
	return p.api.MintQuote(ctx, mintURL, amount, unit)
}

func (p *Provider) MintQuoteState(ctx context.Context, mintURL, quoteID string) (*MintQuote, error) {
	return p.api.GetMintQuote(ctx, mintURL, quoteID)
}

// MintProofs redeems a paid quote for proofs under keysetID.
func (p *Provider) MintProofs(ctx context.Context, mintURL, quoteID string, amount uint64, keysetID string) (cashu.Proofs, error) {
	plan, err := p.planOutputs(keysetID, cashu.SplitAmount(amount))
	if err != nil {
		return nil, err
	}
	sigs, err := p.api.Mint(ctx, mintURL, quoteID, plan.messages)
	if err != nil {
		return nil, err
	}
	return p.unblind(ctx, mintURL, keysetID, plan, sigs)
}

func (p *Provider) RequestMeltQuote(ctx context.Context, mintURL, request string, unit cashu.Unit) (*MeltQuote, error) {
	return p.api.MeltQuote(ctx, mintURL, request, unit)
}

// Melt executes a melt quote. Blank outputs accompany the inputs so the
// mint can return the unused part of the fee reserve as change; the change
// signatures carry their own amounts.
func (p *Provider) Melt(ctx context.Context, mintURL string, quote *MeltQuote, inputs cashu.Proofs) (*MeltResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInsufficientFunds)
	}
	keysetID := inputs[0].ID

	plan, err := p.planOutputs(keysetID, blankOutputAmounts(quote.FeeReserve))
	if err != nil {
		return nil, err
	}

	resp, err := p.api.Melt(ctx, mintURL, quote.Quote, inputs, plan.messages)
	if err != nil {
		return nil, err
	}

	result := &MeltResult{State: resp.State, Preimage: resp.Preimage}
	if len(resp.Change) > len(plan.messages) {
		return nil, fmt.Errorf("%w: %d change signatures for %d blanks",
			ErrMintCommunication, len(resp.Change), len(plan.messages))
	}
	if len(resp.Change) > 0 {
		// The mint signs only as many blanks as it needs; trim the plan to
		// match before unblinding.
		trimmed := &outputPlan{
			messages: plan.messages[:len(resp.Change)],
			secrets:  plan.secrets[:len(resp.Change)],
			factors:  plan.factors[:len(resp.Change)],
		}
		change, err := p.unblind(ctx, mintURL, keysetID, trimmed, resp.Change)
		if err != nil {
			return nil, err
		}
		result.Change = change
	}
	return result, nil
}

// blankOutputAmounts returns the placeholder amounts for melt change
// outputs: max(ceil(log2(feeReserve)), 1) blanks whose real amounts the
// mint assigns when returning change.
func blankOutputAmounts(feeReserve uint64) []uint64 {
	n := 1
	if feeReserve > 1 {
		n = bits.Len64(feeReserve - 1)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
