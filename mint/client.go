package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecashorg/libecash-go/cashu"
)

// ClientConfig configures the HTTP protocol client.
type ClientConfig struct {
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// Logger defaults to a no-op logger.
	Logger zerolog.Logger
}

// Client is the raw HTTP protocol client. It serializes requests, maps
// error responses onto classified protocol errors, and leaves all blinding
// and orchestration to the Provider.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a protocol client with a pooled transport.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		log: cfg.Logger,
	}
}

// errorResponse is the body a mint returns with a non-2xx status.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

// do issues one request. A non-2xx response with a decodable error body
// becomes a classified *Error; transport and decode failures wrap
// ErrMintCommunication.
func (c *Client) do(ctx context.Context, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mint: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("mint: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMintCommunication, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && (errResp.Code != 0 || errResp.Detail != "") {
			c.log.Debug().Str("url", url).Int("code", errResp.Code).
				Str("detail", errResp.Detail).Msg("mint rejected request")
			return newError(errResp.Code, errResp.Detail)
		}
		return fmt.Errorf("%w: HTTP %d: %s", ErrMintCommunication, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrMintCommunication, err)
		}
	}
	return nil
}

// --- Info, keysets, keys ---

// GetInfo fetches the mint's descriptive metadata.
func (c *Client) GetInfo(ctx context.Context, mintURL string) (*cashu.MintInfo, error) {
	var info cashu.MintInfo
	if err := c.do(ctx, http.MethodGet, mintURL+"/v1/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type keysetsResponse struct {
	Keysets []struct {
		ID          string `json:"id"`
		Unit        string `json:"unit"`
		Active      bool   `json:"active"`
		InputFeePpk uint64 `json:"input_fee_ppk"`
	} `json:"keysets"`
}

// GetKeysets fetches all keysets the mint exposes, stamped with the mint
// URL. Keyset id validation happens at the registry boundary, not here.
func (c *Client) GetKeysets(ctx context.Context, mintURL string) ([]cashu.Keyset, error) {
	var resp keysetsResponse
	if err := c.do(ctx, http.MethodGet, mintURL+"/v1/keysets", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]cashu.Keyset, len(resp.Keysets))
	for i, ks := range resp.Keysets {
		out[i] = cashu.Keyset{
			ID:          ks.ID,
			MintURL:     mintURL,
			Unit:        cashu.Unit(ks.Unit),
			Active:      ks.Active,
			InputFeePpk: ks.InputFeePpk,
		}
	}
	return out, nil
}

type keysResponse struct {
	Keysets []struct {
		ID   string            `json:"id"`
		Keys map[uint64]string `json:"keys"` // amount -> compressed pubkey hex
	} `json:"keysets"`
}

// GetKeys fetches the signing keys of one keyset, keyed by amount.
func (c *Client) GetKeys(ctx context.Context, mintURL, keysetID string) (map[uint64]string, error) {
	var resp keysResponse
	if err := c.do(ctx, http.MethodGet, mintURL+"/v1/keys/"+keysetID, nil, &resp); err != nil {
		return nil, err
	}
	for _, ks := range resp.Keysets {
		if ks.ID == keysetID {
			return ks.Keys, nil
		}
	}
	return nil, fmt.Errorf("%w: keyset %s missing from keys response", ErrMintCommunication, keysetID)
}

// --- Swap ---

type swapRequest struct {
	Inputs  cashu.Proofs     `json:"inputs"`
	Outputs []BlindedMessage `json:"outputs"`
}

type swapResponse struct {
	Signatures []BlindedSignature `json:"signatures"`
}

// Swap exchanges input proofs for signatures over the blinded outputs.
func (c *Client) Swap(ctx context.Context, mintURL string, inputs cashu.Proofs, outputs []BlindedMessage) ([]BlindedSignature, error) {
	var resp swapResponse
	err := c.do(ctx, http.MethodPost, mintURL+"/v1/swap", swapRequest{Inputs: inputs, Outputs: outputs}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

// --- Proof states ---

type checkStateRequest struct {
	Ys []string `json:"Ys"`
}

type checkStateResponse struct {
	States []struct {
		Y     string     `json:"Y"`
		State ProofState `json:"state"`
	} `json:"states"`
}

// CheckState reports the spend state for each proof identifier.
func (c *Client) CheckState(ctx context.Context, mintURL string, ys []string) (map[string]ProofState, error) {
	var resp checkStateResponse
	if err := c.do(ctx, http.MethodPost, mintURL+"/v1/checkstate", checkStateRequest{Ys: ys}, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]ProofState, len(resp.States))
	for _, s := range resp.States {
		out[s.Y] = s.State
	}
	return out, nil
}

// --- Mint quotes ---

type mintQuoteRequest struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

// MintQuote requests a bolt11 funding quote.
func (c *Client) MintQuote(ctx context.Context, mintURL string, amount uint64, unit cashu.Unit) (*MintQuote, error) {
	var quote MintQuote
	err := c.do(ctx, http.MethodPost, mintURL+"/v1/mint/quote/bolt11",
		mintQuoteRequest{Amount: amount, Unit: string(unit)}, &quote)
	if err != nil {
		return nil, err
	}
	if quote.Amount == 0 {
		quote.Amount = amount
	}
	if quote.Unit == "" {
		quote.Unit = unit
	}
	return &quote, nil
}

// GetMintQuote fetches the current state of a mint quote.
func (c *Client) GetMintQuote(ctx context.Context, mintURL, quoteID string) (*MintQuote, error) {
	var quote MintQuote
	if err := c.do(ctx, http.MethodGet, mintURL+"/v1/mint/quote/bolt11/"+quoteID, nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

type mintRequest struct {
	Quote   string           `json:"quote"`
	Outputs []BlindedMessage `json:"outputs"`
}

type mintResponse struct {
	Signatures []BlindedSignature `json:"signatures"`
}

// Mint redeems a paid quote for signatures over the blinded outputs.
func (c *Client) Mint(ctx context.Context, mintURL, quoteID string, outputs []BlindedMessage) ([]BlindedSignature, error) {
	var resp mintResponse
	err := c.do(ctx, http.MethodPost, mintURL+"/v1/mint/bolt11",
		mintRequest{Quote: quoteID, Outputs: outputs}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

// --- Melt quotes ---

type meltQuoteRequest struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
}

// MeltQuote requests a quote for paying a bolt11 invoice.
func (c *Client) MeltQuote(ctx context.Context, mintURL, request string, unit cashu.Unit) (*MeltQuote, error) {
	var quote MeltQuote
	err := c.do(ctx, http.MethodPost, mintURL+"/v1/melt/quote/bolt11",
		meltQuoteRequest{Request: request, Unit: string(unit)}, &quote)
	if err != nil {
		return nil, err
	}
	if quote.Unit == "" {
		quote.Unit = unit
	}
	return &quote, nil
}

type meltRequest struct {
	Quote   string           `json:"quote"`
	Inputs  cashu.Proofs     `json:"inputs"`
	Outputs []BlindedMessage `json:"outputs,omitempty"`
}

// MeltResponse is the mint's reply to a melt execution.
type MeltResponse struct {
	State    QuoteState         `json:"state"`
	Preimage string             `json:"payment_preimage"`
	Change   []BlindedSignature `json:"change"`
}

// Melt executes a melt quote, spending inputs to pay the quoted invoice.
// Outputs are blank change outputs for the unused fee reserve.
func (c *Client) Melt(ctx context.Context, mintURL, quoteID string, inputs cashu.Proofs, outputs []BlindedMessage) (*MeltResponse, error) {
	var resp MeltResponse
	err := c.do(ctx, http.MethodPost, mintURL+"/v1/melt/bolt11",
		meltRequest{Quote: quoteID, Inputs: inputs, Outputs: outputs}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
