package cashu

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Token is a portable, self-contained bundle of proofs from a single mint,
// used to hand value from one holder to another. The nominal token amount
// is the sum of its proof amounts, in Unit.
type Token struct {
	Mint   string `json:"mint"`
	Proofs Proofs `json:"proofs"`
	Unit   Unit   `json:"unit"`
	Memo   string `json:"memo,omitempty"`
}

// Amount returns the nominal token amount.
func (t *Token) Amount() uint64 { return t.Proofs.Amount() }

const (
	prefixV3 = "cashuA"
	prefixV4 = "cashuB"
)

// V3 wire shape: JSON under a base64url envelope.
type tokenV3 struct {
	Token []tokenV3Entry `json:"token"`
	Unit  string         `json:"unit,omitempty"`
	Memo  string         `json:"memo,omitempty"`
}

type tokenV3Entry struct {
	Mint   string `json:"mint"`
	Proofs Proofs `json:"proofs"`
}

// V4 wire shape: CBOR with single-letter keys, proofs grouped by keyset,
// binary keyset ids and commitments.
type tokenV4 struct {
	Mint   string         `cbor:"m"`
	Unit   string         `cbor:"u"`
	Memo   string         `cbor:"d,omitempty"`
	Tokens []tokenV4Entry `cbor:"t"`
}

type tokenV4Entry struct {
	ID     []byte         `cbor:"i"`
	Proofs []tokenV4Proof `cbor:"p"`
}

type tokenV4Proof struct {
	Amount uint64 `cbor:"a"`
	Secret string `cbor:"s"`
	C      []byte `cbor:"c"`
}

// Encode serializes the token in the V4 (CBOR) format.
func (t *Token) Encode() (string, error) {
	if len(t.Proofs) == 0 {
		return "", ErrEmptyToken
	}

	// Group proofs by keyset, preserving first-seen keyset order.
	order := make([]string, 0, 1)
	groups := make(map[string][]tokenV4Proof)
	for _, p := range t.Proofs {
		id, err := hex.DecodeString(p.ID)
		if err != nil || len(id) == 0 {
			return "", fmt.Errorf("%w: keyset id %q", ErrInvalidProof, p.ID)
		}
		c, err := hex.DecodeString(p.C)
		if err != nil {
			return "", fmt.Errorf("%w: commitment for secret %q", ErrInvalidProof, p.Secret)
		}
		if _, seen := groups[p.ID]; !seen {
			order = append(order, p.ID)
		}
		groups[p.ID] = append(groups[p.ID], tokenV4Proof{Amount: p.Amount, Secret: p.Secret, C: c})
	}

	v4 := tokenV4{Mint: t.Mint, Unit: string(t.Unit), Memo: t.Memo}
	for _, id := range order {
		raw, _ := hex.DecodeString(id)
		v4.Tokens = append(v4.Tokens, tokenV4Entry{ID: raw, Proofs: groups[id]})
	}

	data, err := cbor.Marshal(v4)
	if err != nil {
		return "", fmt.Errorf("cashu: marshal token: %w", err)
	}
	return prefixV4 + base64.RawURLEncoding.EncodeToString(data), nil
}

// EncodeV3 serializes the token in the legacy V3 (JSON) format, still widely
// produced by older wallets.
func (t *Token) EncodeV3() (string, error) {
	if len(t.Proofs) == 0 {
		return "", ErrEmptyToken
	}
	v3 := tokenV3{
		Token: []tokenV3Entry{{Mint: t.Mint, Proofs: t.Proofs}},
		Unit:  string(t.Unit),
		Memo:  t.Memo,
	}
	data, err := json.Marshal(v3)
	if err != nil {
		return "", fmt.Errorf("cashu: marshal token: %w", err)
	}
	return prefixV3 + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a serialized token of either version. The version is
// selected by prefix; the base64 payload is accepted with or without padding
// in both the URL-safe and standard alphabets, since wallets in the wild
// differ.
func DecodeToken(s string) (*Token, error) {
	s = strings.TrimSpace(s)
	// Tokens are often pasted as cashu: URIs.
	s = strings.TrimPrefix(s, "cashu://")
	s = strings.TrimPrefix(s, "cashu:")

	switch {
	case strings.HasPrefix(s, prefixV4):
		return decodeV4(s[len(prefixV4):])
	case strings.HasPrefix(s, prefixV3):
		return decodeV3(s[len(prefixV3):])
	case strings.HasPrefix(s, "cashu"):
		return nil, fmt.Errorf("%w: %q", ErrUnknownTokenVersion, s[:6])
	default:
		return nil, fmt.Errorf("%w: missing cashu prefix", ErrInvalidTokenFormat)
	}
}

func decodeV3(payload string) (*Token, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenFormat, err)
	}
	var v3 tokenV3
	if err := json.Unmarshal(data, &v3); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenFormat, err)
	}
	if len(v3.Token) == 0 {
		return nil, ErrEmptyToken
	}

	// Multi-mint V3 tokens exist in theory but no wallet emits them; the
	// ledger only accepts single-mint tokens, so reject the ambiguity here.
	t := &Token{Mint: v3.Token[0].Mint, Unit: Unit(v3.Unit), Memo: v3.Memo}
	for _, entry := range v3.Token {
		if entry.Mint != t.Mint {
			return nil, fmt.Errorf("%w: multiple mints in one token", ErrInvalidTokenFormat)
		}
		t.Proofs = append(t.Proofs, entry.Proofs...)
	}
	if len(t.Proofs) == 0 {
		return nil, ErrEmptyToken
	}
	if t.Unit == "" {
		t.Unit = UnitSat
	}
	return t, nil
}

func decodeV4(payload string) (*Token, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenFormat, err)
	}
	var v4 tokenV4
	if err := cbor.Unmarshal(data, &v4); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenFormat, err)
	}

	t := &Token{Mint: v4.Mint, Unit: Unit(v4.Unit), Memo: v4.Memo}
	for _, entry := range v4.Tokens {
		id := hex.EncodeToString(entry.ID)
		for _, p := range entry.Proofs {
			t.Proofs = append(t.Proofs, Proof{
				Amount: p.Amount,
				ID:     id,
				Secret: p.Secret,
				C:      hex.EncodeToString(p.C),
			})
		}
	}
	if len(t.Proofs) == 0 {
		return nil, ErrEmptyToken
	}
	if t.Unit == "" {
		t.Unit = UnitSat
	}
	return t, nil
}

// decodeBase64 tries the base64 alphabets found in circulating tokens.
func decodeBase64(payload string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var err error
	for _, enc := range encodings {
		var data []byte
		if data, err = enc.DecodeString(payload); err == nil {
			return data, nil
		}
	}
	return nil, err
}
