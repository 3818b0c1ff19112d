// Package cashu defines the value types shared across the wallet: proofs,
// keysets, mints, and portable tokens, together with the token wire
// serializations (V3 JSON and V4 CBOR).
//
// Amounts are always integers in the smallest indivisible unit of the
// keyset's currency unit. Conversion between units (msat -> sat) happens at
// aggregation boundaries only; stored amounts are never mutated.
package cashu

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Unit is the currency unit of a keyset.
type Unit string

const (
	// UnitSat denominates amounts in satoshis.
	UnitSat Unit = "sat"

	// UnitMsat denominates amounts in millisatoshis.
	UnitMsat Unit = "msat"
)

// Valid reports whether the unit is one the wallet can operate in.
func (u Unit) Valid() bool {
	return u == UnitSat || u == UnitMsat
}

// SatValue converts an amount in this unit to whole satoshis, truncating
// sub-satoshi remainders. Unknown units are returned unchanged.
func (u Unit) SatValue(amount uint64) uint64 {
	if u == UnitMsat {
		return amount / 1000
	}
	return amount
}

// Proof is a bearer credential for a fixed amount, redeemable at the mint
// that issued its keyset. The secret is the unique identity of a proof;
// no two ledger proofs may share one.
type Proof struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"` // issuing keyset id
	Secret string `json:"secret"`
	C      string `json:"C"` // commitment (signature point, compressed hex)
}

// Proofs is a list of proofs.
type Proofs []Proof

// Amount returns the summed amount of all proofs.
func (ps Proofs) Amount() uint64 {
	var total uint64
	for _, p := range ps {
		total += p.Amount
	}
	return total
}

// Secrets returns the proofs' secrets in order.
func (ps Proofs) Secrets() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Secret
	}
	return out
}

// Keyset is the normalized description of one mint keyset. All code after
// the registry boundary sees exactly this shape.
type Keyset struct {
	ID          string `json:"id"`
	MintURL     string `json:"mint_url"`
	Unit        Unit   `json:"unit"`
	Active      bool   `json:"active"`
	InputFeePpk uint64 `json:"input_fee_ppk"` // fee per spent proof, parts per thousand
}

// ValidKeysetID reports whether id is well-formed: non-empty hexadecimal of
// even length. Malformed ids are filtered at the registry boundary so key
// lookups never see them.
func ValidKeysetID(id string) bool {
	if id == "" || len(id)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// KeysetDerivationIndex maps a keyset id onto a BIP32 child index for
// deterministic secret derivation: the id bytes interpreted as a big-endian
// integer, reduced modulo 2^31 - 1.
func KeysetDerivationIndex(id string) (uint32, error) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKeysetID, id)
	}
	var acc uint64
	for _, b := range raw {
		acc = (acc<<8 | uint64(b)) % ((1 << 31) - 1)
	}
	return uint32(acc), nil
}

// MintInfo is the descriptive metadata a mint publishes about itself.
type MintInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	DescriptionLong string `json:"description_long,omitempty"`
	MOTD            string `json:"motd,omitempty"`
}

// Mint is a known issuing server together with its cached metadata.
// The normalized URL is the sole identity key.
type Mint struct {
	URL     string   `json:"url"`
	Info    MintInfo `json:"info"`
	Keysets []Keyset `json:"keysets"`
	Active  bool     `json:"active"`
}

// ActiveKeyset returns the first active keyset in the given unit, or false
// when the mint has none.
func (m *Mint) ActiveKeyset(unit Unit) (Keyset, bool) {
	for _, ks := range m.Keysets {
		if ks.Active && ks.Unit == unit {
			return ks, true
		}
	}
	return Keyset{}, false
}

// NormalizeMintURL canonicalizes a mint URL: requires an http(s) scheme and
// a host, lowercases both, and strips any trailing slash so that one mint
// maps to exactly one ledger identity.
func NormalizeMintURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMintURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidMintURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidMintURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = ""
	return u.String(), nil
}

// SplitAmount decomposes an amount into powers of two, smallest first.
// Mints sign one blinded message per element, so this is the canonical
// denomination split for new outputs.
func SplitAmount(amount uint64) []uint64 {
	var parts []uint64
	for bit := uint(0); bit < 64; bit++ {
		if amount&(1<<bit) != 0 {
			parts = append(parts, 1<<bit)
		}
	}
	return parts
}
