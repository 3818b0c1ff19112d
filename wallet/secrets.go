package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"

	"github.com/ecashorg/libecash-go/cashu"
	"github.com/ecashorg/libecash-go/ledger"
	"github.com/ecashorg/libecash-go/mint"
)

// Compile-time interface checks.
var (
	_ mint.SecretSource = (*SecretDeriver)(nil)
	_ mint.SecretSource = RandomSecretSource{}
)

const (
	// Derivation purpose for deterministic proof secrets:
	// m/129372'/0'/{keyset}'/{counter}'
	secretPurpose = 129372

	// BIP32 hardened offset.
	hardened = 0x80000000
)

// SecretDeriver derives proof secrets deterministically from a BIP39 seed,
// so a wallet restored from its mnemonic can regenerate every secret it ever
// used. Each keyset has its own counter, reserved through the ledger before
// use; a crash can skip indices but never repeats one.
type SecretDeriver struct {
	master *bip32.ExtendedKey
	led    *ledger.Ledger
}

// NewSecretDeriver builds a deriver over the seed, persisting per-keyset
// counters in the ledger.
func NewSecretDeriver(seed []byte, led *ledger.Ledger) (*SecretDeriver, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	master, err := bip32.NewMaster(seed, &chaincfg.MainNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return &SecretDeriver{master: master, led: led}, nil
}

// Secrets reserves n counter indices for the keyset and derives one secret
// per index: the hex of the private key at
// m/129372'/0'/{keyset index}'/{counter}'.
func (d *SecretDeriver) Secrets(keysetID string, n int) ([]string, error) {
	keysetIdx, err := cashu.KeysetDerivationIndex(keysetID)
	if err != nil {
		return nil, err
	}
	first, err := d.led.NextCounter(keysetID, uint32(n))
	if err != nil {
		return nil, err
	}

	keysetKey, err := d.keysetKey(keysetIdx)
	if err != nil {
		return nil, err
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		child, err := keysetKey.Child(first + uint32(i) + hardened)
		if err != nil {
			return nil, fmt.Errorf("%w: counter %d: %w", ErrDerivationFailed, first+uint32(i), err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
		}
		out[i] = hex.EncodeToString(priv.Serialize())
	}
	return out, nil
}

// keysetKey derives m/129372'/0'/{keyset index}'.
func (d *SecretDeriver) keysetKey(keysetIdx uint32) (*bip32.ExtendedKey, error) {
	purpose, err := d.master.Child(secretPurpose + hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: purpose: %w", ErrDerivationFailed, err)
	}
	coin, err := purpose.Child(0 + hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: coin type: %w", ErrDerivationFailed, err)
	}
	key, err := coin.Child(keysetIdx + hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: keyset index %d: %w", ErrDerivationFailed, keysetIdx, err)
	}
	return key, nil
}

// RandomSecretSource generates throwaway random secrets. Proofs issued with
// it cannot be restored from seed.
type RandomSecretSource struct{}

// Secrets returns n random 32-byte secrets, hex encoded.
func (RandomSecretSource) Secrets(_ string, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("wallet: generate secret: %w", err)
		}
		out[i] = hex.EncodeToString(buf)
	}
	return out, nil
}
