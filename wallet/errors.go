package wallet

import "errors"

var (
	// ErrInsufficientFunds indicates the ledger cannot cover the requested
	// amount at the named mint, even after purging spent proofs.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrSendFailed is the terminal send error after every swap attempt and
	// local fallback failed. Always wrapped with the mint URL.
	ErrSendFailed = errors.New("wallet: send failed")

	// ErrMeltFailed indicates a melt quote could not be paid.
	ErrMeltFailed = errors.New("wallet: melt failed")

	// ErrMeltPending indicates the lightning payment behind a melt is still
	// in flight. The staged inputs stay out of the ledger until the quote
	// resolves.
	ErrMeltPending = errors.New("wallet: melt pending")

	// ErrUnitNotSupported indicates a mint offers neither sat nor msat
	// keysets.
	ErrUnitNotSupported = errors.New("wallet: mint unit not supported")

	// ErrNoActiveKeyset indicates a mint has no active keyset in the
	// required unit.
	ErrNoActiveKeyset = errors.New("wallet: no active keyset")

	// ErrRecoveryInconsistency indicates a staged pending-send record could
	// not be reconstructed. Recovery logs and discards these; it never
	// aborts.
	ErrRecoveryInconsistency = errors.New("wallet: unrecoverable pending-send record")

	// ErrInvalidAmount indicates a zero amount was requested.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")

	// ErrNilStore indicates the wallet was constructed without a store.
	ErrNilStore = errors.New("wallet: nil store")

	// ErrNilService indicates the wallet was constructed without a mint
	// service.
	ErrNilService = errors.New("wallet: nil mint service")

	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("wallet: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("wallet: entropy bits must be 128 or 256")

	// ErrInvalidSeed indicates the seed is empty or invalid.
	ErrInvalidSeed = errors.New("wallet: invalid seed")

	// ErrDecryptionFailed indicates wrong password or corrupted seed data.
	ErrDecryptionFailed = errors.New("wallet: seed decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates seed checksum verification failed after
	// decryption.
	ErrChecksumMismatch = errors.New("wallet: seed checksum mismatch")

	// ErrDerivationFailed indicates BIP32 secret derivation failed.
	ErrDerivationFailed = errors.New("wallet: secret derivation failed")
)
