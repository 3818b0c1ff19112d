package cashu

import "errors"

var (
	// ErrInvalidTokenFormat indicates a token string could not be decoded.
	ErrInvalidTokenFormat = errors.New("cashu: invalid token format")

	// ErrUnknownTokenVersion indicates the token prefix names a version this
	// library does not speak.
	ErrUnknownTokenVersion = errors.New("cashu: unknown token version")

	// ErrInvalidMintURL indicates a mint URL is malformed or not http(s).
	ErrInvalidMintURL = errors.New("cashu: invalid mint url")

	// ErrInvalidKeysetID indicates a keyset id is not even-length hexadecimal.
	ErrInvalidKeysetID = errors.New("cashu: invalid keyset id")

	// ErrInvalidProof indicates a proof cannot be represented in the requested
	// token serialization (e.g. non-hex commitment in a V4 token).
	ErrInvalidProof = errors.New("cashu: invalid proof encoding")

	// ErrEmptyToken indicates a token carries no proofs.
	ErrEmptyToken = errors.New("cashu: token carries no proofs")
)
