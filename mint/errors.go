package mint

import (
	"errors"
	"fmt"
)

// Error classes. Protocol failures carry one of these so retry logic can
// branch on errors.Is instead of message text.
var (
	// ErrAlreadySpent indicates the mint rejected an input proof as spent:
	// remote state contradicts the local ledger. Callers clean up and retry.
	ErrAlreadySpent = errors.New("mint: proof already spent")

	// ErrInsufficientFunds indicates the supplied inputs cannot cover the
	// requested amount plus the fee they induce.
	ErrInsufficientFunds = errors.New("mint: insufficient funds")

	// ErrTransactionUnbalanced indicates the mint rejected a swap whose
	// inputs, outputs, and fees do not balance.
	ErrTransactionUnbalanced = errors.New("mint: transaction unbalanced")

	// ErrQuoteNotPaid indicates tokens were requested against an unpaid
	// mint quote.
	ErrQuoteNotPaid = errors.New("mint: quote not paid")

	// ErrMintCommunication indicates a network or protocol failure talking
	// to the mint.
	ErrMintCommunication = errors.New("mint: communication failure")

	// ErrSubscriptionUnsupported indicates the mint does not offer
	// websocket subscriptions; callers fall back to polling.
	ErrSubscriptionUnsupported = errors.New("mint: websocket subscriptions unsupported")
)

// Protocol error codes the classifier recognizes (NUT error code registry).
const (
	codeTokenAlreadySpent      = 11001
	codeTransactionUnbalanced  = 11002
	codeMintQuoteNotPaid       = 20001
	codeMintQuoteAlreadyIssued = 20002
)

// Error is a protocol-level rejection from a mint. It unwraps to the class
// sentinel matching its code, so errors.Is(err, ErrAlreadySpent) holds for
// any "token already spent" rejection regardless of the detail text.
type Error struct {
	Code   int
	Detail string
	class  error
}

// newError builds a classified protocol error from a mint error response.
func newError(code int, detail string) *Error {
	e := &Error{Code: code, Detail: detail}
	switch code {
	case codeTokenAlreadySpent:
		e.class = ErrAlreadySpent
	case codeTransactionUnbalanced:
		e.class = ErrTransactionUnbalanced
	case codeMintQuoteNotPaid:
		e.class = ErrQuoteNotPaid
	default:
		e.class = ErrMintCommunication
	}
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("mint: protocol error %d: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.class }
