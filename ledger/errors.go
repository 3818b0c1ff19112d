package ledger

import "errors"

var (
	// ErrNilStore indicates the ledger was opened without a durable store.
	ErrNilStore = errors.New("ledger: nil store")

	// ErrUnknownNamespace indicates a store access named a namespace that
	// was not created at open time.
	ErrUnknownNamespace = errors.New("ledger: unknown namespace")

	// ErrCorruptRecord indicates a stored value failed to decode.
	ErrCorruptRecord = errors.New("ledger: corrupt record")
)
