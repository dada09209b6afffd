package repositories

import "fmt"

// LedgerErrorCode enumerates availability ledger failures raised inside the
// commit transaction.
type LedgerErrorCode string

const (
	// LedgerErrorUnknown represents an unspecified failure.
	LedgerErrorUnknown LedgerErrorCode = "ledger_unknown"
	// LedgerErrorInsufficient indicates the requested quantity exceeds the
	// remaining availability for a counter.
	LedgerErrorInsufficient LedgerErrorCode = "ledger_insufficient"
	// LedgerErrorRefNotFound indicates the item or combination has no
	// catalog document.
	LedgerErrorRefNotFound LedgerErrorCode = "ledger_ref_not_found"
	// LedgerErrorRefInactive indicates the item or combination exists but is
	// not sellable.
	LedgerErrorRefInactive LedgerErrorCode = "ledger_ref_inactive"
)

// LedgerError carries the failing catalog reference so callers can tell the
// buyer which line could not be fulfilled.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	Ref     string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewLedgerError constructs a typed availability ledger error.
func NewLedgerError(code LedgerErrorCode, ref, message string, err error) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{Code: code, Ref: ref, Message: message, Err: err}
}
