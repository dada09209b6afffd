package repositories

import "fmt"

// DiscountErrorCode enumerates why a discount code could not be applied.
type DiscountErrorCode string

const (
	// DiscountErrorNotFound indicates no code document exists.
	DiscountErrorNotFound DiscountErrorCode = "discount_not_found"
	// DiscountErrorInactive indicates the code has been disabled.
	DiscountErrorInactive DiscountErrorCode = "discount_inactive"
	// DiscountErrorNotStarted indicates the validity window has not opened.
	DiscountErrorNotStarted DiscountErrorCode = "discount_not_started"
	// DiscountErrorExpired indicates the validity window has closed.
	DiscountErrorExpired DiscountErrorCode = "discount_expired"
	// DiscountErrorExhausted indicates the usage limit has been reached.
	DiscountErrorExhausted DiscountErrorCode = "discount_exhausted"
)

// DiscountError wraps discount failures with machine readable codes.
type DiscountError struct {
	Op      string
	Code    DiscountErrorCode
	Message string
	Err     error
}

func (e *DiscountError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *DiscountError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewDiscountError constructs a typed discount error.
func NewDiscountError(code DiscountErrorCode, message string, err error) *DiscountError {
	if message == "" {
		message = string(code)
	}
	return &DiscountError{Code: code, Message: message, Err: err}
}
