package service

import (
	"context"
	"errors"
)

// ErrEmptyCart is returned when a checkout is attempted with no cart lines.
var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// ErrorKind classifies a failed checkout for the caller.
type ErrorKind string

const (
	ErrorKindEmptyCart         ErrorKind = "EMPTY_CART"
	ErrorKindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	ErrorKindPaymentDeclined   ErrorKind = "PAYMENT_DECLINED"
	ErrorKindCommitError       ErrorKind = "COMMIT_ERROR"
	ErrorKindTimeout           ErrorKind = "TIMEOUT"
)

// kindForError maps a step failure to an error kind, treating context
// expiry as a timeout of that step.
func kindForError(err error, fallback ErrorKind) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorKindTimeout
	}
	return fallback
}
