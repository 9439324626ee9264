package ledger

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// Ledger owns every stock mutation. All concurrency guarantees for
// availability live behind this interface: concurrent Reserve calls for
// the same variant never together exceed its available quantity.
type Ledger interface {
	// Reserve atomically checks availability and moves quantity from
	// available to reserved. Returns an InsufficientStockError when the
	// check fails.
	Reserve(ctx context.Context, checkoutID string, variantID int64, quantity int) (*models.Reservation, error)

	// Commit converts a reservation into a permanent debit. Committing
	// an already-committed token is a no-op.
	Commit(ctx context.Context, token *models.Reservation) error

	// Release returns the reserved quantity to available. Releasing an
	// already-released or expired token is a no-op.
	Release(ctx context.Context, token *models.Reservation) error

	// SweepExpired releases every active reservation whose ExpiresAt
	// has passed and returns how many were released.
	SweepExpired(ctx context.Context) (int, error)

	// Available returns the current available quantity for a variant.
	Available(ctx context.Context, variantID int64) (int, error)
}

var (
	// ErrUnknownVariant is returned when no stock record exists.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// InsufficientStockError names the variant that could not be reserved so
// the caller can surface it.
type InsufficientStockError struct {
	VariantID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d: available=%d, requested=%d",
		e.VariantID, e.Available, e.Requested)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}
