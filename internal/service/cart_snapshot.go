package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CartSnapshot is the cart state captured at a single point in time.
// Unit prices are frozen here and never re-fetched during the attempt.
type CartSnapshot struct {
	Lines       []models.CartLine `json:"lines"`
	TotalAmount int64             `json:"total_amount"`
	CapturedAt  time.Time         `json:"captured_at"`
}

// cartStore is the slice of the store the reader needs.
type cartStore interface {
	GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error)
	GetVariantsByIDs(ctx context.Context, ids []int64) ([]models.Variant, error)
}

// CartReader resolves a user's cart into priced lines. It does not
// reserve stock; reservation is a separate, auditable step.
type CartReader struct {
	store  cartStore
	logger *zap.Logger
}

// NewCartReader creates a new cart reader
func NewCartReader(store cartStore) *CartReader {
	return &CartReader{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Snapshot reads the cart and resolves every line to an active, priced
// variant. Fails with ErrEmptyCart when there are no lines and with an
// error when any variant has been soft-deleted since it was added.
func (r *CartReader) Snapshot(ctx context.Context, userID int64) (*CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartReader.Snapshot")
	defer span.End()

	items, err := r.store.GetCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.VariantID
	}

	variants, err := r.store.GetVariantsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variants: %w", err)
	}

	byID := make(map[int64]*models.Variant, len(variants))
	for i := range variants {
		byID[variants[i].ID] = &variants[i]
	}

	snapshot := &CartSnapshot{
		Lines:      make([]models.CartLine, 0, len(items)),
		CapturedAt: time.Now(),
	}

	for _, item := range items {
		variant, ok := byID[item.VariantID]
		if !ok {
			return nil, fmt.Errorf("variant not found: %d", item.VariantID)
		}
		if !variant.Active() {
			return nil, fmt.Errorf("variant %d is no longer available", item.VariantID)
		}

		line := models.CartLine{
			VariantID: variant.ID,
			Quantity:  item.Quantity,
			UnitPrice: variant.Price,
		}
		snapshot.Lines = append(snapshot.Lines, line)
		snapshot.TotalAmount += line.Subtotal()
	}

	r.logger.Debug("Cart snapshot captured",
		zap.Int64("user_id", userID),
		zap.Int("lines", len(snapshot.Lines)),
		zap.Int64("total_amount", snapshot.TotalAmount))

	return snapshot, nil
}
