package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCartStore implements cartStore for testing
type mockCartStore struct {
	items    []models.CartItem
	variants []models.Variant
	itemsErr error
}

func (m *mockCartStore) GetCartItems(_ context.Context, _ int64) ([]models.CartItem, error) {
	return m.items, m.itemsErr
}

func (m *mockCartStore) GetVariantsByIDs(_ context.Context, _ []int64) ([]models.Variant, error) {
	return m.variants, nil
}

func TestSnapshot_CapturesPricesAndTotal(t *testing.T) {
	store := &mockCartStore{
		items: []models.CartItem{
			{UserID: 42, VariantID: 1, Quantity: 2},
			{UserID: 42, VariantID: 2, Quantity: 1},
		},
		variants: []models.Variant{
			{ID: 1, Price: 1000},
			{ID: 2, Price: 500},
		},
	}
	reader := NewCartReader(store)

	snap, err := reader.Snapshot(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, int64(2*1000+1*500), snap.TotalAmount)
	assert.Equal(t, int64(1000), snap.Lines[0].UnitPrice)
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestSnapshot_EmptyCart(t *testing.T) {
	reader := NewCartReader(&mockCartStore{})

	snap, err := reader.Snapshot(context.Background(), 42)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSnapshot_RejectsDeletedVariant(t *testing.T) {
	deletedAt := time.Now()
	store := &mockCartStore{
		items: []models.CartItem{
			{UserID: 42, VariantID: 1, Quantity: 1},
		},
		variants: []models.Variant{
			{ID: 1, Price: 1000, DeletedAt: &deletedAt},
		},
	}
	reader := NewCartReader(store)

	snap, err := reader.Snapshot(context.Background(), 42)
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer available")
}

func TestSnapshot_RejectsMissingVariant(t *testing.T) {
	store := &mockCartStore{
		items: []models.CartItem{
			{UserID: 42, VariantID: 9, Quantity: 1},
		},
	}
	reader := NewCartReader(store)

	snap, err := reader.Snapshot(context.Background(), 42)
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant not found")
}
