package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/ledger"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	ledger *ledger.MemoryLedger
	orders *mockOrderStore
	auth   *mockAuthorizer
	pub    *mockPublisher
	svc    *CheckoutService
}

func newCheckoutFixture(snap *CartSnapshot, snapErr error, results ...*PaymentResult) *checkoutFixture {
	memLedger := ledger.NewMemoryLedger(time.Minute)
	orders := newMockOrderStore()
	auth := &mockAuthorizer{results: results}
	pub := &mockPublisher{}
	compensator := NewCompensator(memLedger, orders, pub)

	svc := NewCheckoutService(
		&mockSnapshotter{snapshot: snap, err: snapErr},
		memLedger, auth, orders, compensator, pub,
		time.Second, time.Second)

	return &checkoutFixture{
		ledger: memLedger,
		orders: orders,
		auth:   auth,
		pub:    pub,
		svc:    svc,
	}
}

func oneLineSnapshot(variantID int64, quantity int, unitPrice int64) *CartSnapshot {
	line := models.CartLine{VariantID: variantID, Quantity: quantity, UnitPrice: unitPrice}
	return &CartSnapshot{
		Lines:       []models.CartLine{line},
		TotalAmount: line.Subtotal(),
		CapturedAt:  time.Now(),
	}
}

func TestCheckout_Success(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, approved())
	fx.ledger.SetStock(7, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:          42,
		PaymentMethod:   "card",
		ShippingAddress: "1 Main St",
	})

	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Order)
	assert.Equal(t, models.OrderStatusConfirmed, resp.Order.Status)
	assert.Equal(t, models.PaymentStatusPaid, resp.Order.PaymentStatus)
	assert.Equal(t, int64(10000), resp.Order.TotalAmount)
	assert.Equal(t, "1 Main St", resp.Order.ShippingAddress)
	assert.NotEmpty(t, resp.Order.PaymentRef)

	// The permanent debit must be settled in the ledger, not just the
	// order store: available and reserved both end at zero.
	available, err := fx.ledger.Available(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	assert.Equal(t, 0, fx.ledger.Reserved(7))

	assert.Len(t, fx.pub.confirmed, 1)
	assert.Empty(t, fx.pub.cancelled)
}

func TestCheckout_EmptyCart(t *testing.T) {
	fx := newCheckoutFixture(nil, ErrEmptyCart, approved())

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindEmptyCart, resp.ErrorKind)

	// Nothing was reserved, so nothing needed compensating.
	assert.Empty(t, fx.orders.cancelled)
	assert.Empty(t, fx.auth.intents)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 2, 5000), nil, approved())
	fx.ledger.SetStock(7, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindInsufficientStock, resp.ErrorKind)
	assert.Equal(t, int64(7), resp.VariantID)

	// Stock is untouched and payment was never attempted.
	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, 1, available)
	assert.Empty(t, fx.auth.intents)
	assert.Len(t, fx.orders.cancelled, 1)
}

func TestCheckout_PartialReserveReleasesEarlierLines(t *testing.T) {
	lineA := models.CartLine{VariantID: 1, Quantity: 1, UnitPrice: 1000}
	lineB := models.CartLine{VariantID: 2, Quantity: 3, UnitPrice: 2000}
	snap := &CartSnapshot{
		Lines:       []models.CartLine{lineA, lineB},
		TotalAmount: lineA.Subtotal() + lineB.Subtotal(),
		CapturedAt:  time.Now(),
	}

	fx := newCheckoutFixture(snap, nil, approved())
	fx.ledger.SetStock(1, 5)
	fx.ledger.SetStock(2, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindInsufficientStock, resp.ErrorKind)
	assert.Equal(t, int64(2), resp.VariantID)

	// The reservation taken on variant 1 must have been released.
	available, _ := fx.ledger.Available(context.Background(), 1)
	assert.Equal(t, 5, available)
	assert.Equal(t, 0, fx.ledger.Reserved(1))
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, approved())
	fx.ledger.SetStock(7, 1)

	var wg sync.WaitGroup
	responses := make([]*CheckoutResponse, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
				UserID:        int64(100 + i),
				PaymentMethod: "card",
			})
			require.NoError(t, err)
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, resp := range responses {
		if resp.Success {
			successes++
		} else {
			assert.Equal(t, ErrorKindInsufficientStock, resp.ErrorKind)
			assert.Equal(t, int64(7), resp.VariantID)
		}
	}
	assert.Equal(t, 1, successes)

	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, 0, available)
	assert.Equal(t, 0, fx.ledger.Reserved(7))
}

func TestCheckout_PaymentDeclined(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, declined("card_declined"))
	fx.ledger.SetStock(7, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindPaymentDeclined, resp.ErrorKind)
	assert.Equal(t, "card_declined", resp.Reason)

	// Full release: stock is exactly its pre-attempt value.
	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, 1, available)
	assert.Equal(t, 0, fx.ledger.Reserved(7))

	require.Len(t, fx.orders.cancelled, 1)
	assert.Equal(t, models.OrderStatusCancelled, fx.orders.cancelled[0].Status)
	assert.Equal(t, models.PaymentStatusFailed, fx.orders.cancelled[0].PaymentStatus)
	assert.Empty(t, fx.orders.reconciliations)
	assert.Len(t, fx.pub.cancelled, 1)
}

func TestCheckout_CommitFailureFlagsReconciliation(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, approved())
	fx.ledger.SetStock(7, 1)
	fx.orders.commitErr = assert.AnError

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindCommitError, resp.ErrorKind)

	// Stock is released even though the payment went through.
	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, 1, available)

	require.Len(t, fx.orders.reconciliations, 1)
	rec := fx.orders.reconciliations[0]
	assert.NotEmpty(t, rec.PaymentRef)
	assert.Equal(t, int64(10000), rec.Amount)
	assert.Len(t, fx.pub.reconciliations, 1)
}

func TestCheckout_PaymentTimeoutRetriesOnceWithSameIntent(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, timedOut(), approved())
	fx.ledger.SetStock(7, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)

	require.Len(t, fx.auth.intents, 2)
	assert.Equal(t, fx.auth.intents[0], fx.auth.intents[1])
}

func TestCheckout_PaymentTimeoutTwiceFails(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, timedOut(), timedOut())
	fx.ledger.SetStock(7, 1)

	resp, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        42,
		PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindTimeout, resp.ErrorKind)
	assert.Len(t, fx.auth.intents, 2)

	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, 1, available)
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, approved())
	fx.ledger.SetStock(7, 5)

	first, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:         42,
		PaymentMethod:  "card",
		IdempotencyKey: "idem-123",
	})
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, "idem-123", first.Order.IdempotencyKey)
	availableAfterFirst, _ := fx.ledger.Available(context.Background(), 7)

	second, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:         42,
		PaymentMethod:  "card",
		IdempotencyKey: "idem-123",
	})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	// No new reservation was taken.
	available, _ := fx.ledger.Available(context.Background(), 7)
	assert.Equal(t, availableAfterFirst, available)
	assert.Len(t, fx.auth.intents, 1)
}

func TestCheckout_IdempotentReplayReportsOriginalFailure(t *testing.T) {
	fx := newCheckoutFixture(oneLineSnapshot(7, 1, 10000), nil, declined("card_declined"))
	fx.ledger.SetStock(7, 1)

	first, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:         42,
		PaymentMethod:  "card",
		IdempotencyKey: "idem-declined",
	})
	require.NoError(t, err)
	require.False(t, first.Success)
	assert.Equal(t, ErrorKindPaymentDeclined, first.ErrorKind)

	second, err := fx.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:         42,
		PaymentMethod:  "card",
		IdempotencyKey: "idem-declined",
	})
	require.NoError(t, err)
	assert.False(t, second.Success)

	// The replay reports the original failure, not a generic commit error.
	assert.Equal(t, ErrorKindPaymentDeclined, second.ErrorKind)
	assert.Len(t, fx.auth.intents, 1)
}
