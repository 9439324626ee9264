package service

import (
	"context"
	"time"

	"checkout-service/internal/ledger"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// failureStore is the slice of the store compensation writes to.
type failureStore interface {
	CreateCancelledOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	CreateReconciliation(ctx context.Context, rec *models.Reconciliation) error
}

// Compensator undoes partial work after a checkout aborts: it releases
// every outstanding reservation and records the failed attempt so the
// user sees a cancelled order rather than silence. All of its steps are
// idempotent because crash-recovery sweeps may call it redundantly.
type Compensator struct {
	ledger    ledger.Ledger
	orders    failureStore
	publisher Publisher
	logger    *zap.Logger
}

// NewCompensator creates a new compensation handler
func NewCompensator(stockLedger ledger.Ledger, orders failureStore, publisher Publisher) *Compensator {
	return &Compensator{
		ledger:    stockLedger,
		orders:    orders,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Compensate rolls back one failed checkout attempt. Release errors are
// logged, not returned: the expiry sweep is the backstop for any token
// that could not be released here.
func (c *Compensator) Compensate(ctx context.Context, attempt *CheckoutAttempt, kind ErrorKind, reason string) {
	ctx, span := util.StartSpan(ctx, "Compensator.Compensate")
	defer span.End()

	c.logger.Warn("Compensating failed checkout",
		zap.String("checkout_id", attempt.ID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason))

	for _, token := range attempt.Tokens {
		if err := c.ledger.Release(ctx, token); err != nil {
			c.logger.Error("Failed to release reservation",
				zap.String("checkout_id", attempt.ID),
				zap.String("reservation_id", token.ID),
				zap.Int64("variant_id", token.VariantID),
				zap.Error(err))
			continue
		}
		util.ReservationsReleasedTotal.Inc()
	}

	order := c.recordCancelledOrder(ctx, attempt, kind)

	if kind == ErrorKindCommitError && attempt.PaymentRef != "" {
		c.recordReconciliation(ctx, attempt, reason)
	}

	if c.publisher != nil && order != nil {
		event := &models.OrderCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCancelled,
				Timestamp: time.Now(),
			},
			OrderID:    order.ID,
			UserID:     attempt.UserID,
			CheckoutID: attempt.ID,
			Reason:     reason,
		}
		if err := c.publisher.PublishOrderCancelled(ctx, event); err != nil {
			c.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}
}

// recordCancelledOrder writes the failure record. The attempt's
// idempotency key is reused, so a redundant compensation run hits the
// unique constraint instead of writing a second record.
func (c *Compensator) recordCancelledOrder(ctx context.Context, attempt *CheckoutAttempt, kind ErrorKind) *models.Order {
	paymentStatus := models.PaymentStatusPending
	switch kind {
	case ErrorKindPaymentDeclined, ErrorKindTimeout:
		paymentStatus = models.PaymentStatusFailed
	case ErrorKindCommitError:
		// Money may have moved; the reconciliation row carries that
		// fact, the order record stays PENDING rather than lying
		// either way.
		paymentStatus = models.PaymentStatusPending
	}

	order := &models.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          attempt.UserID,
		TotalAmount:     attempt.TotalAmount,
		Status:          models.OrderStatusCancelled,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   attempt.PaymentMethod,
		ShippingAddress: attempt.ShippingAddress,
		PaymentRef:      attempt.PaymentRef,
		FailureKind:     string(kind),
		IdempotencyKey:  attempt.IdempotencyKey,
	}

	items := make([]models.OrderItem, len(attempt.Lines))
	for i, line := range attempt.Lines {
		items[i] = models.OrderItem{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	if err := c.orders.CreateCancelledOrder(ctx, order, items); err != nil {
		c.logger.Error("Failed to record cancelled order",
			zap.String("checkout_id", attempt.ID),
			zap.Error(err))
		return nil
	}
	return order
}

// recordReconciliation flags an approved payment with no committed
// order. These require manual or async refund handling; the checkout
// core never invents a refund call.
func (c *Compensator) recordReconciliation(ctx context.Context, attempt *CheckoutAttempt, reason string) {
	rec := &models.Reconciliation{
		CheckoutID: attempt.ID,
		PaymentRef: attempt.PaymentRef,
		Amount:     attempt.TotalAmount,
		Reason:     reason,
	}
	if err := c.orders.CreateReconciliation(ctx, rec); err != nil {
		c.logger.Error("Failed to record reconciliation",
			zap.String("checkout_id", attempt.ID),
			zap.String("payment_ref", attempt.PaymentRef),
			zap.Error(err))
		return
	}

	util.ReconciliationsTotal.Inc()
	c.logger.Error("Payment approved but order not committed, reconciliation required",
		zap.String("checkout_id", attempt.ID),
		zap.String("payment_ref", attempt.PaymentRef),
		zap.Int64("amount", attempt.TotalAmount))

	if c.publisher != nil {
		event := &models.ReconciliationRequiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeReconciliationRequired,
				Timestamp: time.Now(),
			},
			CheckoutID: attempt.ID,
			UserID:     attempt.UserID,
			PaymentRef: attempt.PaymentRef,
			Amount:     attempt.TotalAmount,
			Reason:     reason,
		}
		if err := c.publisher.PublishReconciliationRequired(ctx, event); err != nil {
			c.logger.Error("Failed to publish ReconciliationRequired event", zap.Error(err))
		}
	}
}
