package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CommitOrderTx writes a confirmed order as one atomic unit: the order
// header, its lines, the conversion of every reservation into a
// permanent stock debit, and the removal of the originating cart rows.
// If any sub-step fails the transaction rolls back and no partial row
// is left behind.
func (s *Store) CommitOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, tokenIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (order_number, user_id, total_amount, status, payment_status, payment_method, payment_ref, failure_kind, shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.TotalAmount,
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.PaymentRef, order.FailureKind, order.ShippingAddress,
		order.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID,
			`INSERT INTO order_items (order_id, variant_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			items[i].OrderID, items[i].VariantID, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	for _, tokenID := range tokenIDs {
		if err := commitReservationLocked(ctx, tx, tokenID); err != nil {
			return fmt.Errorf("failed to commit reservation %s: %w", tokenID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1", order.UserID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return tx.Commit()
}

// CreateCancelledOrder records a failed checkout attempt so the user
// sees a consistent failure record. No stock is touched here; releases
// go through the ledger.
func (s *Store) CreateCancelledOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (order_number, user_id, total_amount, status, payment_status, payment_method, payment_ref, failure_kind, shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.TotalAmount,
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.PaymentRef, order.FailureKind, order.ShippingAddress,
		order.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert cancelled order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID,
			`INSERT INTO order_items (order_id, variant_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			items[i].OrderID, items[i].VariantID, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// CreatePaymentAttempt appends a payment attempt record. The log is
// append-only; attempts are never updated after the fact.
func (s *Store) CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (transaction_ref, amount, outcome, reason, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.db.GetContext(ctx, &attempt.ID, query,
		attempt.TransactionRef, attempt.Amount, attempt.Outcome,
		attempt.Reason, attempt.ProcessedAt)
}

// GetPaymentAttemptsByRef retrieves the attempt log for a transaction ref
func (s *Store) GetPaymentAttemptsByRef(ctx context.Context, ref string) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := s.db.SelectContext(ctx, &attempts,
		"SELECT * FROM payment_attempts WHERE transaction_ref = $1 ORDER BY processed_at", ref)
	return attempts, err
}

// CreateReconciliation records an approved payment with no committed
// order behind it.
func (s *Store) CreateReconciliation(ctx context.Context, rec *models.Reconciliation) error {
	query := `
		INSERT INTO reconciliations (checkout_id, payment_ref, amount, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, rec, query,
		rec.CheckoutID, rec.PaymentRef, rec.Amount, rec.Reason)
}

// CreateAuditEntry appends an audit log row
func (s *Store) CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (user_id, action, details)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.UserID, entry.Action, entry.Details)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
