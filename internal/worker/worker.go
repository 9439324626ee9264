package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/ledger"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// auditStore is the slice of the store the audit worker needs.
type auditStore interface {
	CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AuditWorker consumes terminal checkout events and appends audit log
// rows. Event processing is idempotent via the processed_events table,
// so redelivered messages do not duplicate entries.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        auditStore
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, store auditStore) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderConfirmed(w.handleOrderConfirmed)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	eventHandler.OnReconciliationRequired(w.handleReconciliationRequired)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}

func (w *AuditWorker) handleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	return w.audit(ctx, event.BaseEvent, event.UserID, models.AuditOrderConfirmed, map[string]interface{}{
		"order_id":     event.OrderID,
		"order_number": event.OrderNumber,
		"total_amount": event.TotalAmount,
		"payment_ref":  event.PaymentRef,
	})
}

func (w *AuditWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.audit(ctx, event.BaseEvent, event.UserID, models.AuditOrderCancelled, map[string]interface{}{
		"order_id":    event.OrderID,
		"checkout_id": event.CheckoutID,
		"reason":      event.Reason,
	})
}

func (w *AuditWorker) handleReconciliationRequired(ctx context.Context, event *models.ReconciliationRequiredEvent) error {
	return w.audit(ctx, event.BaseEvent, event.UserID, models.AuditReconciliationAdded, map[string]interface{}{
		"checkout_id": event.CheckoutID,
		"payment_ref": event.PaymentRef,
		"amount":      event.Amount,
		"reason":      event.Reason,
	})
}

func (w *AuditWorker) audit(ctx context.Context, base models.BaseEvent, userID int64, action string, details map[string]interface{}) error {
	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	entry := &models.AuditEntry{
		UserID:  userID,
		Action:  action,
		Details: string(detailsJSON),
	}
	if err := w.store.CreateAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// SweepWorker periodically releases expired reservations. It protects
// against orchestrator crashes that never reached commit or release.
type SweepWorker struct {
	ledger   ledger.Ledger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweepWorker creates a new reservation sweeper
func NewSweepWorker(stockLedger ledger.Ledger, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		ledger:   stockLedger,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *SweepWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reservation sweeper",
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reservation sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			count, err := w.ledger.SweepExpired(ctx)
			if err != nil {
				w.logger.Error("Reservation sweep failed", zap.Error(err))
				continue
			}
			if count > 0 {
				w.logger.Info("Swept expired reservations", zap.Int("count", count))
			}
		}
	}
}
