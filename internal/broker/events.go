package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderConfirmed publishes an OrderConfirmed event
func (ep *EventPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderCancelled publishes an OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReconciliationRequired publishes a ReconciliationRequired event
func (ep *EventPublisher) PublishReconciliationRequired(ctx context.Context, event *models.ReconciliationRequiredEvent) error {
	key := fmt.Sprintf("checkout-%s", event.CheckoutID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming order events to registered handlers
type EventHandler struct {
	onOrderConfirmed         func(context.Context, *models.OrderConfirmedEvent) error
	onOrderCancelled         func(context.Context, *models.OrderCancelledEvent) error
	onReconciliationRequired func(context.Context, *models.ReconciliationRequiredEvent) error
	logger                   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderConfirmed registers a handler for OrderConfirmed events
func (eh *EventHandler) OnOrderConfirmed(handler func(context.Context, *models.OrderConfirmedEvent) error) {
	eh.onOrderConfirmed = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// OnReconciliationRequired registers a handler for ReconciliationRequired events
func (eh *EventHandler) OnReconciliationRequired(handler func(context.Context, *models.ReconciliationRequiredEvent) error) {
	eh.onReconciliationRequired = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderConfirmed:
		if eh.onOrderConfirmed != nil {
			var event models.OrderConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderConfirmed event: %w", err)
			}
			return eh.onOrderConfirmed(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypeReconciliationRequired:
		if eh.onReconciliationRequired != nil {
			var event models.ReconciliationRequiredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconciliationRequired event: %w", err)
			}
			return eh.onReconciliationRequired(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
