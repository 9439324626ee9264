package models

import "time"

// Event types
const (
	EventTypeOrderConfirmed         = "ORDER_CONFIRMED"
	EventTypeOrderCancelled         = "ORDER_CANCELLED"
	EventTypeReconciliationRequired = "RECONCILIATION_REQUIRED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent published after a checkout commits
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount int64           `json:"total_amount"`
	PaymentRef  string          `json:"payment_ref"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published after a failed attempt is compensated
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	UserID     int64  `json:"user_id"`
	CheckoutID string `json:"checkout_id"`
	Reason     string `json:"reason"`
}

// ReconciliationRequiredEvent published when an approved payment has no
// committed order behind it (commit failed after authorization).
type ReconciliationRequiredEvent struct {
	BaseEvent
	CheckoutID string `json:"checkout_id"`
	UserID     int64  `json:"user_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
