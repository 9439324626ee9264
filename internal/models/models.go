package models

import "time"

// Variant represents a sellable product variant. Price is in cents.
type Variant struct {
	ID        int64      `db:"id" json:"id"`
	ProductID int64      `db:"product_id" json:"product_id"`
	SKU       string     `db:"sku" json:"sku"`
	Name      string     `db:"name" json:"name"`
	Price     int64      `db:"price" json:"price"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the variant is still sellable.
func (v *Variant) Active() bool {
	return v.DeletedAt == nil
}

// StockRecord tracks availability per variant. available never goes
// negative; available + reserved never exceeds the last known total.
type StockRecord struct {
	VariantID int64     `db:"variant_id" json:"variant_id"`
	Available int       `db:"available" json:"available"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a persisted row in a user's shopping cart.
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	VariantID int64     `db:"variant_id" json:"variant_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartLine is one line of a cart snapshot. UnitPrice is captured once at
// snapshot time and never re-read during the attempt.
type CartLine struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Subtotal returns quantity * unit price.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Reservation states
const (
	ReservationStateActive    = "ACTIVE"
	ReservationStateCommitted = "COMMITTED"
	ReservationStateReleased  = "RELEASED"
)

// Reservation is a time-bounded hold on stock. It is created by a
// successful reserve and consumed by exactly one commit or release;
// the sweep releases holds whose ExpiresAt has passed.
type Reservation struct {
	ID         string    `db:"id" json:"id"`
	CheckoutID string    `db:"checkout_id" json:"checkout_id"`
	VariantID  int64     `db:"variant_id" json:"variant_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	State      string    `db:"state" json:"state"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID            int64  `db:"id" json:"id"`
	OrderNumber   string `db:"order_number" json:"order_number"`
	UserID        int64  `db:"user_id" json:"user_id"`
	TotalAmount   int64  `db:"total_amount" json:"total_amount"`
	Status        string `db:"status" json:"status"`
	PaymentStatus string `db:"payment_status" json:"payment_status"`
	PaymentMethod string `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRef    string `db:"payment_ref" json:"payment_ref,omitempty"`
	// FailureKind is set on cancelled orders only, so a replayed
	// idempotency key can report the original failure.
	FailureKind     string    `db:"failure_kind" json:"failure_kind,omitempty"`
	ShippingAddress string    `db:"shipping_address" json:"shipping_address,omitempty"`
	IdempotencyKey  string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one line of a committed or cancelled order
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	VariantID int64 `db:"variant_id" json:"variant_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// PaymentAttempt is an append-only record of one authorization call,
// one row per checkout attempt regardless of outcome.
type PaymentAttempt struct {
	ID             int64     `db:"id" json:"id"`
	TransactionRef string    `db:"transaction_ref" json:"transaction_ref"`
	Amount         int64     `db:"amount" json:"amount"`
	Outcome        string    `db:"outcome" json:"outcome"`
	Reason         string    `db:"reason" json:"reason,omitempty"`
	ProcessedAt    time.Time `db:"processed_at" json:"processed_at"`
}

// Reconciliation flags a payment that was approved but has no committed
// order behind it. These rows are worked off manually or by a later
// refund process; the checkout core only records them.
type Reconciliation struct {
	ID         int64     `db:"id" json:"id"`
	CheckoutID string    `db:"checkout_id" json:"checkout_id"`
	PaymentRef string    `db:"payment_ref" json:"payment_ref"`
	Amount     int64     `db:"amount" json:"amount"`
	Reason     string    `db:"reason" json:"reason"`
	Resolved   bool      `db:"resolved" json:"resolved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditEntry mirrors the storefront's audit trail for order actions.
type AuditEntry struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// Payment attempt outcomes
const (
	PaymentOutcomeApproved = "APPROVED"
	PaymentOutcomeDeclined = "DECLINED"
	PaymentOutcomeTimedOut = "TIMED_OUT"
)

// Audit actions
const (
	AuditOrderConfirmed      = "ORDER_CONFIRMED"
	AuditOrderCancelled      = "ORDER_CANCELLED"
	AuditReconciliationAdded = "RECONCILIATION_REQUIRED"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
