package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/ledger"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutRequest represents one incoming checkout call. UserID comes
// from the authentication layer and is trusted as-is.
type CheckoutRequest struct {
	UserID          int64  `json:"user_id"`
	PaymentMethod   string `json:"payment_method" binding:"required"`
	ShippingAddress string `json:"shipping_address" binding:"required"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// CheckoutResponse is the outcome surfaced to the API layer.
type CheckoutResponse struct {
	Success   bool          `json:"success"`
	Order     *models.Order `json:"order,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	VariantID int64         `json:"variant_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// CheckoutAttempt carries the state of one attempt end to end. It lives
// only for the duration of the call; a retry is a fresh attempt with
// fresh reservation tokens.
type CheckoutAttempt struct {
	ID              string
	UserID          int64
	PaymentMethod   string
	ShippingAddress string
	IdempotencyKey  string
	Lines           []models.CartLine
	Tokens          []*models.Reservation
	TotalAmount     int64
	PaymentRef      string
	State           models.CheckoutState
}

// snapshotter reads a cart at a single point in time.
type snapshotter interface {
	Snapshot(ctx context.Context, userID int64) (*CartSnapshot, error)
}

// checkoutStore is the slice of the store the orchestrator needs.
type checkoutStore interface {
	CommitOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, tokenIDs []string) error
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
}

// Publisher publishes terminal checkout events.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishReconciliationRequired(ctx context.Context, event *models.ReconciliationRequiredEvent) error
}

// CheckoutService orchestrates a checkout attempt through the fixed
// sequence snapshot, reserve, authorize, commit. It is the only
// component that spans multiple storage operations; every failure past
// the reserve step goes through the compensator before returning.
type CheckoutService struct {
	carts       snapshotter
	ledger      ledger.Ledger
	payments    Authorizer
	orders      checkoutStore
	compensator *Compensator
	publisher   Publisher

	paymentTimeout time.Duration
	commitTimeout  time.Duration
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout orchestrator
func NewCheckoutService(
	carts snapshotter,
	stockLedger ledger.Ledger,
	payments Authorizer,
	orders checkoutStore,
	compensator *Compensator,
	publisher Publisher,
	paymentTimeout, commitTimeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		carts:          carts,
		ledger:         stockLedger,
		payments:       payments,
		orders:         orders,
		compensator:    compensator,
		publisher:      publisher,
		paymentTimeout: paymentTimeout,
		commitTimeout:  commitTimeout,
		logger:         util.GetLogger(),
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

// Checkout runs one attempt through the state machine. It never returns
// a failure while a reservation or an approved-but-uncommitted payment
// is still outstanding.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	util.CheckoutsStartedTotal.Inc()
	start := time.Now()
	defer func() {
		util.CheckoutDuration.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return responseForOrder(existing), nil
		}
	}

	attempt := &CheckoutAttempt{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		State:           models.CheckoutStateStart,
	}
	// The order row carries the caller's idempotency key so a replayed
	// request finds the prior outcome; without one, the attempt ID
	// stands in so redundant compensation stays idempotent too.
	attempt.IdempotencyKey = req.IdempotencyKey
	if attempt.IdempotencyKey == "" {
		attempt.IdempotencyKey = fmt.Sprintf("attempt:%s", attempt.ID)
	}

	s.logger.Info("Checkout started",
		zap.String("checkout_id", attempt.ID),
		zap.Int64("user_id", req.UserID))

	// Start -> Snapshotted
	snapshot, err := s.carts.Snapshot(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			// Nothing reserved yet, no compensation needed.
			return s.fail(attempt, ErrorKindEmptyCart, err.Error()), nil
		}
		return s.fail(attempt, kindForError(err, ErrorKindCommitError), err.Error()), nil
	}
	attempt.Lines = snapshot.Lines
	attempt.TotalAmount = snapshot.TotalAmount
	s.advance(attempt, models.CheckoutStateSnapshotted)

	// Snapshotted -> Reserved, first-come-first-served per line
	for _, line := range attempt.Lines {
		token, err := s.ledger.Reserve(ctx, attempt.ID, line.VariantID, line.Quantity)
		if err != nil {
			var stockErr *ledger.InsufficientStockError
			if errors.As(err, &stockErr) {
				util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
				s.compensate(ctx, attempt, ErrorKindInsufficientStock, err.Error())
				resp := s.fail(attempt, ErrorKindInsufficientStock, err.Error())
				resp.VariantID = stockErr.VariantID
				return resp, nil
			}
			util.ReservationsFailedTotal.WithLabelValues("error").Inc()
			kind := kindForError(err, ErrorKindCommitError)
			s.compensate(ctx, attempt, kind, err.Error())
			return s.fail(attempt, kind, err.Error()), nil
		}
		attempt.Tokens = append(attempt.Tokens, token)
		util.ReservationsTotal.Inc()
	}
	s.advance(attempt, models.CheckoutStateReserved)

	// Reserved -> Authorized. No stock lock is held here; the holds
	// are reservations, so other checkouts proceed against the
	// remaining availability while we wait on the gateway.
	result, err := s.authorize(ctx, attempt)
	if err != nil {
		kind := kindForError(err, ErrorKindTimeout)
		s.compensate(ctx, attempt, kind, err.Error())
		return s.fail(attempt, kind, err.Error()), nil
	}

	switch result.Outcome {
	case models.PaymentOutcomeApproved:
		attempt.PaymentRef = result.TransactionRef
		s.advance(attempt, models.CheckoutStateAuthorized)

	case models.PaymentOutcomeDeclined:
		s.compensate(ctx, attempt, ErrorKindPaymentDeclined, result.Reason)
		return s.fail(attempt, ErrorKindPaymentDeclined, result.Reason), nil

	case models.PaymentOutcomeTimedOut:
		s.compensate(ctx, attempt, ErrorKindTimeout, result.Reason)
		return s.fail(attempt, ErrorKindTimeout, result.Reason), nil

	default:
		reason := fmt.Sprintf("unknown payment outcome %q", result.Outcome)
		s.compensate(ctx, attempt, ErrorKindTimeout, reason)
		return s.fail(attempt, ErrorKindTimeout, reason), nil
	}

	// Authorized -> Committed
	// A failed or timed-out commit after authorization is its own
	// error kind: the charge cannot be undone synchronously, so it is
	// flagged for reconciliation rather than folded into Timeout.
	order, err := s.commit(ctx, attempt)
	if err != nil {
		s.compensate(ctx, attempt, ErrorKindCommitError, err.Error())
		return s.fail(attempt, ErrorKindCommitError, err.Error()), nil
	}
	s.advance(attempt, models.CheckoutStateCommitted)

	util.CheckoutsSucceededTotal.Inc()
	s.logger.Info("Checkout committed",
		zap.String("checkout_id", attempt.ID),
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", order.TotalAmount))

	s.publishConfirmed(ctx, attempt, order)

	return &CheckoutResponse{Success: true, Order: order}, nil
}

// authorize calls the gateway under its own deadline and retries a
// timed-out call exactly once, reusing the same charge intent so the
// gateway cannot charge twice.
func (s *CheckoutService) authorize(ctx context.Context, attempt *CheckoutAttempt) (*PaymentResult, error) {
	intentRef := fmt.Sprintf("PAY-%s", attempt.ID)

	result, err := s.authorizeOnce(ctx, attempt, intentRef)
	if err != nil {
		return nil, err
	}
	if result.Outcome != models.PaymentOutcomeTimedOut {
		return result, nil
	}

	s.logger.Warn("Payment authorization timed out, retrying once",
		zap.String("checkout_id", attempt.ID),
		zap.String("intent_ref", intentRef))

	return s.authorizeOnce(ctx, attempt, intentRef)
}

func (s *CheckoutService) authorizeOnce(ctx context.Context, attempt *CheckoutAttempt, intentRef string) (*PaymentResult, error) {
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	return s.payments.Authorize(payCtx, attempt.TotalAmount, attempt.PaymentMethod, intentRef)
}

// commit writes the confirmed order, its lines, the permanent stock
// debits and the cart cleanup as one transaction.
func (s *CheckoutService) commit(ctx context.Context, attempt *CheckoutAttempt) (*models.Order, error) {
	commitCtx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	order := &models.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          attempt.UserID,
		TotalAmount:     attempt.TotalAmount,
		Status:          models.OrderStatusConfirmed,
		PaymentStatus:   models.PaymentStatusPaid,
		PaymentMethod:   attempt.PaymentMethod,
		ShippingAddress: attempt.ShippingAddress,
		PaymentRef:      attempt.PaymentRef,
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

	tokenIDs := make([]string, len(attempt.Tokens))
	for i, token := range attempt.Tokens {
		tokenIDs[i] = token.ID
	}

	if err := s.orders.CommitOrderTx(commitCtx, order, items, tokenIDs); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	// The store converted the reservations inside its transaction, so
	// the database side of Commit is an idempotent no-op; this call
	// settles the reserved counts in the Redis mirror.
	for _, token := range attempt.Tokens {
		if err := s.ledger.Commit(ctx, token); err != nil {
			s.logger.Error("Failed to settle committed reservation",
				zap.String("checkout_id", attempt.ID),
				zap.String("reservation_id", token.ID),
				zap.Error(err))
		}
	}
	return order, nil
}

func (s *CheckoutService) publishConfirmed(ctx context.Context, attempt *CheckoutAttempt, order *models.Order) {
	if s.publisher == nil {
		return
	}

	items := make([]models.OrderItemData, len(attempt.Lines))
	for i, line := range attempt.Lines {
		items[i] = models.OrderItemData{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	event := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		PaymentRef:  order.PaymentRef,
		Items:       items,
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}
}

// compensate routes the attempt through the compensation handler. All
// failures past Reserved pass through here before being surfaced.
func (s *CheckoutService) compensate(ctx context.Context, attempt *CheckoutAttempt, kind ErrorKind, reason string) {
	s.advance(attempt, models.CheckoutStateCompensating)
	s.compensator.Compensate(ctx, attempt, kind, reason)
}

func (s *CheckoutService) advance(attempt *CheckoutAttempt, to models.CheckoutState) {
	if !models.CanTransitionTo(attempt.State, to) {
		// Programming error, not a runtime condition.
		s.logger.Error("Illegal checkout state transition",
			zap.String("checkout_id", attempt.ID),
			zap.String("from", attempt.State.String()),
			zap.String("to", to.String()))
	}
	attempt.State = to
}

func (s *CheckoutService) fail(attempt *CheckoutAttempt, kind ErrorKind, reason string) *CheckoutResponse {
	s.advance(attempt, models.CheckoutStateFailed)
	util.CheckoutsFailedTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Warn("Checkout failed",
		zap.String("checkout_id", attempt.ID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason))

	return &CheckoutResponse{
		Success:   false,
		ErrorKind: kind,
		Reason:    reason,
	}
}

func responseForOrder(order *models.Order) *CheckoutResponse {
	resp := &CheckoutResponse{Order: order}
	if order.Status == models.OrderStatusConfirmed {
		resp.Success = true
		return resp
	}

	resp.ErrorKind = ErrorKindCommitError
	if order.FailureKind != "" {
		resp.ErrorKind = ErrorKind(order.FailureKind)
	}
	resp.Reason = "previous attempt did not complete"
	return resp
}

// GetOrder retrieves an order with its items
func (s *CheckoutService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders retrieves a user's orders, newest first
func (s *CheckoutService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders.GetOrdersByUserID(ctx, userID)
}
