package service

import (
	"context"
	"fmt"
	"sync"

	"checkout-service/internal/models"
)

// mockSnapshotter implements snapshotter for testing
type mockSnapshotter struct {
	snapshot *CartSnapshot
	err      error
}

func (m *mockSnapshotter) Snapshot(_ context.Context, _ int64) (*CartSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

// mockAuthorizer returns scripted results in order; the last result
// repeats once the script runs out. It records every intentRef seen.
type mockAuthorizer struct {
	mu      sync.Mutex
	results []*PaymentResult
	err     error
	intents []string
}

func (m *mockAuthorizer) Authorize(_ context.Context, _ int64, _ string, intentRef string) (*PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.intents = append(m.intents, intentRef)
	if m.err != nil {
		return nil, m.err
	}

	idx := len(m.intents) - 1
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	result := *m.results[idx]
	result.TransactionRef = intentRef
	return &result, nil
}

func approved() *PaymentResult {
	return &PaymentResult{Outcome: models.PaymentOutcomeApproved}
}

func declined(reason string) *PaymentResult {
	return &PaymentResult{Outcome: models.PaymentOutcomeDeclined, Reason: reason}
}

func timedOut() *PaymentResult {
	return &PaymentResult{Outcome: models.PaymentOutcomeTimedOut, Reason: "gateway timed out"}
}

// mockOrderStore implements checkoutStore and failureStore. It leaves
// the reservations alone so tests observe the ledger settling that the
// orchestrator performs after a successful commit.
type mockOrderStore struct {
	mu        sync.Mutex
	commitErr error

	nextID          int64
	committed       []*models.Order
	cancelled       []*models.Order
	reconciliations []*models.Reconciliation
	byIdemKey       map[string]*models.Order
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		byIdemKey: make(map[string]*models.Order),
	}
}

func (m *mockOrderStore) CommitOrderTx(_ context.Context, order *models.Order, _ []models.OrderItem, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitErr != nil {
		return m.commitErr
	}

	m.nextID++
	order.ID = m.nextID
	m.committed = append(m.committed, order)
	m.byIdemKey[order.IdempotencyKey] = order
	return nil
}

func (m *mockOrderStore) CreateCancelledOrder(_ context.Context, order *models.Order, _ []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	order.ID = m.nextID
	m.cancelled = append(m.cancelled, order)
	m.byIdemKey[order.IdempotencyKey] = order
	return nil
}

func (m *mockOrderStore) CreateReconciliation(_ context.Context, rec *models.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconciliations = append(m.reconciliations, rec)
	return nil
}

func (m *mockOrderStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.byIdemKey[key], nil
}

func (m *mockOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, order := range append(append([]*models.Order{}, m.committed...), m.cancelled...) {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, fmt.Errorf("order not found: %d", id)
}

func (m *mockOrderStore) GetOrderItemsByOrderID(_ context.Context, _ int64) ([]models.OrderItem, error) {
	return nil, nil
}

func (m *mockOrderStore) GetOrdersByUserID(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []models.Order
	for _, order := range append(append([]*models.Order{}, m.committed...), m.cancelled...) {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// mockPublisher implements Publisher for testing
type mockPublisher struct {
	mu              sync.Mutex
	confirmed       []*models.OrderConfirmedEvent
	cancelled       []*models.OrderCancelledEvent
	reconciliations []*models.ReconciliationRequiredEvent
}

func (m *mockPublisher) PublishOrderConfirmed(_ context.Context, event *models.OrderConfirmedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = append(m.confirmed, event)
	return nil
}

func (m *mockPublisher) PublishOrderCancelled(_ context.Context, event *models.OrderCancelledEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, event)
	return nil
}

func (m *mockPublisher) PublishReconciliationRequired(_ context.Context, event *models.ReconciliationRequiredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations = append(m.reconciliations, event)
	return nil
}

// mockAttemptLog implements attemptLog for testing
type mockAttemptLog struct {
	mu       sync.Mutex
	attempts []*models.PaymentAttempt
}

func (m *mockAttemptLog) CreatePaymentAttempt(_ context.Context, attempt *models.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}
