package ledger

import (
	"context"
	"sync"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger guarded by a single mutex.
// It backs tests and single-node deployments without Redis/Postgres.
type MemoryLedger struct {
	mu     sync.Mutex
	stock  map[int64]*models.StockRecord
	tokens map[string]*memToken
	ttl    time.Duration
	now    func() time.Time
}

type memToken struct {
	res   models.Reservation
	state string
}

// NewMemoryLedger creates an empty in-memory ledger. Reservations
// expire after ttl.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		stock:  make(map[int64]*models.StockRecord),
		tokens: make(map[string]*memToken),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetStock sets the available quantity for a variant, replacing any
// previous record.
func (l *MemoryLedger) SetStock(variantID int64, available int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[variantID] = &models.StockRecord{
		VariantID: variantID,
		Available: available,
		UpdatedAt: l.now(),
	}
}

// Reserve implements Ledger. The whole check-and-move runs under the
// ledger mutex, so two reservations can never both pass the same
// availability check.
func (l *MemoryLedger) Reserve(_ context.Context, checkoutID string, variantID int64, quantity int) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[variantID]
	if !ok {
		return nil, ErrUnknownVariant
	}
	if rec.Available < quantity {
		return nil, &InsufficientStockError{
			VariantID: variantID,
			Available: rec.Available,
			Requested: quantity,
		}
	}

	rec.Available -= quantity
	rec.Reserved += quantity
	rec.UpdatedAt = l.now()

	res := models.Reservation{
		ID:         uuid.New().String(),
		CheckoutID: checkoutID,
		VariantID:  variantID,
		Quantity:   quantity,
		State:      models.ReservationStateActive,
		ExpiresAt:  l.now().Add(l.ttl),
		CreatedAt:  l.now(),
	}
	l.tokens[res.ID] = &memToken{res: res, state: models.ReservationStateActive}

	out := res
	return &out, nil
}

// Commit implements Ledger. Unknown, committed and released tokens are
// all no-ops so redundant calls cannot double-debit.
func (l *MemoryLedger) Commit(_ context.Context, token *models.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tokens[token.ID]
	if !ok || t.state != models.ReservationStateActive {
		return nil
	}

	rec := l.stock[t.res.VariantID]
	rec.Reserved -= t.res.Quantity
	rec.UpdatedAt = l.now()
	t.state = models.ReservationStateCommitted
	return nil
}

// Release implements Ledger. Idempotent for already-released or
// already-committed tokens.
func (l *MemoryLedger) Release(_ context.Context, token *models.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(token.ID)
	return nil
}

func (l *MemoryLedger) releaseLocked(tokenID string) bool {
	t, ok := l.tokens[tokenID]
	if !ok || t.state != models.ReservationStateActive {
		return false
	}

	rec := l.stock[t.res.VariantID]
	rec.Available += t.res.Quantity
	rec.Reserved -= t.res.Quantity
	rec.UpdatedAt = l.now()
	t.state = models.ReservationStateReleased
	return true
}

// SweepExpired implements Ledger.
func (l *MemoryLedger) SweepExpired(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	count := 0
	for id, t := range l.tokens {
		if t.state == models.ReservationStateActive && t.res.ExpiresAt.Before(now) {
			if l.releaseLocked(id) {
				count++
			}
		}
	}
	return count, nil
}

// Available implements Ledger.
func (l *MemoryLedger) Available(_ context.Context, variantID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[variantID]
	if !ok {
		return 0, ErrUnknownVariant
	}
	return rec.Available, nil
}

// Reserved returns the currently reserved quantity for a variant.
func (l *MemoryLedger) Reserved(variantID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[variantID]
	if !ok {
		return 0
	}
	return rec.Reserved
}
