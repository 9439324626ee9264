package ledger

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLLedger persists stock in Postgres with a Redis fast path. The row
// lock in the database is the authority; Redis mirrors the counts so
// hopeless reservations are rejected without touching the database.
type SQLLedger struct {
	store  *store.Store
	redis  *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSQLLedger creates a ledger over the given store and Redis client.
// redis may be nil; the ledger then runs on the database alone.
func NewSQLLedger(st *store.Store, rd *redisclient.Client, ttl time.Duration) *SQLLedger {
	return &SQLLedger{
		store:  st,
		redis:  rd,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Reserve implements Ledger. Redis rejects shortfalls cheaply; on a
// Redis hit (or Redis trouble) the database transaction decides.
func (l *SQLLedger) Reserve(ctx context.Context, checkoutID string, variantID int64, quantity int) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "SQLLedger.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	redisHeld := false
	if l.redis != nil {
		status, err := l.redis.ReserveStock(ctx, variantID, quantity)
		switch {
		case err != nil:
			l.logger.Warn("Redis reserve failed, using database only",
				zap.Int64("variant_id", variantID),
				zap.Error(err))
		case status == redisclient.ReserveInsufficient:
			avail, _, gerr := l.redis.GetStock(ctx, variantID)
			if gerr != nil {
				avail = 0
			}
			return nil, &InsufficientStockError{
				VariantID: variantID,
				Available: avail,
				Requested: quantity,
			}
		case status == redisclient.ReserveOK:
			redisHeld = true
		}
		// ReserveUnknown: variant not mirrored, the database decides.
	}

	res := &models.Reservation{
		ID:         uuid.New().String(),
		CheckoutID: checkoutID,
		VariantID:  variantID,
		Quantity:   quantity,
		State:      models.ReservationStateActive,
		ExpiresAt:  time.Now().Add(l.ttl),
	}

	available, err := l.store.ReserveStockTx(ctx, res)
	if err != nil {
		if redisHeld {
			l.releaseRedis(variantID, quantity)
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			return nil, &InsufficientStockError{
				VariantID: variantID,
				Available: available,
				Requested: quantity,
			}
		}
		return nil, err
	}

	return res, nil
}

// Commit implements Ledger.
func (l *SQLLedger) Commit(ctx context.Context, token *models.Reservation) error {
	ctx, span := util.StartSpan(ctx, "SQLLedger.Commit")
	defer span.End()

	if err := l.store.CommitReservationTx(ctx, token.ID); err != nil {
		return err
	}

	if l.redis != nil {
		if err := l.redis.CommitStock(ctx, token.VariantID, token.Quantity); err != nil {
			l.logger.Error("Failed to commit stock in Redis",
				zap.Int64("variant_id", token.VariantID),
				zap.Error(err))
		}
	}
	return nil
}

// Release implements Ledger. The database decides whether the token is
// still ACTIVE; Redis is only adjusted when the release actually ran,
// which keeps redundant release calls from inflating the mirror.
func (l *SQLLedger) Release(ctx context.Context, token *models.Reservation) error {
	ctx, span := util.StartSpan(ctx, "SQLLedger.Release")
	defer span.End()

	released, err := l.store.ReleaseReservationTx(ctx, token.ID)
	if err != nil {
		return err
	}
	if released && l.redis != nil {
		if err := l.redis.ReleaseStock(ctx, token.VariantID, token.Quantity); err != nil {
			l.logger.Error("Failed to release stock in Redis",
				zap.Int64("variant_id", token.VariantID),
				zap.Error(err))
		}
	}
	return nil
}

// SweepExpired implements Ledger. Covers attempts whose orchestrator
// died before calling Commit or Release.
func (l *SQLLedger) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "SQLLedger.SweepExpired")
	defer span.End()

	expired, err := l.store.ExpiredReservations(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range expired {
		released, err := l.store.ReleaseReservationTx(ctx, expired[i].ID)
		if err != nil {
			l.logger.Error("Failed to sweep reservation",
				zap.String("reservation_id", expired[i].ID),
				zap.Error(err))
			continue
		}
		if !released {
			continue
		}
		count++
		if l.redis != nil {
			if err := l.redis.ReleaseStock(ctx, expired[i].VariantID, expired[i].Quantity); err != nil {
				l.logger.Error("Failed to release swept stock in Redis",
					zap.Int64("variant_id", expired[i].VariantID),
					zap.Error(err))
			}
		}
	}

	if count > 0 {
		util.ReservationsSweptTotal.Add(float64(count))
		l.logger.Info("Released expired reservations", zap.Int("count", count))
	}
	return count, nil
}

// Available implements Ledger.
func (l *SQLLedger) Available(ctx context.Context, variantID int64) (int, error) {
	rec, err := l.store.GetStock(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return rec.Available, nil
}

// SyncStockToRedis seeds the Redis mirror from the database. Called at
// startup; Redis drift self-heals because the database stays authoritative.
func (l *SQLLedger) SyncStockToRedis(ctx context.Context, variantIDs []int64) error {
	if l.redis == nil {
		return nil
	}

	for _, id := range variantIDs {
		rec, err := l.store.GetStock(ctx, id)
		if err != nil {
			l.logger.Error("Failed to read stock for sync",
				zap.Int64("variant_id", id),
				zap.Error(err))
			continue
		}
		if err := l.redis.InitStock(ctx, id, rec.Available, rec.Reserved); err != nil {
			l.logger.Error("Failed to seed Redis stock",
				zap.Int64("variant_id", id),
				zap.Error(err))
		}
	}

	l.logger.Info("Stock mirror synced to Redis", zap.Int("count", len(variantIDs)))
	return nil
}

func (l *SQLLedger) releaseRedis(variantID int64, quantity int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.redis.ReleaseStock(ctx, variantID, quantity); err != nil {
		l.logger.Error("Failed to roll back Redis reservation",
			zap.Int64("variant_id", variantID),
			zap.Error(err))
	}
}
