package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrInsufficientStock is returned by ReserveStockTx when the available
// quantity under lock is below the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetVariantByID retrieves a variant by ID
func (s *Store) GetVariantByID(ctx context.Context, id int64) (*models.Variant, error) {
	var variant models.Variant
	err := s.db.GetContext(ctx, &variant, "SELECT * FROM variants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("variant not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// GetVariantsByIDs retrieves multiple variants by IDs
func (s *Store) GetVariantsByIDs(ctx context.Context, ids []int64) ([]models.Variant, error) {
	if len(ids) == 0 {
		return []models.Variant{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM variants WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var variants []models.Variant
	err = s.db.SelectContext(ctx, &variants, query, args...)
	return variants, err
}

// GetCartItems retrieves the cart rows for a user
func (s *Store) GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE user_id = $1 ORDER BY created_at", userID)
	return items, err
}

// GetStock retrieves the stock record for a variant
func (s *Store) GetStock(ctx context.Context, variantID int64) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := s.db.GetContext(ctx, &rec, "SELECT * FROM stock WHERE variant_id = $1", variantID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock not found for variant: %d", variantID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReserveStockTx performs the check-and-decrement for one reservation
// inside a transaction. The row lock makes the check indivisible with
// respect to concurrent reservations on the same variant. Returns the
// available quantity seen under the lock; on shortfall the error wraps
// ErrInsufficientStock and nothing is written.
func (s *Store) ReserveStockTx(ctx context.Context, res *models.Reservation) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var available int
	err = tx.GetContext(ctx, &available,
		"SELECT available FROM stock WHERE variant_id = $1 FOR UPDATE", res.VariantID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock stock row: %w", err)
	}

	if available < res.Quantity {
		return available, fmt.Errorf("%w: variant=%d available=%d requested=%d",
			ErrInsufficientStock, res.VariantID, available, res.Quantity)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE stock SET available = available - $1, reserved = reserved + $1, updated_at = NOW() WHERE variant_id = $2",
		res.Quantity, res.VariantID)
	if err != nil {
		return available, fmt.Errorf("failed to reserve stock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (id, checkout_id, variant_id, quantity, state, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.CheckoutID, res.VariantID, res.Quantity, models.ReservationStateActive, res.ExpiresAt)
	if err != nil {
		return available, fmt.Errorf("failed to record reservation: %w", err)
	}

	return available, tx.Commit()
}

// ReleaseReservationTx returns a reservation's quantity to available
// stock. Only ACTIVE rows are touched, so releasing an already-released
// or committed token is a no-op. Reports whether the row flipped.
func (s *Store) ReleaseReservationTx(ctx context.Context, tokenID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var res models.Reservation
	err = tx.GetContext(ctx, &res,
		"SELECT * FROM reservations WHERE id = $1 FOR UPDATE", tokenID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock reservation: %w", err)
	}
	if res.State != models.ReservationStateActive {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE stock SET available = available + $1, reserved = reserved - $1, updated_at = NOW() WHERE variant_id = $2",
		res.Quantity, res.VariantID)
	if err != nil {
		return false, fmt.Errorf("failed to release stock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE reservations SET state = $1 WHERE id = $2",
		models.ReservationStateReleased, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to mark reservation released: %w", err)
	}

	return true, tx.Commit()
}

// CommitReservationTx converts a reservation into a permanent debit.
// Idempotent for tokens that are no longer ACTIVE.
func (s *Store) CommitReservationTx(ctx context.Context, tokenID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := commitReservationLocked(ctx, tx, tokenID); err != nil {
		return err
	}
	return tx.Commit()
}

// commitReservationLocked commits one reservation inside an open
// transaction. Non-ACTIVE rows are left untouched.
func commitReservationLocked(ctx context.Context, tx *sqlx.Tx, tokenID string) error {
	var res models.Reservation
	err := tx.GetContext(ctx, &res,
		"SELECT * FROM reservations WHERE id = $1 FOR UPDATE", tokenID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock reservation: %w", err)
	}
	if res.State != models.ReservationStateActive {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE stock SET reserved = reserved - $1, updated_at = NOW() WHERE variant_id = $2",
		res.Quantity, res.VariantID)
	if err != nil {
		return fmt.Errorf("failed to debit stock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE reservations SET state = $1 WHERE id = $2",
		models.ReservationStateCommitted, tokenID)
	if err != nil {
		return fmt.Errorf("failed to mark reservation committed: %w", err)
	}
	return nil
}

// StockedVariantIDs returns every variant ID that has a stock record.
// Used to seed the Redis mirror at startup.
func (s *Store) StockedVariantIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, "SELECT variant_id FROM stock ORDER BY variant_id")
	return ids, err
}

// ExpiredReservations returns the ACTIVE reservations whose expiry has
// passed.
func (s *Store) ExpiredReservations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations,
		"SELECT * FROM reservations WHERE state = $1 AND expires_at < $2",
		models.ReservationStateActive, now)
	return reservations, err
}
