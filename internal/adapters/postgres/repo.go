package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	var p domain.Property
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, rental_mode
		FROM properties WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.RentalMode)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetRoomType(ctx context.Context, id uuid.UUID) (*domain.RoomType, error) {
	var rt domain.RoomType
	err := r.pool.QueryRow(ctx, `
		SELECT id, property_id, name, base_rate, total_capacity, is_whole_unit
		FROM room_types WHERE id = $1
	`, id).Scan(&rt.ID, &rt.PropertyID, &rt.Name, &rt.BaseRate, &rt.TotalCapacity, &rt.IsWholeUnit)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetWholeUnitType returns the single room type designated as the whole
// unit of a whole-property rental.
func (r *Repository) GetWholeUnitType(ctx context.Context, propertyID uuid.UUID) (*domain.RoomType, error) {
	var rt domain.RoomType
	err := r.pool.QueryRow(ctx, `
		SELECT id, property_id, name, base_rate, total_capacity, is_whole_unit
		FROM room_types WHERE property_id = $1 AND is_whole_unit
	`, propertyID).Scan(&rt.ID, &rt.PropertyID, &rt.Name, &rt.BaseRate, &rt.TotalCapacity, &rt.IsWholeUnit)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}
