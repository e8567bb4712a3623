package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
)

func (r *Repository) CreatePeakRate(ctx context.Context, rate domain.PeakRate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO peak_rates (id, room_type_id, start_date, end_date, rate_type, value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rate.ID, rate.RoomTypeID, rate.StartDate, rate.EndDate, rate.RateType, rate.Value)
	return err
}

// ListPeakRates returns a room type's rules in lookup order: earliest
// start date first, then creation order. The first rule covering a date
// wins, which makes overlapping rules resolve deterministically.
func (r *Repository) ListPeakRates(ctx context.Context, roomTypeID uuid.UUID) ([]domain.PeakRate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_type_id, start_date, end_date, rate_type, value, created_at
		FROM peak_rates WHERE room_type_id = $1
		ORDER BY start_date, created_at, id
	`, roomTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []domain.PeakRate
	for rows.Next() {
		var rate domain.PeakRate
		if err := rows.Scan(&rate.ID, &rate.RoomTypeID, &rate.StartDate, &rate.EndDate, &rate.RateType, &rate.Value, &rate.CreatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func (r *Repository) DeletePeakRate(ctx context.Context, roomTypeID, rateID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM peak_rates WHERE id = $1 AND room_type_id = $2
	`, rateID, roomTypeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
