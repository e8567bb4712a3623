package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stayhq/reservations/internal/domain"
)

// The ledger is a per-(room type, day) counter of remaining capacity.
// Rows are created lazily: the first write for a day seeds the counter
// from the room type's total capacity. Decrement and increment are only
// ever called inside the same transaction as the reservation-status
// change they accompany.

func seedDay(ctx context.Context, tx pgx.Tx, roomTypeID uuid.UUID, day time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO room_availability (room_type_id, day, available_count)
		SELECT id, $2, total_capacity FROM room_types WHERE id = $1
		ON CONFLICT (room_type_id, day) DO NOTHING
	`, roomTypeID, day)
	return err
}

func decrementRange(ctx context.Context, tx pgx.Tx, roomTypeID uuid.UUID, start, end time.Time) error {
	for _, day := range domain.Nights(start, end) {
		if err := seedDay(ctx, tx, roomTypeID, day); err != nil {
			return err
		}
		result, err := tx.Exec(ctx, `
			UPDATE room_availability SET available_count = available_count - 1
			WHERE room_type_id = $1 AND day = $2 AND available_count >= 1
		`, roomTypeID, day)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrUnavailable
		}
	}
	return nil
}

// incrementRange restores one unit per night. A day with no counter row
// is already at full capacity and needs no write, and the update is
// capped so a restore can never push a counter past total_capacity.
func incrementRange(ctx context.Context, tx pgx.Tx, roomTypeID uuid.UUID, start, end time.Time) error {
	for _, day := range domain.Nights(start, end) {
		_, err := tx.Exec(ctx, `
			UPDATE room_availability SET available_count = available_count + 1
			WHERE room_type_id = $1 AND day = $2
			  AND available_count < (SELECT total_capacity FROM room_types WHERE id = $1)
		`, roomTypeID, day)
		if err != nil {
			return err
		}
	}
	return nil
}

// IsAvailable reports whether every night in [start, end) has at least one
// unit left. Days with no counter row are at full capacity.
func (r *Repository) IsAvailable(ctx context.Context, roomTypeID uuid.UUID, start, end time.Time) (bool, error) {
	var capacity int
	err := r.pool.QueryRow(ctx, `
		SELECT total_capacity FROM room_types WHERE id = $1
	`, roomTypeID).Scan(&capacity)
	if err == pgx.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if capacity < 1 {
		return false, nil
	}

	var exhausted int
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM room_availability
		WHERE room_type_id = $1 AND day >= $2 AND day < $3 AND available_count < 1
	`, roomTypeID, start, end).Scan(&exhausted)
	if err != nil {
		return false, err
	}
	return exhausted == 0, nil
}

// ListAvailability returns counter rows for [start, end). Days without a
// row are omitted; callers treat them as full capacity.
func (r *Repository) ListAvailability(ctx context.Context, roomTypeID uuid.UUID, start, end time.Time) ([]domain.AvailabilityRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT room_type_id, day, available_count FROM room_availability
		WHERE room_type_id = $1 AND day >= $2 AND day < $3
		ORDER BY day
	`, roomTypeID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AvailabilityRecord
	for rows.Next() {
		var rec domain.AvailabilityRecord
		if err := rows.Scan(&rec.RoomTypeID, &rec.Day, &rec.AvailableCount); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
