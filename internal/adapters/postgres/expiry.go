package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stayhq/reservations/internal/domain"
)

// ListExpired returns reservations whose payment hold has lapsed: still
// PENDING_PAYMENT on both rows with expires_at in the past.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT res.id, res.user_id, res.property_id, res.room_type_id, res.start_date, res.end_date, res.status, res.expires_at, res.created_at
		FROM reservations res
		JOIN payments pay ON pay.reservation_id = res.id
		WHERE res.status = $1 AND pay.status = $1 AND res.expires_at < $2
	`, domain.StatusPendingPayment, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.PropertyID, &res.RoomTypeID, &res.StartDate, &res.EndDate, &res.Status, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		expired = append(expired, res)
	}
	return expired, rows.Err()
}

// CancelExpired cancels a single lapsed candidate in its own transaction.
// The flip is conditioned on the pre-sweep status so a concurrent sweep
// picking up the same candidate resolves to a no-op, not an error.
func (r *Repository) CancelExpired(ctx context.Context, res domain.Reservation, now time.Time) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $2
			WHERE id = $1 AND status = $3 AND expires_at < $4
		`, res.ID, domain.StatusCancelled, domain.StatusPendingPayment, now)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		outcome = domain.OutcomeApplied

		_, err = tx.Exec(ctx, `
			UPDATE payments SET status = $2 WHERE reservation_id = $1
		`, res.ID, domain.StatusCancelled)
		if err != nil {
			return err
		}

		if err := incrementRange(ctx, tx, res.RoomTypeID, res.StartDate, res.EndDate); err != nil {
			return err
		}

		return r.insertOutboxEvent(ctx, tx, "reservation", res.ID, "reservation.cancelled", "reservation.cancelled:"+res.ID.String(), map[string]interface{}{
			"reservation_id": res.ID,
			"reason":         "expired",
		})
	})
	return outcome, err
}
