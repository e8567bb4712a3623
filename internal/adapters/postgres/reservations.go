package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stayhq/reservations/internal/domain"
)

// CreateReservation commits the reservation row, its payment row, the
// per-night ledger decrement, and a reservation.created outbox record in
// one transaction. Either all of them happen or none do.
func (r *Repository) CreateReservation(ctx context.Context, res domain.Reservation, pay domain.Payment) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reservations (id, user_id, property_id, room_type_id, start_date, end_date, status, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, res.ID, res.UserID, res.PropertyID, res.RoomTypeID, res.StartDate, res.EndDate, res.Status, res.ExpiresAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO payments (id, reservation_id, amount, method, status)
			VALUES ($1, $2, $3, $4, $5)
		`, pay.ID, pay.ReservationID, pay.Amount, pay.Method, pay.Status)
		if err != nil {
			return err
		}

		if err := decrementRange(ctx, tx, res.RoomTypeID, res.StartDate, res.EndDate); err != nil {
			return err
		}

		return r.insertOutboxEvent(ctx, tx, "reservation", res.ID, "reservation.created", "reservation.created:"+res.ID.String(), map[string]interface{}{
			"reservation_id": res.ID,
			"room_type_id":   res.RoomTypeID,
			"user_id":        res.UserID,
		})
	})
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, property_id, room_type_id, start_date, end_date, status, expires_at, created_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.UserID, &res.PropertyID, &res.RoomTypeID, &res.StartDate, &res.EndDate, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) GetPaymentByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, reservation_id, amount, method, status, invoice_id, external_status, raw_callback, proof_ref, paid_at
		FROM payments WHERE reservation_id = $1
	`, reservationID).Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Method, &p.Status, &p.InvoiceID, &p.ExternalStatus, &p.RawCallback, &p.ProofRef, &p.PaidAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConfirmReservation flips PENDING_CONFIRMATION to CONFIRMED. A zero-row
// match means another actor already resolved the reservation, reported as
// an outcome rather than an error.
func (r *Repository) ConfirmReservation(ctx context.Context, id uuid.UUID) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $2
			WHERE id = $1 AND status = $3
		`, id, domain.StatusConfirmed, domain.StatusPendingConfirmation)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		outcome = domain.OutcomeApplied

		_, err = tx.Exec(ctx, `
			UPDATE payments SET status = $2 WHERE reservation_id = $1
		`, id, domain.StatusConfirmed)
		if err != nil {
			return err
		}

		return r.insertOutboxEvent(ctx, tx, "reservation", id, "reservation.confirmed", "reservation.confirmed:"+id.String(), map[string]interface{}{
			"reservation_id": id,
		})
	})
	return outcome, err
}

// RejectReservation moves PENDING_CONFIRMATION back to PENDING_PAYMENT
// with a fresh payment deadline.
func (r *Repository) RejectReservation(ctx context.Context, id uuid.UUID, newExpiry time.Time) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $2, expires_at = $3
			WHERE id = $1 AND status = $4
		`, id, domain.StatusPendingPayment, newExpiry, domain.StatusPendingConfirmation)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		outcome = domain.OutcomeApplied

		_, err = tx.Exec(ctx, `
			UPDATE payments SET status = $2, proof_ref = NULL WHERE reservation_id = $1
		`, id, domain.StatusPendingPayment)
		if err != nil {
			return err
		}

		// A reservation can be rejected more than once across its
		// lifetime, so each rejection is its own event.
		return r.insertOutboxEvent(ctx, tx, "reservation", id, "reservation.rejected", uuid.New().String(), map[string]interface{}{
			"reservation_id": id,
			"expires_at":     newExpiry,
		})
	})
	return outcome, err
}

// AttachPaymentProof records the manual-transfer proof reference and moves
// both rows to PENDING_CONFIRMATION in one transaction. Conditioned on the
// reservation still awaiting payment and no proof existing yet.
func (r *Repository) AttachPaymentProof(ctx context.Context, reservationID uuid.UUID, proofRef string) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE payments SET status = $2, proof_ref = $3
			WHERE reservation_id = $1 AND method = $4 AND status = $5 AND proof_ref IS NULL
		`, reservationID, domain.StatusPendingConfirmation, proofRef, domain.MethodManualTransfer, domain.StatusPendingPayment)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}

		result, err = tx.Exec(ctx, `
			UPDATE reservations SET status = $2
			WHERE id = $1 AND status = $3
		`, reservationID, domain.StatusPendingConfirmation, domain.StatusPendingPayment)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		outcome = domain.OutcomeApplied
		return nil
	})
	return outcome, err
}

// CancelReservation flips a live reservation to CANCELLED and restores the
// ledger for its full date range, all in one transaction.
func (r *Repository) CancelReservation(ctx context.Context, res domain.Reservation) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $2
			WHERE id = $1 AND status IN ($3, $4)
		`, res.ID, domain.StatusCancelled, domain.StatusPendingPayment, domain.StatusPendingConfirmation)
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
		})
	})
	return outcome, err
}

// insertOutboxEvent writes one event record inside the caller's
// transaction. The dedupe key is the consumer-side message identity:
// events emitted at most once per aggregate use a deterministic key so a
// broker redelivery collapses to one observed event downstream.
func (r *Repository) insertOutboxEvent(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID, eventType, dedupeKey string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		DedupeKey:     dedupeKey,
	})
}
