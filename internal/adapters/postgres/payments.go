package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stayhq/reservations/internal/domain"
)

func (r *Repository) GetPaymentByInvoice(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, reservation_id, amount, method, status, invoice_id, external_status, raw_callback, proof_ref, paid_at
		FROM payments WHERE invoice_id = $1
	`, invoiceID).Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Method, &p.Status, &p.InvoiceID, &p.ExternalStatus, &p.RawCallback, &p.ProofRef, &p.PaidAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetInvoice attaches the gateway invoice identifier to a payment. Called
// after the creation transaction commits; invoice creation is a remote
// call and stays outside the atomic unit of work.
func (r *Repository) SetInvoice(ctx context.Context, paymentID uuid.UUID, invoiceID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE payments SET invoice_id = $2 WHERE id = $1
	`, paymentID, invoiceID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyGatewayCallback records the callback snapshot and mapped status on
// the payment and, for terminal mappings, mirrors the status onto the
// reservation. Both writes are conditioned on the row not already being
// terminal: a late callback for a payment the sweep or the guest already
// resolved matches zero rows and reports AlreadyResolved, so it can never
// resurrect a cancelled reservation or cancel a confirmed one. The ledger
// is deliberately not touched here; restoration on cancellation belongs
// to the expiry sweep and the explicit cancel path.
func (r *Repository) ApplyGatewayCallback(ctx context.Context, pay domain.Payment, update domain.CallbackUpdate) (domain.UpdateOutcome, error) {
	outcome := domain.OutcomeAlreadyResolved
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var result pgconn.CommandTag
		var err error
		if update.PaidAt != nil {
			result, err = tx.Exec(ctx, `
				UPDATE payments SET raw_callback = $2, external_status = $3, status = $4, paid_at = $5
				WHERE id = $1 AND status NOT IN ($6, $7)
			`, pay.ID, update.RawPayload, update.ExternalStatus, update.MappedStatus, update.PaidAt, domain.StatusConfirmed, domain.StatusCancelled)
		} else {
			result, err = tx.Exec(ctx, `
				UPDATE payments SET raw_callback = $2, external_status = $3, status = $4
				WHERE id = $1 AND status NOT IN ($5, $6)
			`, pay.ID, update.RawPayload, update.ExternalStatus, update.MappedStatus, domain.StatusConfirmed, domain.StatusCancelled)
		}
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		outcome = domain.OutcomeApplied

		if update.MappedStatus == domain.StatusConfirmed || update.MappedStatus == domain.StatusCancelled {
			_, err := tx.Exec(ctx, `
				UPDATE reservations SET status = $2
				WHERE id = $1 AND status NOT IN ($3, $4)
			`, pay.ReservationID, update.MappedStatus, domain.StatusConfirmed, domain.StatusCancelled)
			if err != nil {
				return err
			}
		}

		if update.MappedStatus == domain.StatusConfirmed {
			return r.insertOutboxEvent(ctx, tx, "payment", pay.ID, "payment.settled", "payment.settled:"+pay.ID.String(), map[string]interface{}{
				"payment_id":     pay.ID,
				"reservation_id": pay.ReservationID,
			})
		}
		return nil
	})
	return outcome, err
}
