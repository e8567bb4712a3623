package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
)

// Boundary errors surfaced before verification passes. Anything that goes
// wrong after verification is logged and acknowledged, never returned, so
// the gateway does not retry-storm a notification we cannot process.
var (
	ErrMissingConfig = errors.New("callback verification token not configured")
	ErrMissingToken  = errors.New("missing verification header")
	ErrBadToken      = errors.New("verification token mismatch")
	ErrBadPayload    = errors.New("unparsable callback payload")
)

type Store interface {
	GetPaymentByInvoice(ctx context.Context, invoiceID string) (*domain.Payment, error)
	ApplyGatewayCallback(ctx context.Context, pay domain.Payment, update domain.CallbackUpdate) (domain.UpdateOutcome, error)
}

// Reconciler maps asynchronous gateway notifications onto internal
// payment and reservation state, idempotently.
type Reconciler struct {
	store  Store
	token  string
	logger observability.Logger
}

func NewReconciler(store Store, token string, logger observability.Logger) *Reconciler {
	return &Reconciler{store: store, token: token, logger: logger}
}

type callbackPayload struct {
	InvoiceID string     `json:"invoice_id"`
	Status    string     `json:"status"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// Process handles one delivery. It fails closed until the token check and
// payload parse pass; after that every outcome is an acknowledgment.
func (r *Reconciler) Process(ctx context.Context, rawBody []byte, token string) error {
	if r.token == "" {
		return ErrMissingConfig
	}
	if token == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.token)) != 1 {
		observability.GatewayCallbacks.WithLabelValues("rejected").Inc()
		return ErrBadToken
	}

	var payload callbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return errors.WithSecondaryError(ErrBadPayload, err)
	}
	if payload.InvoiceID == "" {
		return ErrBadPayload
	}

	pay, err := r.store.GetPaymentByInvoice(ctx, payload.InvoiceID)
	if errors.Is(err, domain.ErrNotFound) {
		// An invoice this system never created or already forgot. Ack so
		// the gateway stops retrying.
		r.logger.WithField("invoice_id", payload.InvoiceID).Warn("callback for unknown invoice, acknowledged")
		observability.GatewayCallbacks.WithLabelValues("unknown_invoice").Inc()
		return nil
	}
	if err != nil {
		r.logger.WithField("invoice_id", payload.InvoiceID).WithError(err).Error("callback payment lookup failed")
		observability.GatewayCallbacks.WithLabelValues("error").Inc()
		return nil
	}

	update := domain.CallbackUpdate{
		RawPayload:     rawBody,
		ExternalStatus: payload.Status,
		MappedStatus:   domain.MapGatewayStatus(payload.Status),
		PaidAt:         payload.PaidAt,
	}
	outcome, err := r.store.ApplyGatewayCallback(ctx, *pay, update)
	if err != nil {
		r.logger.WithField("invoice_id", payload.InvoiceID).WithError(err).Error("callback apply failed")
		observability.GatewayCallbacks.WithLabelValues("error").Inc()
		return nil
	}
	if !outcome.Applied() {
		// The payment was already resolved by the sweep, a cancel, or an
		// earlier delivery; ack without touching it.
		r.logger.WithField("invoice_id", payload.InvoiceID).Info("callback for resolved payment, acknowledged")
		observability.GatewayCallbacks.WithLabelValues("stale").Inc()
		return nil
	}

	observability.GatewayCallbacks.WithLabelValues("applied").Inc()
	return nil
}
