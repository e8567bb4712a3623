package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
	"github.com/stayhq/reservations/internal/payments"
)

type callbackStore struct {
	payment  *domain.Payment
	applyErr error
	applied  int
}

func (s *callbackStore) GetPaymentByInvoice(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	if s.payment == nil || s.payment.InvoiceID == nil || *s.payment.InvoiceID != invoiceID {
		return nil, domain.ErrNotFound
	}
	copied := *s.payment
	return &copied, nil
}

func (s *callbackStore) ApplyGatewayCallback(ctx context.Context, pay domain.Payment, update domain.CallbackUpdate) (domain.UpdateOutcome, error) {
	if s.applyErr != nil {
		return domain.OutcomeAlreadyResolved, s.applyErr
	}
	if s.payment.Status.Terminal() {
		return domain.OutcomeAlreadyResolved, nil
	}
	s.payment.Status = update.MappedStatus
	s.applied++
	return domain.OutcomeApplied, nil
}

func callbackHandlers(store payments.Store, serverToken string) *Handlers {
	reconciler := payments.NewReconciler(store, serverToken, observability.NewLogger())
	return &Handlers{reconciler: reconciler}
}

func postCallback(h *Handlers, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("X-Callback-Token", token)
	}
	rec := httptest.NewRecorder()
	h.PaymentCallback(rec, req)
	return rec
}

func TestPaymentCallback_StatusContract(t *testing.T) {
	inv := "inv-1"
	store := &callbackStore{payment: &domain.Payment{
		ID:            uuid.New(),
		ReservationID: uuid.New(),
		Method:        domain.MethodGateway,
		Status:        domain.StatusPendingPayment,
		InvoiceID:     &inv,
	}}
	const token = "cb-secret"
	valid := `{"invoice_id":"inv-1","status":"paid"}`

	cases := []struct {
		name       string
		server     string
		body       string
		token      string
		wantStatus int
	}{
		{"secret not configured", "", valid, token, http.StatusInternalServerError},
		{"empty body", token, "", token, http.StatusBadRequest},
		{"missing header", token, valid, "", http.StatusBadRequest},
		{"wrong token", token, valid, "guess", http.StatusUnauthorized},
		{"unparsable payload", token, "not json", token, http.StatusBadRequest},
		{"no invoice id", token, `{"status":"paid"}`, token, http.StatusBadRequest},
		{"unknown invoice acked", token, `{"invoice_id":"inv-gone","status":"paid"}`, token, http.StatusOK},
		{"applied", token, valid, token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := callbackHandlers(store, tc.server)
			rec := postCallback(h, tc.body, tc.token)
			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPaymentCallback_ProcessingFailureStillAcked(t *testing.T) {
	inv := "inv-1"
	store := &callbackStore{
		payment:  &domain.Payment{ID: uuid.New(), InvoiceID: &inv},
		applyErr: errors.New("tx aborted"),
	}
	h := callbackHandlers(store, "cb-secret")

	rec := postCallback(h, `{"invoice_id":"inv-1","status":"paid"}`, "cb-secret")
	if rec.Code != http.StatusOK {
		t.Errorf("post-verification failures must be acknowledged, got %d", rec.Code)
	}
}

func TestPaymentCallback_DuplicateDelivery(t *testing.T) {
	inv := "inv-1"
	store := &callbackStore{payment: &domain.Payment{ID: uuid.New(), InvoiceID: &inv}}
	h := callbackHandlers(store, "cb-secret")

	for i := 0; i < 2; i++ {
		rec := postCallback(h, `{"invoice_id":"inv-1","status":"settled"}`, "cb-secret")
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if store.applied != 1 {
		t.Errorf("only the first delivery mutates, got %d applies", store.applied)
	}
}
