package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
)

type fakeStore struct {
	payments map[string]*domain.Payment
	applied  []domain.CallbackUpdate
	applyErr error
}

func newStoreWithInvoice(invoiceID string) *fakeStore {
	inv := invoiceID
	return &fakeStore{
		payments: map[string]*domain.Payment{
			invoiceID: {
				ID:            uuid.New(),
				ReservationID: uuid.New(),
				Amount:        300,
				Method:        domain.MethodGateway,
				Status:        domain.StatusPendingPayment,
				InvoiceID:     &inv,
			},
		},
	}
}

func (f *fakeStore) GetPaymentByInvoice(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	pay, ok := f.payments[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *pay
	return &copied, nil
}

func (f *fakeStore) ApplyGatewayCallback(ctx context.Context, pay domain.Payment, update domain.CallbackUpdate) (domain.UpdateOutcome, error) {
	if f.applyErr != nil {
		return domain.OutcomeAlreadyResolved, f.applyErr
	}
	if f.payments[*pay.InvoiceID].Status.Terminal() {
		return domain.OutcomeAlreadyResolved, nil
	}
	f.applied = append(f.applied, update)
	f.payments[*pay.InvoiceID].Status = update.MappedStatus
	f.payments[*pay.InvoiceID].ExternalStatus = update.ExternalStatus
	return domain.OutcomeApplied, nil
}

const testToken = "cb-secret-token"

func newReconciler(store Store) *Reconciler {
	return NewReconciler(store, testToken, observability.NewLogger())
}

func TestProcess_VerificationGate(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	body := []byte(`{"invoice_id":"inv-1","status":"paid"}`)

	cases := []struct {
		name   string
		server string
		sent   string
		want   error
	}{
		{"no server token", "", testToken, ErrMissingConfig},
		{"no header", testToken, "", ErrMissingToken},
		{"wrong token", testToken, "guess", ErrBadToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReconciler(store, tc.server, observability.NewLogger())
			if err := r.Process(context.Background(), body, tc.sent); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(store.applied) != 0 {
		t.Error("nothing may be applied before verification passes")
	}
}

func TestProcess_BadPayload(t *testing.T) {
	r := newReconciler(newStoreWithInvoice("inv-1"))

	if err := r.Process(context.Background(), []byte("not json"), testToken); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
	if err := r.Process(context.Background(), []byte(`{"status":"paid"}`), testToken); !errors.Is(err, ErrBadPayload) {
		t.Errorf("missing invoice_id: expected ErrBadPayload, got %v", err)
	}
}

func TestProcess_UnknownInvoiceAcked(t *testing.T) {
	r := newReconciler(newStoreWithInvoice("inv-1"))

	err := r.Process(context.Background(), []byte(`{"invoice_id":"inv-gone","status":"paid"}`), testToken)
	if err != nil {
		t.Errorf("unknown invoice must be acknowledged, got %v", err)
	}
}

func TestProcess_AppliesMappedStatus(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	r := newReconciler(store)

	paidAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"invoice_id":"inv-1","status":"settled","paid_at":"2026-03-10T12:00:00Z"}`)
	if err := r.Process(context.Background(), body, testToken); err != nil {
		t.Fatal(err)
	}

	if len(store.applied) != 1 {
		t.Fatalf("expected 1 apply, got %d", len(store.applied))
	}
	update := store.applied[0]
	if update.MappedStatus != domain.StatusConfirmed {
		t.Errorf("settled should map to CONFIRMED, got %s", update.MappedStatus)
	}
	if update.ExternalStatus != "settled" {
		t.Errorf("external status preserved verbatim, got %q", update.ExternalStatus)
	}
	if update.PaidAt == nil || !update.PaidAt.Equal(paidAt) {
		t.Errorf("paid_at not carried through: %v", update.PaidAt)
	}
	if string(update.RawPayload) != string(body) {
		t.Error("raw payload should be stored as received")
	}
}

func TestProcess_UnrecognizedStatusKeepsPending(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	r := newReconciler(store)

	body := []byte(`{"invoice_id":"inv-1","status":"on_hold_review"}`)
	if err := r.Process(context.Background(), body, testToken); err != nil {
		t.Fatal(err)
	}
	if store.applied[0].MappedStatus != domain.StatusPendingPayment {
		t.Errorf("unrecognized status should map to PENDING_PAYMENT, got %s", store.applied[0].MappedStatus)
	}
}

func TestProcess_DuplicateDeliveryAcked(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	r := newReconciler(store)

	body := []byte(`{"invoice_id":"inv-1","status":"paid"}`)
	if err := r.Process(context.Background(), body, testToken); err != nil {
		t.Fatal(err)
	}
	if err := r.Process(context.Background(), body, testToken); err != nil {
		t.Errorf("redelivery must be acknowledged, got %v", err)
	}
	if len(store.applied) != 1 {
		t.Fatalf("only the first delivery mutates, got %d applies", len(store.applied))
	}
	if store.payments["inv-1"].Status != domain.StatusConfirmed {
		t.Error("payment should stay CONFIRMED after redelivery")
	}
}

func TestProcess_LateCallbackForCancelledPayment(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	store.payments["inv-1"].Status = domain.StatusCancelled
	r := newReconciler(store)

	// The hold expired and the sweep already cancelled it; a delayed
	// "paid" must be acknowledged without reviving anything.
	err := r.Process(context.Background(), []byte(`{"invoice_id":"inv-1","status":"paid"}`), testToken)
	if err != nil {
		t.Errorf("late callback must be acknowledged, got %v", err)
	}
	if len(store.applied) != 0 {
		t.Error("a resolved payment must not be touched")
	}
	if store.payments["inv-1"].Status != domain.StatusCancelled {
		t.Error("payment must stay CANCELLED")
	}
}

func TestProcess_ApplyErrorAcked(t *testing.T) {
	store := newStoreWithInvoice("inv-1")
	store.applyErr = errors.New("tx aborted")
	r := newReconciler(store)

	err := r.Process(context.Background(), []byte(`{"invoice_id":"inv-1","status":"paid"}`), testToken)
	if err != nil {
		t.Errorf("post-verification failures are acknowledged, got %v", err)
	}
}
