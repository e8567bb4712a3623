package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/adapters/postgres"
	"github.com/stayhq/reservations/internal/booking"
	"github.com/stayhq/reservations/internal/config"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/expiry"
	"github.com/stayhq/reservations/internal/idempotency"
	"github.com/stayhq/reservations/internal/payments"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	cfg        *config.Config
	svc        *booking.Service
	repo       *postgres.Repository
	sweeper    *expiry.Sweeper
	reconciler *payments.Reconciler
	idemp      *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *booking.Service, repo *postgres.Repository, sweeper *expiry.Sweeper, reconciler *payments.Reconciler, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:        cfg,
		svc:        svc,
		repo:       repo,
		sweeper:    sweeper,
		reconciler: reconciler,
		idemp:      idemp,
	}
}

// callerID resolves the authenticated user set by the upstream auth layer.
func callerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "not allowed", http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrRoomTypeRequired),
		errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrAlreadyConfirmed),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrAwaitingPayment),
		errors.Is(err, domain.ErrExpiredMeanwhile),
		errors.Is(err, domain.ErrAutoCancelled),
		errors.Is(err, domain.ErrProofAlreadyExists),
		errors.Is(err, domain.ErrWrongPaymentMethod):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotificationFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func reservationBody(res *domain.Reservation, pay *domain.Payment) map[string]interface{} {
	body := map[string]interface{}{
		"reservation_id": res.ID,
		"property_id":    res.PropertyID,
		"room_type_id":   res.RoomTypeID,
		"start_date":     res.StartDate.Format(dateLayout),
		"end_date":       res.EndDate.Format(dateLayout),
		"status":         res.Status,
	}
	if res.ExpiresAt != nil {
		body["expires_at"] = res.ExpiresAt.Format(time.RFC3339)
	}
	if pay != nil {
		payment := map[string]interface{}{
			"amount": pay.Amount,
			"method": pay.Method,
			"status": pay.Status,
		}
		if pay.InvoiceID != nil {
			payment["invoice_id"] = *pay.InvoiceID
		}
		body["payment"] = payment
	}
	return body
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		PropertyID    uuid.UUID  `json:"property_id"`
		RoomTypeID    *uuid.UUID `json:"room_type_id,omitempty"`
		StartDate     string     `json:"start_date"`
		EndDate       string     `json:"end_date"`
		PaymentMethod string     `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}

	method := domain.PaymentMethod(req.PaymentMethod)
	if method != domain.MethodManualTransfer && method != domain.MethodGateway {
		http.Error(w, "invalid payment_method", http.StatusBadRequest)
		return
	}

	// Claim the key before creating anything: two racing requests with the
	// same key must not both book. The loser either replays the stored
	// response or is told to retry.
	claimed, err := h.idemp.Claim(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !claimed {
		existing, err := h.idemp.Get(r.Context(), key)
		if err == nil && existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.Status)
			w.Write(existing.Result)
			return
		}
		http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
		return
	}

	res, pay, err := h.svc.Create(r.Context(), booking.CreateInput{
		UserID:     userID,
		PropertyID: req.PropertyID,
		RoomTypeID: req.RoomTypeID,
		StartDate:  start,
		EndDate:    end,
		Method:     method,
	})
	if err != nil {
		// A failed create stores nothing; releasing the claim lets the
		// client retry with the same key.
		h.idemp.Release(r.Context(), key)
		writeDomainError(w, err)
		return
	}

	data, _ := json.Marshal(reservationBody(res, pay))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
	h.idemp.Release(r.Context(), key)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, pay, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res, pay))
}

func (h *Handlers) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ConfirmByOwner(r.Context(), id, ownerID)
	if err != nil && !errors.Is(err, domain.ErrNotificationFailed) {
		writeDomainError(w, err)
		return
	}
	body := reservationBody(res, nil)
	if err != nil {
		// Confirmed, but the guest was not notified.
		body["warning"] = domain.ErrNotificationFailed.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) RejectReservation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.svc.RejectByOwner(r.Context(), id, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res, nil))
}

func (h *Handlers) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		ProofRef string `json:"proof_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProofRef == "" {
		http.Error(w, "proof_ref is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SubmitPaymentProof(r.Context(), id, userID, req.ProofRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res, nil))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res, nil))
}

func (h *Handlers) ListAvailability(w http.ResponseWriter, r *http.Request) {
	roomTypeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(dateLayout, r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("end"))
	if err != nil || !start.Before(end) {
		http.Error(w, "invalid range", http.StatusBadRequest)
		return
	}

	rt, err := h.repo.GetRoomType(r.Context(), roomTypeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := h.repo.ListAvailability(r.Context(), roomTypeID, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.Day.Format(dateLayout)] = rec.AvailableCount
	}

	// Days without a counter row are at full capacity.
	days := make([]map[string]interface{}, 0)
	for _, day := range domain.Nights(start, end) {
		key := day.Format(dateLayout)
		count, found := counts[key]
		if !found {
			count = rt.TotalCapacity
		}
		days = append(days, map[string]interface{}{"day": key, "available_count": count})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"room_type_id": roomTypeID, "days": days})
}

func (h *Handlers) requireRoomTypeOwner(w http.ResponseWriter, r *http.Request) (*domain.RoomType, bool) {
	ownerID, ok := callerID(r)
	if !ok {
		http.Error(w, "AUTH_REQUIRED", http.StatusUnauthorized)
		return nil, false
	}
	roomTypeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	rt, err := h.repo.GetRoomType(r.Context(), roomTypeID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	prop, err := h.repo.GetProperty(r.Context(), rt.PropertyID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if prop.OwnerID != ownerID {
		http.Error(w, "not allowed", http.StatusForbidden)
		return nil, false
	}
	return rt, true
}

func (h *Handlers) CreatePeakRate(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.requireRoomTypeOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		StartDate string  `json:"start_date"`
		EndDate   string  `json:"end_date"`
		RateType  string  `json:"rate_type"`
		Value     float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil || end.Before(start) {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}
	rateType := domain.RateType(req.RateType)
	if rateType != domain.RateFixed && rateType != domain.RatePercentage {
		http.Error(w, "invalid rate_type", http.StatusBadRequest)
		return
	}

	rate := domain.PeakRate{
		ID:         uuid.New(),
		RoomTypeID: rt.ID,
		StartDate:  start,
		EndDate:    end,
		RateType:   rateType,
		Value:      req.Value,
	}
	if err := h.repo.CreatePeakRate(r.Context(), rate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"peak_rate_id": rate.ID})
}

func (h *Handlers) ListPeakRates(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.requireRoomTypeOwner(w, r)
	if !ok {
		return
	}
	rates, err := h.repo.ListPeakRates(r.Context(), rt.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(rates))
	for _, rate := range rates {
		out = append(out, map[string]interface{}{
			"peak_rate_id": rate.ID,
			"start_date":   rate.StartDate.Format(dateLayout),
			"end_date":     rate.EndDate.Format(dateLayout),
			"rate_type":    rate.RateType,
			"value":        rate.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"peak_rates": out})
}

func (h *Handlers) DeletePeakRate(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.requireRoomTypeOwner(w, r)
	if !ok {
		return
	}
	rateID, err := uuid.Parse(chi.URLParam(r, "rateID"))
	if err != nil {
		http.Error(w, "invalid rate id", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeletePeakRate(r.Context(), rt.ID, rateID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PaymentCallback is the gateway webhook. Status contract: 500 when the
// verification secret is not configured, 400 for a missing header, body,
// or unparsable payload, 401 for a failed check, and 200 for everything
// else, including downstream processing failures.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Callback-Token")

	rawBody, err := io.ReadAll(r.Body)
	if err != nil || len(rawBody) == 0 {
		http.Error(w, "missing body", http.StatusBadRequest)
		return
	}

	err = h.reconciler.Process(r.Context(), rawBody, token)
	switch {
	case errors.Is(err, payments.ErrMissingConfig):
		http.Error(w, "callback verification not configured", http.StatusInternalServerError)
		return
	case errors.Is(err, payments.ErrMissingToken):
		http.Error(w, "missing verification header", http.StatusBadRequest)
		return
	case errors.Is(err, payments.ErrBadToken):
		http.Error(w, "verification failed", http.StatusUnauthorized)
		return
	case errors.Is(err, payments.ErrBadPayload):
		http.Error(w, "unparsable payload", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sweep is the manual administrative trigger for the expiry sweep.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.sweeper.SweepExpired(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cancelled == nil {
		cancelled = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": cancelled})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
