package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
	"github.com/stayhq/reservations/internal/payments"
)

// Store is the transactional persistence surface the state machine drives.
// The postgres repository satisfies it. Every mutation that pairs a status
// change with a ledger change happens inside one transaction behind these
// methods.
type Store interface {
	GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error)
	GetRoomType(ctx context.Context, id uuid.UUID) (*domain.RoomType, error)
	GetWholeUnitType(ctx context.Context, propertyID uuid.UUID) (*domain.RoomType, error)
	IsAvailable(ctx context.Context, roomTypeID uuid.UUID, start, end time.Time) (bool, error)
	CreateReservation(ctx context.Context, res domain.Reservation, pay domain.Payment) error
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	GetPaymentByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Payment, error)
	ConfirmReservation(ctx context.Context, id uuid.UUID) (domain.UpdateOutcome, error)
	RejectReservation(ctx context.Context, id uuid.UUID, newExpiry time.Time) (domain.UpdateOutcome, error)
	AttachPaymentProof(ctx context.Context, reservationID uuid.UUID, proofRef string) (domain.UpdateOutcome, error)
	CancelReservation(ctx context.Context, res domain.Reservation) (domain.UpdateOutcome, error)
	SetInvoice(ctx context.Context, paymentID uuid.UUID, invoiceID string) error
}

type Pricer interface {
	Price(ctx context.Context, roomTypeID uuid.UUID, start, end time.Time) (float64, error)
}

// Sweeper reclaims lapsed holds. Owner actions run it inline before
// touching a reservation: the gap between request arrival and the status
// check is exactly where a silent expiry would otherwise go unnoticed.
type Sweeper interface {
	SweepExpired(ctx context.Context) ([]uuid.UUID, error)
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, res domain.Reservation) error
}

type Auditor interface {
	LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error
}

type Service struct {
	store    Store
	pricer   Pricer
	sweeper  Sweeper
	notifier Notifier
	auditor  Auditor
	gateway  payments.Gateway
	holdTTL  time.Duration
	logger   observability.Logger
}

func NewService(store Store, pricer Pricer, sweeper Sweeper, notifier Notifier, auditor Auditor, gateway payments.Gateway, holdTTL time.Duration, logger observability.Logger) *Service {
	return &Service{
		store:    store,
		pricer:   pricer,
		sweeper:  sweeper,
		notifier: notifier,
		auditor:  auditor,
		gateway:  gateway,
		holdTTL:  holdTTL,
		logger:   logger,
	}
}

type CreateInput struct {
	UserID     uuid.UUID
	PropertyID uuid.UUID
	RoomTypeID *uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	Method     domain.PaymentMethod
}

// Create books a hold: it resolves the room type against the property's
// rental mode, verifies availability for every night, prices the stay, and
// commits reservation, payment, and ledger decrement atomically. Gateway
// invoice creation happens after the commit; it is a remote call and must
// not sit inside the transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Reservation, *domain.Payment, error) {
	if !input.StartDate.Before(input.EndDate) {
		return nil, nil, domain.ErrInvalidDateRange
	}

	prop, err := s.store.GetProperty(ctx, input.PropertyID)
	if err != nil {
		return nil, nil, err
	}

	rt, err := s.resolveRoomType(ctx, prop, input.RoomTypeID)
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.store.IsAvailable(ctx, rt.ID, input.StartDate, input.EndDate)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, domain.ErrUnavailable
	}

	total, err := s.pricer.Price(ctx, rt.ID, input.StartDate, input.EndDate)
	if err != nil {
		return nil, nil, err
	}

	res := domain.NewReservation(input.UserID, prop.ID, rt.ID, input.StartDate, input.EndDate, s.holdTTL)
	pay := domain.NewPayment(res.ID, total, input.Method)

	if err := s.store.CreateReservation(ctx, res, pay); err != nil {
		return nil, nil, err
	}
	observability.ReservationsCreated.Inc()
	s.audit(ctx, "reservation.created", input.UserID, map[string]interface{}{
		"reservation_id": res.ID,
		"room_type_id":   rt.ID,
		"amount":         total,
	})

	if input.Method == domain.MethodGateway && s.gateway != nil {
		invoiceID, err := s.gateway.CreateInvoice(ctx, pay.ID, total)
		if err != nil {
			// The hold stands; the invoice gets re-requested out of band.
			s.logger.WithField("payment_id", pay.ID).WithError(err).Warn("gateway invoice creation failed")
		} else if err := s.store.SetInvoice(ctx, pay.ID, invoiceID); err != nil {
			s.logger.WithField("payment_id", pay.ID).WithError(err).Error("failed to attach invoice id")
		} else {
			pay.InvoiceID = &invoiceID
		}
	}

	return &res, &pay, nil
}

func (s *Service) resolveRoomType(ctx context.Context, prop *domain.Property, selector *uuid.UUID) (*domain.RoomType, error) {
	if prop.RentalMode == domain.RentalWholeProperty {
		rt, err := s.store.GetWholeUnitType(ctx, prop.ID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve whole-unit type")
		}
		if selector != nil && *selector != rt.ID {
			s.logger.WithField("property_id", prop.ID).Warn("explicit room type ignored for whole-property rental")
		}
		return rt, nil
	}

	if selector == nil {
		return nil, domain.ErrRoomTypeRequired
	}
	rt, err := s.store.GetRoomType(ctx, *selector)
	if err != nil {
		return nil, err
	}
	if rt.PropertyID != prop.ID {
		return nil, errors.Wrap(domain.ErrInvalidInput, "room type does not belong to property")
	}
	return rt, nil
}

// ConfirmByOwner moves PENDING_CONFIRMATION to CONFIRMED. The sweep runs
// first so a silently lapsed hold cannot be confirmed; the conditioned
// update catches the race where it lapses between the check and the write.
func (s *Service) ConfirmByOwner(ctx context.Context, reservationID, ownerID uuid.UUID) (*domain.Reservation, error) {
	s.sweepInline(ctx)

	res, err := s.loadAuthorized(ctx, reservationID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res.Status, domain.StatusPendingConfirmation); err != nil {
		return nil, err
	}

	outcome, err := s.store.ConfirmReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied() {
		return nil, domain.ErrExpiredMeanwhile
	}
	res.Status = domain.StatusConfirmed
	s.audit(ctx, "reservation.confirmed", ownerID, map[string]interface{}{"reservation_id": res.ID})

	if err := s.notifier.BookingConfirmed(ctx, *res); err != nil {
		// The confirmation is committed; the caller still needs to know
		// the guest was not told.
		s.logger.WithField("reservation_id", res.ID).WithError(err).Error("guest notification failed")
		return res, errors.WithSecondaryError(domain.ErrNotificationFailed, err)
	}
	return res, nil
}

// RejectByOwner returns the reservation to PENDING_PAYMENT with a fresh
// deadline, then re-runs the sweep and reports if the reservation was
// auto-cancelled under it.
func (s *Service) RejectByOwner(ctx context.Context, reservationID, ownerID uuid.UUID) (*domain.Reservation, error) {
	s.sweepInline(ctx)

	res, err := s.loadAuthorized(ctx, reservationID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res.Status, domain.StatusPendingConfirmation); err != nil {
		return nil, err
	}

	outcome, err := s.store.RejectReservation(ctx, reservationID, time.Now().Add(s.holdTTL))
	if err != nil {
		return nil, err
	}
	if !outcome.Applied() {
		return nil, domain.ErrExpiredMeanwhile
	}
	s.audit(ctx, "reservation.rejected", ownerID, map[string]interface{}{"reservation_id": res.ID})

	s.sweepInline(ctx)
	res, err = s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.StatusCancelled {
		return res, domain.ErrAutoCancelled
	}
	return res, nil
}

// SubmitPaymentProof records a manual-transfer proof reference and moves
// the reservation to PENDING_CONFIRMATION.
func (s *Service) SubmitPaymentProof(ctx context.Context, reservationID, userID uuid.UUID, proofRef string) (*domain.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	if err := requireStatus(res.Status, domain.StatusPendingPayment); err != nil {
		return nil, err
	}

	pay, err := s.store.GetPaymentByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if pay.Method != domain.MethodManualTransfer {
		return nil, domain.ErrWrongPaymentMethod
	}
	if pay.ProofRef != nil {
		return nil, domain.ErrProofAlreadyExists
	}

	outcome, err := s.store.AttachPaymentProof(ctx, reservationID, proofRef)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied() {
		return nil, domain.ErrExpiredMeanwhile
	}
	res.Status = domain.StatusPendingConfirmation
	s.audit(ctx, "payment.proof_submitted", userID, map[string]interface{}{"reservation_id": res.ID})
	return res, nil
}

// Cancel is the guest-initiated cancellation. Ledger restoration happens
// in the same transaction as the status flip, symmetric to Create.
func (s *Service) Cancel(ctx context.Context, reservationID, userID uuid.UUID) (*domain.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	switch res.Status {
	case domain.StatusConfirmed:
		return nil, domain.ErrAlreadyConfirmed
	case domain.StatusCancelled:
		return nil, domain.ErrAlreadyCancelled
	}

	outcome, err := s.store.CancelReservation(ctx, *res)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied() {
		return nil, domain.ErrAlreadyCancelled
	}
	res.Status = domain.StatusCancelled
	s.audit(ctx, "reservation.cancelled", userID, map[string]interface{}{"reservation_id": res.ID})
	return res, nil
}

// Get returns a reservation with its payment, visible to the guest who
// made it or the owner of the property it is on.
func (s *Service) Get(ctx context.Context, reservationID, callerID uuid.UUID) (*domain.Reservation, *domain.Payment, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}
	if res.UserID != callerID {
		prop, err := s.store.GetProperty(ctx, res.PropertyID)
		if err != nil {
			return nil, nil, err
		}
		if prop.OwnerID != callerID {
			return nil, nil, domain.ErrUnauthorized
		}
	}
	pay, err := s.store.GetPaymentByReservation(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}
	return res, pay, nil
}

func (s *Service) loadAuthorized(ctx context.Context, reservationID, ownerID uuid.UUID) (*domain.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	prop, err := s.store.GetProperty(ctx, res.PropertyID)
	if err != nil {
		return nil, err
	}
	if prop.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized
	}
	return res, nil
}

func requireStatus(current, want domain.ReservationStatus) error {
	if current == want {
		return nil
	}
	switch current {
	case domain.StatusConfirmed:
		return domain.ErrAlreadyConfirmed
	case domain.StatusCancelled:
		return domain.ErrAlreadyCancelled
	case domain.StatusPendingPayment:
		return domain.ErrAwaitingPayment
	default:
		return domain.ErrProofAlreadyExists
	}
}

func (s *Service) sweepInline(ctx context.Context) {
	if _, err := s.sweeper.SweepExpired(ctx); err != nil {
		// The conditioned updates below still guard correctness; a failed
		// guard sweep is logged, not fatal.
		s.logger.WithError(err).Warn("inline expiry sweep failed")
	}
}

func (s *Service) audit(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogEvent(ctx, action, actorID, data); err != nil {
		s.logger.WithField("action", action).WithError(err).Warn("audit log write failed")
	}
}
