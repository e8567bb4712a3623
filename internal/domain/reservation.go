package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusPendingPayment      ReservationStatus = "PENDING_PAYMENT"
	StatusPendingConfirmation ReservationStatus = "PENDING_CONFIRMATION"
	StatusConfirmed           ReservationStatus = "CONFIRMED"
	StatusCancelled           ReservationStatus = "CANCELLED"
)

// Reservation is one guest's hold on a room type for [StartDate, EndDate).
// It is never physically deleted; terminal states are CONFIRMED and CANCELLED.
type Reservation struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	PropertyID uuid.UUID
	RoomTypeID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	Status     ReservationStatus
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

func NewReservation(userID, propertyID, roomTypeID uuid.UUID, start, end time.Time, holdTTL time.Duration) Reservation {
	expires := time.Now().Add(holdTTL)
	return Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		PropertyID: propertyID,
		RoomTypeID: roomTypeID,
		StartDate:  start,
		EndDate:    end,
		Status:     StatusPendingPayment,
		ExpiresAt:  &expires,
	}
}

func (s ReservationStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// CanTransition reports whether moving from s to target is a legal
// lifecycle step. No transition leaves a terminal state.
func (s ReservationStatus) CanTransition(target ReservationStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPendingPayment:
		return target == StatusPendingConfirmation || target == StatusCancelled
	case StatusPendingConfirmation:
		return target == StatusConfirmed || target == StatusCancelled || target == StatusPendingPayment
	}
	return false
}

// Nights returns the dates of the half-open range [start, end), one entry
// per bookable night.
func Nights(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
