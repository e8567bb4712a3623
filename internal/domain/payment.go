package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	MethodManualTransfer PaymentMethod = "MANUAL_TRANSFER"
	MethodGateway        PaymentMethod = "GATEWAY"
)

// Payment is 1:1 with a Reservation. Amount is computed once at creation
// and never changes; Status mirrors the reservation lifecycle phase.
type Payment struct {
	ID             uuid.UUID
	ReservationID  uuid.UUID
	Amount         float64
	Method         PaymentMethod
	Status         ReservationStatus
	InvoiceID      *string
	ExternalStatus string
	RawCallback    []byte
	ProofRef       *string
	PaidAt         *time.Time
}

func NewPayment(reservationID uuid.UUID, amount float64, method PaymentMethod) Payment {
	return Payment{
		ID:            uuid.New(),
		ReservationID: reservationID,
		Amount:        amount,
		Method:        method,
		Status:        StatusPendingPayment,
	}
}

// CallbackUpdate carries everything a verified gateway notification writes.
type CallbackUpdate struct {
	RawPayload     []byte
	ExternalStatus string
	MappedStatus   ReservationStatus
	PaidAt         *time.Time
}

// MapGatewayStatus translates a gateway-reported status string into the
// internal status. Unknown strings, including "pending", map back to
// PENDING_PAYMENT so a stray notification can never invent a transition.
func MapGatewayStatus(external string) ReservationStatus {
	switch strings.ToLower(external) {
	case "paid", "settled":
		return StatusConfirmed
	case "expired", "failed":
		return StatusCancelled
	default:
		return StatusPendingPayment
	}
}
