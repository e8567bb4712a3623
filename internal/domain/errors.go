package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidDateRange     = errors.New("start date must be before end date")
	ErrRoomTypeRequired     = errors.New("room type is required for room-by-room properties")
	ErrUnavailable          = errors.New("no availability for the requested dates")
	ErrAlreadyConfirmed     = errors.New("reservation is already confirmed")
	ErrAlreadyCancelled     = errors.New("reservation is already cancelled")
	ErrAwaitingPayment      = errors.New("reservation is still awaiting payment")
	ErrExpiredMeanwhile     = errors.New("reservation expired while being processed")
	ErrAutoCancelled        = errors.New("reservation was auto-cancelled by the expiry sweep")
	ErrProofAlreadyExists   = errors.New("payment proof already submitted")
	ErrWrongPaymentMethod   = errors.New("operation not valid for this payment method")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotificationFailed   = errors.New("confirmation saved but guest notification failed")
)
