package domain

import (
	"time"

	"github.com/google/uuid"
)

type RentalMode string

const (
	RentalWholeProperty RentalMode = "WHOLE_PROPERTY"
	RentalRoomByRoom    RentalMode = "ROOM_BY_ROOM"
)

type Property struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Name       string
	RentalMode RentalMode
}

// RoomType is a bookable category of inventory with its own nightly base
// rate and total capacity. A whole-property rental has exactly one room
// type flagged IsWholeUnit.
type RoomType struct {
	ID            uuid.UUID
	PropertyID    uuid.UUID
	Name          string
	BaseRate      float64
	TotalCapacity int
	IsWholeUnit   bool
}

// AvailabilityRecord is the per-(room type, date) remaining-capacity
// counter. Rows are seeded lazily from TotalCapacity on first write.
type AvailabilityRecord struct {
	RoomTypeID     uuid.UUID
	Day            time.Time
	AvailableCount int
}
