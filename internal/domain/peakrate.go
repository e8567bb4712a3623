package domain

import (
	"time"

	"github.com/google/uuid"
)

type RateType string

const (
	RateFixed      RateType = "FIXED"
	RatePercentage RateType = "PERCENTAGE"
)

// PeakRate is a date-ranged override to a room type's base nightly rate.
// The range is inclusive on both ends. FIXED replaces the nightly rate
// with Value; PERCENTAGE adds base*Value/100 on top of it.
type PeakRate struct {
	ID         uuid.UUID
	RoomTypeID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	RateType   RateType
	Value      float64
	CreatedAt  time.Time
}

func (p PeakRate) Covers(day time.Time) bool {
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}

// Apply returns the nightly rate for a day governed by this rule.
func (p PeakRate) Apply(base float64) float64 {
	if p.RateType == RateFixed {
		return p.Value
	}
	return base + base*p.Value/100
}
