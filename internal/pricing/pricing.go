package pricing

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
)

// RateSource supplies the base rate and override rules consulted at
// booking time. The postgres repository satisfies it.
type RateSource interface {
	GetRoomType(ctx context.Context, id uuid.UUID) (*domain.RoomType, error)
	ListPeakRates(ctx context.Context, roomTypeID uuid.UUID) ([]domain.PeakRate, error)
}

type Calculator struct {
	src RateSource
}

func NewCalculator(src RateSource) *Calculator {
	return &Calculator{src: src}
}

// Price totals the nightly rates for [start, end). Each night uses the
// base rate unless a peak-rate rule covers it; the first covering rule in
// lookup order wins. Pure with respect to the rule table at call time.
func (c *Calculator) Price(ctx context.Context, roomTypeID uuid.UUID, start, end time.Time) (float64, error) {
	rt, err := c.src.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return 0, errors.Wrap(err, "load room type")
	}

	rates, err := c.src.ListPeakRates(ctx, roomTypeID)
	if err != nil {
		return 0, errors.Wrap(err, "load peak rates")
	}

	var total float64
	for _, day := range domain.Nights(start, end) {
		nightly := rt.BaseRate
		for _, rate := range rates {
			if rate.Covers(day) {
				nightly = rate.Apply(rt.BaseRate)
				break
			}
		}
		total += nightly
	}
	return total, nil
}
