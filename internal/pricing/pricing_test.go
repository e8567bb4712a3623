package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
)

type fakeRateSource struct {
	roomType *domain.RoomType
	rates    []domain.PeakRate
}

func (f *fakeRateSource) GetRoomType(ctx context.Context, id uuid.UUID) (*domain.RoomType, error) {
	return f.roomType, nil
}

func (f *fakeRateSource) ListPeakRates(ctx context.Context, roomTypeID uuid.UUID) ([]domain.PeakRate, error) {
	return f.rates, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPrice_NoPeakRates(t *testing.T) {
	src := &fakeRateSource{roomType: &domain.RoomType{ID: uuid.New(), BaseRate: 100}}
	calc := NewCalculator(src)

	total, err := calc.Price(context.Background(), src.roomType.ID, day(2026, 3, 10), day(2026, 3, 13))
	if err != nil {
		t.Fatal(err)
	}
	if total != 300 {
		t.Errorf("expected 300 for 3 nights at 100, got %v", total)
	}
}

func TestPrice_FixedOverride(t *testing.T) {
	rtID := uuid.New()
	src := &fakeRateSource{
		roomType: &domain.RoomType{ID: rtID, BaseRate: 100},
		rates: []domain.PeakRate{
			{RoomTypeID: rtID, StartDate: day(2026, 3, 10), EndDate: day(2026, 3, 10), RateType: domain.RateFixed, Value: 150},
		},
	}
	calc := NewCalculator(src)

	total, err := calc.Price(context.Background(), rtID, day(2026, 3, 10), day(2026, 3, 11))
	if err != nil {
		t.Fatal(err)
	}
	if total != 150 {
		t.Errorf("expected 150 for 1 night under FIXED 150, got %v", total)
	}
}

func TestPrice_PercentageOverride(t *testing.T) {
	rtID := uuid.New()
	src := &fakeRateSource{
		roomType: &domain.RoomType{ID: rtID, BaseRate: 100},
		rates: []domain.PeakRate{
			{RoomTypeID: rtID, StartDate: day(2026, 3, 11), EndDate: day(2026, 3, 12), RateType: domain.RatePercentage, Value: 50},
		},
	}
	calc := NewCalculator(src)

	// Night of the 10th at base, nights of the 11th and 12th at 150.
	total, err := calc.Price(context.Background(), rtID, day(2026, 3, 10), day(2026, 3, 13))
	if err != nil {
		t.Fatal(err)
	}
	if total != 400 {
		t.Errorf("expected 400, got %v", total)
	}
}

func TestPrice_FirstOverlappingRuleWins(t *testing.T) {
	rtID := uuid.New()
	src := &fakeRateSource{
		roomType: &domain.RoomType{ID: rtID, BaseRate: 100},
		rates: []domain.PeakRate{
			{RoomTypeID: rtID, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), RateType: domain.RateFixed, Value: 200},
			{RoomTypeID: rtID, StartDate: day(2026, 3, 10), EndDate: day(2026, 3, 10), RateType: domain.RateFixed, Value: 999},
		},
	}
	calc := NewCalculator(src)

	total, err := calc.Price(context.Background(), rtID, day(2026, 3, 10), day(2026, 3, 11))
	if err != nil {
		t.Fatal(err)
	}
	if total != 200 {
		t.Errorf("expected first rule in lookup order to win (200), got %v", total)
	}
}
