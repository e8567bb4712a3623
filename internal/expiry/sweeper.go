package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/observability"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	ListExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	CancelExpired(ctx context.Context, res domain.Reservation, now time.Time) (domain.UpdateOutcome, error)
}

// Sweeper cancels reservations whose payment hold has lapsed and restores
// their ledger capacity. It runs on a timer, as an admin action, and
// inline before owner actions; overlapping invocations are safe because
// each candidate's flip is conditioned on its pre-sweep status.
type Sweeper struct {
	store  Store
	logger observability.Logger
}

func NewSweeper(store Store, logger observability.Logger) *Sweeper {
	return &Sweeper{store: store, logger: logger}
}

// SweepExpired cancels every lapsed candidate in its own transaction and
// returns the IDs actually cancelled in this pass. A failed candidate is
// logged and skipped; the next invocation picks it up again.
func (s *Sweeper) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {
	now := time.Now()
	candidates, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var cancelled []uuid.UUID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, res := range candidates {
		res := res
		g.Go(func() error {
			outcome, err := s.store.CancelExpired(gctx, res, now)
			if err != nil {
				s.logger.WithField("reservation_id", res.ID).WithError(err).Error("failed to cancel expired reservation")
				return nil
			}
			if outcome.Applied() {
				observability.ReservationsExpired.Inc()
				mu.Lock()
				cancelled = append(cancelled, res.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cancelled, err
	}
	return cancelled, nil
}

// Run sweeps on an interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := s.SweepExpired(ctx)
			if err != nil {
				s.logger.WithError(err).Error("expiry sweep failed")
				continue
			}
			if len(cancelled) > 0 {
				s.logger.WithField("count", len(cancelled)).Info("expiry sweep cancelled reservations")
			}
		}
	}
}
