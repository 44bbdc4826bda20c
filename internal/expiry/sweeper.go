// Package expiry releases capacity held by reservations nobody finished.
package expiry

import (
	"context"
	"time"

	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"golang.org/x/sync/errgroup"
)

type Source interface {
	Expired(ctx context.Context, limit int) ([]domain.Reservation, error)
}

type Settler interface {
	SettleExpired(ctx context.Context, res domain.Reservation) (bool, error)
}

type Sweeper struct {
	source      Source
	settler     Settler
	batch       int
	concurrency int
	logger      observability.Logger
}

func NewSweeper(source Source, settler Settler, batch int, logger observability.Logger) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{source: source, settler: settler, batch: batch, concurrency: 8, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval.String()).Info("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.WithError(err).Error("expiry sweep failed")
			}
		}
	}
}

// RunOnce settles one batch of expired reservations and returns how many gave
// capacity back. A failure on one reservation does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.source.Expired(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	results := make([]bool, len(expired))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, res := range expired {
		i, res := i, res
		g.Go(func() error {
			released, err := s.settler.SettleExpired(gctx, res)
			if err != nil {
				s.logger.WithError(err).WithField("reservation_id", res.ID).Warn("settle expired reservation")
				return nil
			}
			results[i] = released
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	released := 0
	for _, ok := range results {
		if ok {
			released++
		}
	}
	observability.ExpiredReservations.Add(float64(released))
	s.logger.WithFields(map[string]interface{}{"found": len(expired), "released": released}).Info("expiry sweep done")
	return released, nil
}
