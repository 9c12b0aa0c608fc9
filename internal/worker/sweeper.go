package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/store"
)

// Sweeper periodically abandons unclaimed COMPLETE jobs and purges
// expired staged recipes.
type Sweeper struct {
	store        *store.Store
	interval     time.Duration
	abandonAfter time.Duration
	logger       *zap.Logger
}

func NewSweeper(st *store.Store, interval, abandonAfter time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:        st,
		interval:     interval,
		abandonAfter: abandonAfter,
		logger:       logger,
	}
}

// Run sweeps on a fixed interval until the context is canceled. One sweep
// runs immediately at startup to catch rows left over from a restart.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.abandonAfter)
	abandoned, err := s.store.AbandonStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("abandon stale jobs", zap.Error(err))
	} else if abandoned > 0 {
		s.logger.Info("abandoned stale jobs", zap.Int64("count", abandoned))
	}

	purged, err := s.store.PurgeExpiredStaged(ctx)
	if err != nil {
		s.logger.Error("purge staged recipes", zap.Error(err))
	} else if purged > 0 {
		s.logger.Info("purged expired staged recipes", zap.Int64("count", purged))
	}
}
