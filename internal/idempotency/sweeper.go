package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically runs CleanupExpired on a cron schedule. It is started
// from the worker process alongside the generation-job recovery sweep, never
// from request-serving instances.
type Sweeper struct {
	store  *Store
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

func NewSweeper(store *Store, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, ttl: ttl, logger: logger, cron: cron.New()}
}

// Start schedules the cleanup to run hourly and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@hourly", func() {
		n, err := s.store.CleanupExpired(ctx, s.ttl)
		if err != nil {
			s.logger.Error("idempotency cleanup failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("idempotency cleanup", "evicted", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
