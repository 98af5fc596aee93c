package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const sweepLockKey = "confirm:sweep:lock"
const sweepLockTTL = 30 * time.Second

// Sweeper periodically deletes expired confirmation tokens on a cron
// schedule, guarded by a Redis SETNX lock so that only one of several
// worker replicas runs a given sweep.
type Sweeper struct {
	store  *Store
	redis  *redis.Client
	logger *slog.Logger
	cron   *cron.Cron
}

func NewSweeper(store *Store, rdb *redis.Client, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, redis: rdb, logger: logger, cron: cron.New()}
}

// Start schedules the sweep to run every 5 minutes and blocks until ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 5m", func() {
		s.sweepOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	acquired, err := s.redis.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
	if err != nil {
		s.logger.Error("confirmation sweep lock failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer s.redis.Del(ctx, sweepLockKey)

	n, err := s.store.SweepExpired(ctx, nowMs())
	if err != nil {
		s.logger.Error("confirmation sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("confirmation token sweep", "evicted", n)
	}
}
