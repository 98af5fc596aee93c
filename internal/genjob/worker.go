package genjob

import (
	"context"
	"log/slog"
	"time"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/telemetry"
)

// Service queues generation jobs and runs the single-writer worker loop that
// claims, executes, and persists them.
type Service struct {
	store        *Store
	adapters     *adapter.Service
	generator    Generator
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewService(store *Store, adapters *adapter.Service, generator Generator, logger *slog.Logger, pollInterval time.Duration) *Service {
	return &Service{
		store:        store,
		adapters:     adapters,
		generator:    generator,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// Submit implements adapter.JobSubmitter: it enqueues a queued job and
// returns its id immediately; the worker loop picks it up asynchronously.
func (s *Service) Submit(ctx context.Context, platform, ownerID string) (string, error) {
	job, err := s.store.Insert(ctx, platform, ownerID)
	if err != nil {
		return "", apperr.Transient("queuing generation job", err)
	}
	return job.ID, nil
}

// RecoverStaleJobs flips orphaned running rows to failed; call once at
// startup before the worker loop begins claiming new work.
func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	n, err := s.store.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("recovered orphaned generation jobs", "count", n)
	}
	return nil
}

// Run is the single-writer worker loop: poll, claim, execute, repeat until
// ctx is cancelled. One process runs this; claiming is exactly-once per job
// via Store.ClaimNext's row-level lock.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				claimed, err := s.claimAndRun(ctx)
				if err != nil {
					s.logger.Error("generation worker: claim/run cycle failed", "error", err)
					break
				}
				if !claimed {
					break
				}
			}
		}
	}
}

// claimAndRun claims at most one job and runs it to completion, returning
// whether a job was claimed (so the caller can drain the queue before
// waiting for the next poll tick).
func (s *Service) claimAndRun(ctx context.Context) (bool, error) {
	job, err := s.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	s.runJob(ctx, job)
	return true, nil
}

func (s *Service) runJob(ctx context.Context, job *Job) {
	ownerID := ""
	if job.OwnerKeyID != nil {
		ownerID = *job.OwnerKeyID
	}

	source, err := s.generator.Generate(ctx, job.Platform, func(line string) {
		if appendErr := s.store.AppendLog(ctx, job.ID, line); appendErr != nil {
			s.logger.Warn("appending job log", "job_id", job.ID, "error", appendErr)
		}
	})
	if err != nil {
		telemetry.GenerationJobsTotal.WithLabelValues(StatusFailed).Inc()
		if failErr := s.store.Fail(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Error("marking job failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if _, err := s.adapters.Upload(ctx, job.Platform, ownerID, source); err != nil {
		telemetry.GenerationJobsTotal.WithLabelValues(StatusFailed).Inc()
		if failErr := s.store.Fail(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Error("marking job failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	telemetry.GenerationJobsTotal.WithLabelValues(StatusComplete).Inc()
	if err := s.store.Complete(ctx, job.ID, source); err != nil {
		s.logger.Error("marking job complete", "job_id", job.ID, "error", err)
	}
}
