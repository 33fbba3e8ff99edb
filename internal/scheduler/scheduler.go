// Package scheduler runs the two periodic adherence jobs: dose materialization
// and the missed-dose sweep.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/metrics"
)

const (
	jobMaterialize = "materialize"
	jobSweep       = "sweep"
)

// Lease is an optional cross-replica guard for a job tick
type Lease interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
}

type Scheduler struct {
	materializer        *Materializer
	sweeper             *Sweeper
	lease               Lease
	materializeInterval time.Duration
	sweepInterval       time.Duration
	startDelay          time.Duration
	notifyCh            chan struct{}
	logger              *zap.Logger
}

func New(materializer *Materializer, sweeper *Sweeper, materializeInterval, sweepInterval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		materializer:        materializer,
		sweeper:             sweeper,
		materializeInterval: materializeInterval,
		sweepInterval:       sweepInterval,
		startDelay:          2 * time.Second,
		notifyCh:            make(chan struct{}, 1),
		logger:              logger,
	}
}

// SetLease enables the cross-replica lease. Without one every replica runs every tick.
func (s *Scheduler) SetLease(l Lease) {
	s.lease = l
}

// Notify triggers an immediate run of both jobs. Non-blocking if a run is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started",
		zap.Duration("materialize_interval", s.materializeInterval),
		zap.Duration("sweep_interval", s.sweepInterval),
	)
	materializeTicker := time.NewTicker(s.materializeInterval)
	defer materializeTicker.Stop()
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	// Wait a bit for migrations to complete before first run
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startDelay):
	}

	s.runMaterialize(ctx, true)
	s.runSweep(ctx, true)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-materializeTicker.C:
			s.runMaterialize(ctx, true)
		case <-sweepTicker.C:
			s.runSweep(ctx, true)
		case <-s.notifyCh:
			s.logger.Debug("Scheduler triggered by notification")
			s.runMaterialize(ctx, false)
			s.runSweep(ctx, false)
		}
	}
}

func (s *Scheduler) runMaterialize(ctx context.Context, leased bool) {
	if leased && !s.acquire(ctx, jobMaterialize, s.materializeInterval) {
		return
	}
	start := time.Now()
	result, err := s.materializer.MaterializeDoses(ctx)
	metrics.RecordJob(jobMaterialize, time.Since(start))
	if err != nil {
		s.logger.Error("Dose materialization failed, retrying next tick", zap.Error(err))
		return
	}
	s.logger.Info("Dose materialization finished",
		zap.Int("reminders", result.Reminders),
		zap.Int("created", result.Created),
		zap.Int("failed", result.Failed),
		zap.Int("notified", result.Notified),
	)
}

func (s *Scheduler) runSweep(ctx context.Context, leased bool) {
	if leased && !s.acquire(ctx, jobSweep, s.sweepInterval) {
		return
	}
	start := time.Now()
	swept, err := s.sweeper.SweepMissed(ctx)
	metrics.RecordJob(jobSweep, time.Since(start))
	if err != nil {
		s.logger.Error("Missed-dose sweep failed, retrying next tick", zap.Error(err))
		return
	}
	s.logger.Info("Missed-dose sweep finished", zap.Int64("missed", swept))
}

// acquire holds the lease for slightly less than one interval so the next tick
// is free to run. Lease errors never block a job.
func (s *Scheduler) acquire(ctx context.Context, job string, interval time.Duration) bool {
	if s.lease == nil {
		return true
	}
	ttl := interval - time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.lease.Acquire(ctx, job, ttl)
	if err != nil {
		s.logger.Warn("Lease unavailable, running job anyway", zap.String("job", job), zap.Error(err))
		return true
	}
	if !ok {
		s.logger.Debug("Job held by another replica", zap.String("job", job))
	}
	return ok
}
