package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Scheduler triggers pipeline runs periodically or on demand. Runs never overlap.
type Scheduler struct {
	pipeline    *Pipeline
	interval    time.Duration
	broadcaster useCases.Broadcaster // optional
	log         *zap.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *model.RunReport
}

func NewScheduler(pipeline *Pipeline, interval time.Duration, broadcaster useCases.Broadcaster, log *zap.Logger) *Scheduler {
	return &Scheduler{
		pipeline:    pipeline,
		interval:    interval,
		broadcaster: broadcaster,
		log:         log.Named("scheduler"),
	}
}

// RunForever runs the pipeline every interval until ctx is cancelled. A zero
// interval disables periodic runs.
func (s *Scheduler) RunForever(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	s.log.Info("periodic refresh enabled", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Warn("skipping tick", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a full refresh unless one is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.RunReport, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	report := s.pipeline.Run(ctx, RunOptions{})

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.BroadcastRun(report)
	}
	return report, nil
}

// Last returns the most recent report, or nil before the first run.
func (s *Scheduler) Last() *model.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
