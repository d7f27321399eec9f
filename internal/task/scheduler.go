// Package task runs periodic background jobs such as event rollups.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSchedulerInterval = time.Hour

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs its jobs on a fixed interval and on demand.
type Scheduler struct {
	interval     time.Duration
	jobs         []Job
	logger       *zap.Logger
	trigger      chan struct{}
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a Scheduler. A non-positive interval falls back to one hour.
func NewScheduler(interval time.Duration, logger *zap.Logger, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		jobs:     jobs,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop. Calling Start on a running scheduler does nothing.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || len(scheduler.jobs) == 0 {
		return
	}
	scheduler.controlMutex.Lock()
	defer scheduler.controlMutex.Unlock()
	if scheduler.cancel != nil {
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})
	go scheduler.loop(runtimeCtx, scheduler.done)
}

// Trigger requests an immediate run without waiting for the interval.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the running pass to finish.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce runs every job in order, logging failures and continuing with the next job.
func (scheduler *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range scheduler.jobs {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			scheduler.logger.Warn("job_failed", zap.String("job", job.Name()), zap.Error(err))
			continue
		}
		scheduler.logger.Debug("job_completed", zap.String("job", job.Name()), zap.Duration("dur", time.Since(started)))
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.RunOnce(ctx)
			ticker.Reset(scheduler.interval)
		case <-ticker.C:
			scheduler.RunOnce(ctx)
		}
	}
}
