package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/leadership"
)

// LeaderAwareScheduler wraps the scheduler so only the elected leader runs
// export jobs. Followers keep the election campaign alive and take over the
// schedule when leadership lands on them.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  *leadership.Election
	logger    zerolog.Logger

	ctx context.Context

	mu        sync.Mutex
	running   bool
	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler *Service, election *leadership.Election, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the election campaign and manages the scheduler lifecycle
// around leadership changes.
func (w *LeaderAwareScheduler) Start(ctx context.Context) error {
	w.ctx = ctx

	w.logger.Info().Msg("starting leader-aware scheduler")

	if err := w.election.Start(ctx); err != nil {
		return err
	}

	go w.monitorLeadership()

	return nil
}

// Stop stops the scheduler if running and releases leadership.
func (w *LeaderAwareScheduler) Stop() error {
	w.logger.Info().Msg("stopping leader-aware scheduler")

	w.stopScheduler()

	return w.election.Stop()
}

// IsLeader returns whether this instance is the leader.
func (w *LeaderAwareScheduler) IsLeader() bool {
	return w.election.IsLeader()
}

// monitorLeadership watches for leadership changes and starts or stops the
// scheduler accordingly.
func (w *LeaderAwareScheduler) monitorLeadership() {
	leaderCh := w.election.LeaderCh()

	// Leadership may predate the subscription, so check once up front. The
	// buffered notification for the same transition is absorbed by the
	// already-running guard.
	if w.election.IsLeader() {
		w.startScheduler()
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				w.logger.Info().Msg("became leader, starting export scheduler")
				w.startScheduler()
			} else {
				w.logger.Warn().Msg("lost leadership, stopping export scheduler")
				w.stopScheduler()
			}
		}
	}
}

// startScheduler starts the scheduler loop in a goroutine.
func (w *LeaderAwareScheduler) startScheduler() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Debug().Msg("scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	done := make(chan struct{})
	w.cancelRun = cancel
	w.runDone = done
	w.running = true

	go func() {
		defer close(done)
		if err := w.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("scheduler error")
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()
}

// stopScheduler stops the running scheduler loop and waits for it to drain.
func (w *LeaderAwareScheduler) stopScheduler() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancelRun
	done := w.runDone
	w.cancelRun = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
