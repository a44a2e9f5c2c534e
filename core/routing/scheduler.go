package routing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// tickInterval is the resolution of the scheduler's periodic check loop.
const tickInterval = time.Second

// FloodScheduler periodically polls NetworkState.ShouldFlood and triggers a
// new flood round when it fires, so an endpoint doesn't rely solely on
// reactive triggers (missing routes, nack thresholds) to refresh a stale
// topology. Structurally adapted from the dual-timer ADVERT scheduler
// pattern (device/advert/scheduler.go), repurposed from periodic
// self-advertisement broadcast to periodic flood-condition polling.
type FloodScheduler struct {
	log    *slog.Logger
	engine *Engine

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewFloodScheduler creates a scheduler that periodically checks whether
// engine's state requires a fresh flood.
func NewFloodScheduler(engine *Engine, logger *slog.Logger) *FloodScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FloodScheduler{
		log:    logger.WithGroup("flood-scheduler"),
		engine: engine,
	}
}

// Start begins the periodic check loop. Blocks until the context is
// cancelled; typically run in a goroutine.
func (s *FloodScheduler) Start(ctx context.Context, neighbors Neighbors) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopped {
		s.stopped = false
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkNow(neighbors)
		}
	}
}

// Stop cancels the scheduler's context, stopping the check loop. A Stop
// made while no loop is running makes the next Start return immediately.
func (s *FloodScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	} else {
		s.stopped = true
	}
}

func (s *FloodScheduler) checkNow(neighbors Neighbors) {
	if s.engine.state.ShouldFlood() {
		s.log.Debug("periodic check found flood condition")
		s.engine.SendFloodRequest(neighbors)
		s.engine.state.Reset()
	}
}
