// Package liveness tracks when each neighbor was last heard from, purely
// for diagnostics. Unlike the routing engine's ack/nack-driven weight
// feedback, nothing here ever evicts a neighbor or influences a routing
// decision — it only logs staleness, so an operator watching a node's logs
// can see a neighbor going quiet before the failure-counter thresholds in
// core/netstate would ever notice.
//
// Structurally adapted from device/connection/manager.go's keep-alive
// tracker, with the disconnect callback and eviction removed: this package
// answers "how stale is this neighbor" rather than "should this neighbor be
// dropped".
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/clock"
)

// DefaultStaleAfter is the default age past which a neighbor is logged as
// stale by the periodic check loop.
const DefaultStaleAfter = 30 * time.Second

// checkInterval is the resolution of the periodic staleness scan.
const checkInterval = time.Second

// Config tunes the Tracker's staleness threshold and logging.
type Config struct {
	// StaleAfter is the age past which a neighbor is reported stale.
	// Default: DefaultStaleAfter.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Tracker records the last-seen time of every neighbor this endpoint has
// heard from, for diagnostic logging only.
type Tracker struct {
	cfg Config
	log *slog.Logger
	clk *clock.Clock

	mu       sync.Mutex
	lastSeen map[core.NodeId]time.Time
	cancel   context.CancelFunc
}

// New creates a Tracker backed by clk.
func New(cfg Config, clk *clock.Clock) *Tracker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		log:      logger.WithGroup("liveness"),
		clk:      clk,
		lastSeen: make(map[core.NodeId]time.Time),
	}
}

// Touch records that id was just heard from.
func (t *Tracker) Touch(id core.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[id] = t.clk.Now()
}

// Forget drops id from the tracker, e.g. once the routing engine has
// evicted it and its staleness is no longer interesting.
func (t *Tracker) Forget(id core.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, id)
}

// LastSeen returns when id was last touched, if it is tracked at all.
func (t *Tracker) LastSeen(id core.NodeId) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastSeen[id]
	return ts, ok
}

// Stale returns the ids whose last-seen age exceeds the configured
// StaleAfter threshold, purely for logging or an operator dashboard.
func (t *Tracker) Stale() []core.NodeId {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []core.NodeId
	now := t.clk.Now()
	for id, ts := range t.lastSeen {
		if now.Sub(ts) > t.cfg.StaleAfter {
			out = append(out, id)
		}
	}
	return out
}

// Start begins a periodic scan that logs every currently stale neighbor at
// debug level. Blocks until ctx is cancelled; typically run in a goroutine.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range t.Stale() {
				t.log.Debug("neighbor has gone quiet", "neighbor", id.String())
			}
		}
	}
}

// Stop cancels the periodic scan started by Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
