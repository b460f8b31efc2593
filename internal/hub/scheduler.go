package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/scstanton20/tago-analysis-worker/internal/correlation"
	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// scheduler drives the two periodic loops: heartbeat + stale eviction,
// and the metrics broadcast. Both fire immediately on start and then
// repeat on their interval. The loops exist only while at least one
// connection is registered; Start and Stop are idempotent.
type scheduler struct {
	clock          clockwork.Clock
	heartbeatEvery time.Duration
	metricsEvery   time.Duration
	onHeartbeat    func(context.Context)
	onMetrics      func(context.Context)

	mu     sync.Mutex
	stopCh chan struct{}
}

func newScheduler(clock clockwork.Clock, heartbeatEvery, metricsEvery time.Duration, onHeartbeat, onMetrics func(context.Context)) *scheduler {
	return &scheduler{
		clock:          clock,
		heartbeatEvery: heartbeatEvery,
		metricsEvery:   metricsEvery,
		onHeartbeat:    onHeartbeat,
		onMetrics:      onMetrics,
	}
}

// Start launches both loops. Starting an already-running scheduler is a
// safe no-op.
func (sc *scheduler) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.stopCh != nil {
		return
	}
	sc.stopCh = make(chan struct{})
	go sc.loop(sc.stopCh, sc.heartbeatEvery, sc.onHeartbeat)
	go sc.loop(sc.stopCh, sc.metricsEvery, sc.onMetrics)
	slog.Debug("Scheduler started")
}

// Stop halts both loops. Stopping an already-stopped scheduler is a safe
// no-op. Stop never waits for an in-flight tick: eviction and disconnect
// are cooperative completions, not interruptions.
func (sc *scheduler) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.stopCh == nil {
		return
	}
	close(sc.stopCh)
	sc.stopCh = nil
	slog.Debug("Scheduler stopped")
}

// Running reports whether the loops are live.
func (sc *scheduler) Running() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stopCh != nil
}

func (sc *scheduler) loop(stop <-chan struct{}, every time.Duration, tick func(context.Context)) {
	tick(correlation.WithID(context.Background(), correlation.NewID()))

	ticker := sc.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			tick(correlation.WithID(context.Background(), correlation.NewID()))
		}
	}
}

// heartbeatTick broadcasts a heartbeat to the global channel and then
// sweeps stale connections. Heartbeat deliveries count as pushes, so
// healthy connections get their liveness refreshed right before the sweep
// inspects it.
func (e *Engine) heartbeatTick(ctx context.Context) {
	metrics.HeartbeatTicksTotal.Inc()
	e.broadcastGlobal(domain.NewMessage(domain.TypeHeartbeat).
		With("timestamp", e.clock.Now().UnixMilli()))
	e.sweepStale(ctx)
}

// sweepStale evicts every connection whose liveness timestamp aged past
// the staleness threshold. The comparison is strictly greater-than: a
// connection exactly at the threshold is retained.
func (e *Engine) sweepStale(ctx context.Context) {
	e.mu.Lock()
	now := e.clock.Now()
	var stale []*Session
	for id, seen := range e.store.lastSeen {
		if now.Sub(seen) > e.cfg.StaleThreshold {
			stale = append(stale, e.store.sessions[id])
		}
	}
	for _, s := range stale {
		slog.InfoContext(ctx, "Evicting stale session",
			"session_id", s.ID.String(),
			"user_id", s.Identity.UserID,
			"age", now.Sub(e.store.lastSeen[s.ID]).String(),
		)
		metrics.StaleEvictionsTotal.Inc()
		e.removeLocked(s.ID)
	}
	e.mu.Unlock()

	for _, s := range stale {
		s.sink.Close("stale connection evicted")
	}
}

// Touch refreshes a session's liveness timestamp. Used by transports that
// observe inbound activity (pong frames) worth counting as liveness.
func (e *Engine) Touch(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store.sessions[sessionID]; ok {
		e.store.lastSeen[sessionID] = e.clock.Now()
	}
}
