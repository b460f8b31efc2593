// Package hub implements the real-time distribution engine: session
// lifecycle, the multi-channel subscription model, permission-filtered
// fan-out, and liveness scheduling.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// Config carries the engine's policy knobs. Thresholds and intervals are
// configuration, not fixed behavior.
type Config struct {
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	MetricsInterval   time.Duration
	LogoutGrace       time.Duration
}

// Collaborators are the constructor-injected read-only dependencies.
type Collaborators struct {
	Directory   domain.AnalysisDirectory
	Permissions domain.PermissionHelper
	Metrics     domain.MetricsSource
	DNSStats    domain.DNSStatsSource
	LogStats    domain.LogStatsSource
}

// Engine composes the session store, channel registry, subscription
// manager, broadcast router, and liveness scheduler behind one facade.
// It is constructed explicitly by the process bootstrap and passed by
// handle to every route handler; there is no package-level instance.
//
// One mutex serializes every mutation of the session map, channel maps,
// and subscription sets. Collaborator calls and push attempts run against
// snapshots taken under the lock, never while holding it.
type Engine struct {
	cfg    Config
	clock  clockwork.Clock
	health *domain.HealthState

	directory  domain.AnalysisDirectory
	perms      domain.PermissionHelper
	metricsSrc domain.MetricsSource
	dnsStats   domain.DNSStatsSource
	logStats   domain.LogStatsSource

	scheduler *scheduler

	mu       sync.Mutex
	store    *sessionStore
	channels *registry
}

// New creates an engine. The scheduler loops stay idle until the first
// connection registers.
func New(cfg Config, deps Collaborators, health *domain.HealthState, clock clockwork.Clock) *Engine {
	e := &Engine{
		cfg:        cfg,
		clock:      clock,
		health:     health,
		directory:  deps.Directory,
		perms:      deps.Permissions,
		metricsSrc: deps.Metrics,
		dnsStats:   deps.DNSStats,
		logStats:   deps.LogStats,
		store:      newSessionStore(),
		channels:   newRegistry(),
	}
	e.scheduler = newScheduler(clock, cfg.HeartbeatInterval, cfg.MetricsInterval, e.heartbeatTick, e.metricsTick)
	return e
}

// Health exposes the worker health descriptor for probes and bootstrap.
func (e *Engine) Health() *domain.HealthState {
	return e.health
}

// SetStatus transitions the worker health descriptor. The new state shows
// up in the next statusUpdate broadcast.
func (e *Engine) SetStatus(status domain.WorkerStatus, message string) {
	e.health.Set(status, message)
}

// Stats is the engine's operational counter snapshot.
type Stats struct {
	Sessions           int                 `json:"sessions"`
	LogChannels        int                 `json:"logChannels"`
	StatsChannels      int                 `json:"statsChannels"`
	MetricsSubscribers int                 `json:"metricsSubscribers"`
	SchedulerRunning   bool                `json:"schedulerRunning"`
	Status             domain.WorkerStatus `json:"status"`
	Uptime             float64             `json:"uptime"`
}

// GetStats returns current engine counters.
func (e *Engine) GetStats() Stats {
	health := e.health.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Sessions:           len(e.store.sessions),
		LogChannels:        len(e.channels.logs),
		StatsChannels:      len(e.channels.stats),
		MetricsSubscribers: e.channels.metricsCh.size(),
		SchedulerRunning:   e.scheduler.Running(),
		Status:             health.Status,
		Uptime:             health.Uptime,
	}
}

// Stop shuts the engine down: scheduler loops halt and every connection
// is closed with a close frame.
func (e *Engine) Stop() {
	e.health.Set(domain.StatusShuttingDown, "worker shutting down")
	e.scheduler.Stop()

	e.mu.Lock()
	targets := e.store.all()
	for _, s := range targets {
		e.removeLocked(s.ID)
	}
	e.mu.Unlock()

	for _, s := range targets {
		s.sink.Close("worker shutting down")
	}
	slog.Info("Engine stopped", "disconnected_sessions", len(targets))
}

// pushTargets delivers one message to each target independently. A failed
// push never aborts delivery to siblings: failures are collected during
// iteration and the offending sessions removed in a second pass. Every
// successful push refreshes the session's liveness timestamp. Returns the
// number of successful deliveries.
func (e *Engine) pushTargets(targets []*Session, msg domain.Message) int {
	if len(targets) == 0 {
		return 0
	}

	delivered := make([]*Session, 0, len(targets))
	var failed []*Session
	for _, s := range targets {
		if err := s.sink.Push(msg); err != nil {
			failed = append(failed, s)
			continue
		}
		delivered = append(delivered, s)
	}
	metrics.MessagesDeliveredTotal.WithLabelValues(string(msg.Type())).Add(float64(len(delivered)))

	now := e.clock.Now()
	e.mu.Lock()
	for _, s := range delivered {
		if _, live := e.store.sessions[s.ID]; live {
			e.store.lastSeen[s.ID] = now
		}
	}
	for _, s := range failed {
		slog.Warn("Push failed, removing session",
			"session_id", s.ID.String(),
			"user_id", s.Identity.UserID,
			"message_type", string(msg.Type()),
		)
		metrics.DeliveryFailuresTotal.Inc()
		e.removeLocked(s.ID)
	}
	e.mu.Unlock()

	for _, s := range failed {
		s.sink.Close("delivery failure")
	}

	return len(delivered)
}

// broadcastGlobal fans a message out to every live session.
func (e *Engine) broadcastGlobal(msg domain.Message) int {
	e.mu.Lock()
	targets := e.channels.global.snapshot()
	e.mu.Unlock()

	metrics.BroadcastsTotal.WithLabelValues("global").Inc()
	return e.pushTargets(targets, msg)
}
