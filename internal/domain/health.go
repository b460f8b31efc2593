package domain

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// WorkerStatus is the coarse health state of the worker process.
type WorkerStatus string

const (
	StatusStarting     WorkerStatus = "starting"
	StatusReady        WorkerStatus = "ready"
	StatusDegraded     WorkerStatus = "degraded"
	StatusShuttingDown WorkerStatus = "shutting_down"
)

// HealthView is a point-in-time copy of the worker health descriptor.
type HealthView struct {
	Status    WorkerStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
	Uptime    float64      `json:"uptime"`
}

// HealthState is the process-wide worker health descriptor. It is written
// only by explicit state transitions and read by every status/metrics
// broadcast.
type HealthState struct {
	clock clockwork.Clock

	mu        sync.RWMutex
	status    WorkerStatus
	message   string
	startedAt time.Time
}

// NewHealthState creates a descriptor in the starting state.
func NewHealthState(clock clockwork.Clock) *HealthState {
	return &HealthState{
		clock:     clock,
		status:    StatusStarting,
		startedAt: clock.Now(),
	}
}

// Set transitions the worker status.
func (h *HealthState) Set(status WorkerStatus, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.message = message
}

// Snapshot returns a copy of the current state with computed uptime.
func (h *HealthState) Snapshot() HealthView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthView{
		Status:    h.status,
		Message:   h.message,
		StartedAt: h.startedAt,
		Uptime:    h.clock.Since(h.startedAt).Seconds(),
	}
}

// Ready reports whether the worker accepts traffic.
func (h *HealthState) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status == StatusReady || h.status == StatusDegraded
}
