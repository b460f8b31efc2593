package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	apperrors "github.com/scstanton20/tago-analysis-worker/internal/errors"
	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// sessionStore owns the live sessions and their liveness timestamps. The
// transport's own liveness bookkeeping is not trusted: lastSeen is
// advanced only by this engine's successful pushes. Not safe for
// concurrent use; the engine mutex guards all access.
type sessionStore struct {
	sessions map[uuid.UUID]*Session
	lastSeen map[uuid.UUID]time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[uuid.UUID]*Session),
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

func (st *sessionStore) byUser(userID string) []*Session {
	var out []*Session
	for _, s := range st.sessions {
		if s.Identity.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (st *sessionStore) all() []*Session {
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Connect registers a new client stream: allocates a session, joins it to
// the global channel, and records the first liveness timestamp. The first
// live connection starts the scheduler loops; an idle process runs no
// background work.
func (e *Engine) Connect(ctx context.Context, identity domain.Identity, sink Sink) (*Session, error) {
	if identity.UserID == "" {
		return nil, apperrors.InvalidInput("userId is required")
	}

	s := newSession(identity, sink)

	e.mu.Lock()
	e.store.sessions[s.ID] = s
	e.store.lastSeen[s.ID] = e.clock.Now()
	e.channels.global.add(s)
	if len(e.store.sessions) == 1 {
		e.scheduler.Start()
	}
	total := len(e.store.sessions)
	e.mu.Unlock()

	metrics.ConnectedSessions.Set(float64(total))
	slog.Info("Session connected",
		"session_id", s.ID.String(),
		"user_id", identity.UserID,
		"total_sessions", total,
	)

	// Welcome handshake: session id first, then the current worker state.
	e.pushTargets([]*Session{s}, domain.NewMessage(domain.TypeConnection).
		With("sessionId", s.ID.String()))

	health := e.health.Snapshot()
	e.pushTargets([]*Session{s}, domain.NewMessage(domain.TypeInit).
		With("status", string(health.Status)).
		With("uptime", health.Uptime).
		With("message", health.Message))

	return s, nil
}

// Remove deletes a session. Removing an unknown session is a no-op, and a
// non-empty userID must match the session's owner. Removal deregisters
// the session from every channel it belongs to, so channel emptiness
// cleanup always runs.
func (e *Engine) Remove(userID string, sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.store.sessions[sessionID]
	if !ok {
		return
	}
	if userID != "" && s.Identity.UserID != userID {
		return
	}
	e.removeLocked(sessionID)
}

// removeLocked is the single teardown path. Idempotent: callers may race
// on the same id. Caller holds e.mu and is responsible for closing the
// sink outside the lock when the transport should be torn down.
func (e *Engine) removeLocked(sessionID uuid.UUID) {
	s, ok := e.store.sessions[sessionID]
	if !ok {
		return
	}
	s.connected = false

	for analysisID := range s.logSubs {
		e.leaveChannelLocked(s, KindLogs, analysisID)
	}
	for analysisID := range s.statsSubs {
		e.leaveChannelLocked(s, KindStats, analysisID)
	}
	if s.metricsSub {
		e.channels.metricsCh.remove(s.ID)
		s.metricsSub = false
	}
	e.channels.global.remove(s.ID)

	delete(e.store.sessions, sessionID)
	delete(e.store.lastSeen, sessionID)

	metrics.ConnectedSessions.Set(float64(len(e.store.sessions)))
	if len(e.store.sessions) == 0 {
		e.scheduler.Stop()
	}

	slog.Debug("Session removed",
		"session_id", sessionID.String(),
		"user_id", s.Identity.UserID,
		"remaining_sessions", len(e.store.sessions),
	)
}

// SendToUser fans a message out to every connection belonging to the
// identity. Returns the number of successful deliveries; dead connections
// are removed along the way.
func (e *Engine) SendToUser(userID string, msg domain.Message) int {
	e.mu.Lock()
	targets := e.store.byUser(userID)
	e.mu.Unlock()

	return e.pushTargets(targets, msg)
}

// DisconnectUser closes every connection belonging to the identity and
// returns how many there were.
func (e *Engine) DisconnectUser(userID string) int {
	e.mu.Lock()
	targets := e.store.byUser(userID)
	for _, s := range targets {
		e.removeLocked(s.ID)
	}
	e.mu.Unlock()

	for _, s := range targets {
		s.sink.Close("disconnected")
	}
	if len(targets) > 0 {
		slog.Info("User disconnected", "user_id", userID, "sessions", len(targets))
	}
	return len(targets)
}

// ForceLogout attempts a best-effort termination notice, waits the
// configured grace period only if at least one notice was delivered, then
// disconnects every remaining connection of the identity.
func (e *Engine) ForceLogout(ctx context.Context, userID, reason string) int {
	e.mu.Lock()
	targets := e.store.byUser(userID)
	e.mu.Unlock()
	if len(targets) == 0 {
		return 0
	}

	notice := domain.NewMessage(domain.TypeForceLogout).With("reason", reason)
	if notified := e.pushTargets(targets, notice); notified > 0 {
		e.clock.Sleep(e.cfg.LogoutGrace)
	}

	metrics.ForcedLogoutsTotal.Inc()
	slog.Info("Forced logout", "user_id", userID, "reason", reason)
	return e.DisconnectUser(userID)
}

// FindByID looks a session up without side effects.
func (e *Engine) FindByID(sessionID uuid.UUID) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.store.sessions[sessionID]
	return s, ok
}

// ListByUser returns every live session of an identity.
func (e *Engine) ListByUser(userID string) []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.byUser(userID)
}

// ListAdmins returns every live session with an admin identity.
func (e *Engine) ListAdmins() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Session
	for _, s := range e.store.sessions {
		if s.Identity.IsAdmin() {
			out = append(out, s)
		}
	}
	return out
}
