package hub

import (
	"github.com/google/uuid"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// Sink is the outbound half of a client transport. Push must not block:
// a full buffer or closed transport is reported as an error, which the
// engine treats as a dead connection. Close is safe to call more than once.
type Sink interface {
	Push(msg domain.Message) error
	Close(reason string)
}

// Session is one live client stream plus its subscription state. The
// liveness timestamp lives in the store's lastSeen map, deliberately
// decoupled from whatever the transport tracks internally.
type Session struct {
	ID       uuid.UUID
	Identity domain.Identity

	sink       Sink
	logSubs    map[string]struct{}
	statsSubs  map[string]struct{}
	metricsSub bool
	connected  bool
}

func newSession(identity domain.Identity, sink Sink) *Session {
	return &Session{
		ID:        uuid.New(),
		Identity:  identity,
		sink:      sink,
		logSubs:   make(map[string]struct{}),
		statsSubs: make(map[string]struct{}),
		connected: true,
	}
}

// subs returns the subscription set for the given kind.
func (s *Session) subs(kind SubKind) map[string]struct{} {
	if kind == KindStats {
		return s.statsSubs
	}
	return s.logSubs
}

// Connected reports whether the session is still live.
func (s *Session) Connected() bool {
	return s.connected
}

// MetricsSubscribed reports whether the session opted into the metrics channel.
func (s *Session) MetricsSubscribed() bool {
	return s.metricsSub
}
