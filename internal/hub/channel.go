package hub

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// SubKind distinguishes the two lazily-created channel families.
type SubKind string

const (
	KindLogs  SubKind = "logs"
	KindStats SubKind = "stats"
)

// Valid reports whether the kind names a known channel family.
func (k SubKind) Valid() bool {
	return k == KindLogs || k == KindStats
}

// channel is a named set of sessions sharing a broadcast stream.
// Not safe for concurrent use: the engine mutex guards all access.
type channel struct {
	name    string
	members map[uuid.UUID]*Session
}

func newChannel(name string) *channel {
	return &channel{
		name:    name,
		members: make(map[uuid.UUID]*Session),
	}
}

func (c *channel) add(s *Session) {
	c.members[s.ID] = s
}

func (c *channel) remove(id uuid.UUID) {
	delete(c.members, id)
}

func (c *channel) size() int {
	return len(c.members)
}

// snapshot copies the member list so pushes can run outside the engine
// lock while removals mutate the underlying map.
func (c *channel) snapshot() []*Session {
	out := make([]*Session, 0, len(c.members))
	for _, s := range c.members {
		out = append(out, s)
	}
	return out
}

// registry owns all broadcast channels. The global and metrics channels
// always exist; logs/stats channels are created on first subscribe and
// dropped as soon as their member count reaches zero.
type registry struct {
	global    *channel
	metricsCh *channel
	logs      map[string]*channel
	stats     map[string]*channel
}

func newRegistry() *registry {
	return &registry{
		global:    newChannel("global"),
		metricsCh: newChannel("metrics"),
		logs:      make(map[string]*channel),
		stats:     make(map[string]*channel),
	}
}

func (r *registry) kindMap(kind SubKind) map[string]*channel {
	if kind == KindStats {
		return r.stats
	}
	return r.logs
}

// lookup returns the channel for an analysis if it exists. The common
// no-subscriber case stays a cheap map miss.
func (r *registry) lookup(kind SubKind, analysisID string) (*channel, bool) {
	ch, ok := r.kindMap(kind)[analysisID]
	return ch, ok
}

// lazy returns the channel for an analysis, creating it on first use.
func (r *registry) lazy(kind SubKind, analysisID string) *channel {
	m := r.kindMap(kind)
	if ch, ok := m[analysisID]; ok {
		return ch
	}
	ch := newChannel(fmt.Sprintf("%s:%s", kind, analysisID))
	m[analysisID] = ch
	metrics.LiveChannels.WithLabelValues(string(kind)).Set(float64(len(m)))
	return ch
}

// dropIfEmpty deletes the channel when its member count reached zero. A
// zero-member channel must not outlive the unsubscribe that emptied it.
func (r *registry) dropIfEmpty(kind SubKind, analysisID string) {
	m := r.kindMap(kind)
	ch, ok := m[analysisID]
	if !ok || ch.size() > 0 {
		return
	}
	delete(m, analysisID)
	metrics.LiveChannels.WithLabelValues(string(kind)).Set(float64(len(m)))
}
