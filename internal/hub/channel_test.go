package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

func TestSubKindValid(t *testing.T) {
	assert.True(t, KindLogs.Valid())
	assert.True(t, KindStats.Valid())
	assert.False(t, SubKind("metrics").Valid())
	assert.False(t, SubKind("").Valid())
}

func TestRegistryLazyCreatesOnce(t *testing.T) {
	r := newRegistry()

	ch := r.lazy(KindLogs, "an-1")
	assert.Same(t, ch, r.lazy(KindLogs, "an-1"))
	assert.Len(t, r.logs, 1)

	// Same id under the other kind is a distinct channel.
	other := r.lazy(KindStats, "an-1")
	assert.NotSame(t, ch, other)
	assert.Len(t, r.stats, 1)
}

func TestRegistryDropIfEmpty(t *testing.T) {
	r := newRegistry()
	s := newSession(domain.Identity{UserID: "u1"}, &fakeSink{})

	ch := r.lazy(KindLogs, "an-1")
	ch.add(s)

	r.dropIfEmpty(KindLogs, "an-1")
	assert.Len(t, r.logs, 1, "membered channel survives")

	ch.remove(s.ID)
	r.dropIfEmpty(KindLogs, "an-1")
	assert.Empty(t, r.logs)

	// Unknown id is tolerated.
	r.dropIfEmpty(KindLogs, "never-created")
}

func TestChannelSnapshotIsACopy(t *testing.T) {
	ch := newChannel("test")
	s1 := newSession(domain.Identity{UserID: "u1"}, &fakeSink{})
	s2 := newSession(domain.Identity{UserID: "u2"}, &fakeSink{})
	ch.add(s1)
	ch.add(s2)

	snap := ch.snapshot()
	ch.remove(s1.ID)

	assert.Len(t, snap, 2, "snapshot unaffected by later removal")
	assert.Equal(t, 1, ch.size())
}
