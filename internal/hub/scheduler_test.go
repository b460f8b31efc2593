package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// --- Lazy lifecycle ---

func TestSchedulerStartsOnFirstConnection(t *testing.T) {
	env := newTestEnv()
	assert.False(t, env.engine.scheduler.Running(), "idle engine runs no loops")

	env.connect(user("u1"))
	assert.True(t, env.engine.scheduler.Running())
}

func TestSchedulerStopsOnLastDisconnect(t *testing.T) {
	env := newTestEnv()
	s1, _ := env.connect(user("u1"))
	s2, _ := env.connect(user("u2"))

	env.engine.Remove("u1", s1.ID)
	assert.True(t, env.engine.scheduler.Running(), "loops keep running while a connection remains")

	env.engine.Remove("u2", s2.ID)
	assert.False(t, env.engine.scheduler.Running())
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	env := newTestEnv()
	sc := env.engine.scheduler

	sc.Stop()
	sc.Stop()
	assert.False(t, sc.Running())

	sc.Start()
	sc.Start()
	assert.True(t, sc.Running())

	sc.Stop()
	assert.False(t, sc.Running())
}

func TestSchedulerRestartsAfterIdlePeriod(t *testing.T) {
	env := newTestEnv()
	s1, _ := env.connect(user("u1"))
	env.engine.Remove("u1", s1.ID)
	require.False(t, env.engine.scheduler.Running())

	_, sink := env.connect(user("u2"))

	assert.True(t, env.engine.scheduler.Running())
	require.Eventually(t, func() bool {
		return sink.countType(domain.TypeHeartbeat) >= 1
	}, time.Second, time.Millisecond, "restarted loop fires immediately")
}

// --- Heartbeat ---

func TestHeartbeatFiresImmediatelyOnStart(t *testing.T) {
	env := newTestEnv()
	_, sink := env.connect(user("u1"))

	assert.Equal(t, 1, sink.countType(domain.TypeHeartbeat))
	assert.Equal(t, 1, sink.countType(domain.TypeStatusUpdate), "metrics loop fires immediately too")
}

func TestHeartbeatRepeatsOnInterval(t *testing.T) {
	env := newTestEnv()
	_, sink := env.connect(user("u1"))

	env.clock.Advance(testEngineConfig.HeartbeatInterval)

	require.Eventually(t, func() bool {
		return sink.countType(domain.TypeHeartbeat) >= 2
	}, time.Second, time.Millisecond)

	hb, ok := sink.lastOfType(domain.TypeHeartbeat)
	require.True(t, ok)
	assert.IsType(t, int64(0), hb["timestamp"])
}

// --- Stale eviction ---

func TestSweepEvictsPastThresholdOnly(t *testing.T) {
	env := newTestEnv()
	s1, sink1 := env.connect(user("u1"))
	s2, sink2 := env.connect(user("u2"))
	s3, sink3 := env.connect(user("u3"))

	now := env.clock.Now()
	env.setLastSeen(s1, now.Add(-testEngineConfig.StaleThreshold-time.Millisecond))
	env.setLastSeen(s2, now.Add(-testEngineConfig.StaleThreshold))
	env.setLastSeen(s3, now)

	env.engine.sweepStale(context.Background())

	assert.True(t, sink1.isClosed(), "past threshold gets evicted")
	assert.Equal(t, "stale connection evicted", sink1.reason())
	assert.False(t, sink2.isClosed(), "exactly at threshold is retained")
	assert.False(t, sink3.isClosed())

	_, found := env.engine.FindByID(s1.ID)
	assert.False(t, found)
	assert.Equal(t, 2, env.engine.GetStats().Sessions)
}

func TestHeartbeatDeliveryKeepsSessionAlive(t *testing.T) {
	env := newTestEnv()
	s, sink := env.connect(user("u1"))
	env.setLastSeen(s, env.clock.Now().Add(-10*time.Minute))

	// The tick broadcasts first: the successful heartbeat push refreshes
	// liveness, so the sweep directly after finds the session fresh.
	env.engine.heartbeatTick(context.Background())

	assert.False(t, sink.isClosed())
	assert.Equal(t, 1, env.engine.GetStats().Sessions)
}

func TestUnresponsiveSessionEvictedByHeartbeatTick(t *testing.T) {
	env := newTestEnv()
	s, sink := env.connect(user("u1"))
	env.connect(user("u2"))

	sink.failNext(errors.New("buffer full"))
	env.setLastSeen(s, env.clock.Now().Add(-10*time.Minute))

	env.engine.heartbeatTick(context.Background())

	assert.True(t, sink.isClosed(), "failed heartbeat push removes the session")
	assert.Equal(t, 1, env.engine.GetStats().Sessions)
}

// --- Touch ---

func TestTouchRefreshesLiveness(t *testing.T) {
	env := newTestEnv()
	s, _ := env.connect(user("u1"))
	stale := env.clock.Now().Add(-10 * time.Minute)
	env.setLastSeen(s, stale)

	env.engine.Touch(s.ID)

	env.engine.mu.Lock()
	seen := env.engine.store.lastSeen[s.ID]
	env.engine.mu.Unlock()
	assert.True(t, seen.After(stale))
}

func TestTouchUnknownSessionIsNoop(t *testing.T) {
	env := newTestEnv()
	s, _ := env.connect(user("u1"))
	env.engine.Remove("u1", s.ID)

	env.engine.Touch(s.ID)

	env.engine.mu.Lock()
	_, tracked := env.engine.store.lastSeen[s.ID]
	env.engine.mu.Unlock()
	assert.False(t, tracked, "touch must not resurrect liveness tracking")
}
