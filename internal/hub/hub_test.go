package hub

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// --- Fake Sink ---

type fakeSink struct {
	mu          sync.Mutex
	pushErr     error
	closed      bool
	closeReason string
	messages    []domain.Message
}

func (f *fakeSink) Push(msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSink) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.closeReason = reason
	}
}

func (f *fakeSink) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushErr = err
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeReason
}

func (f *fakeSink) byType(t domain.MessageType) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.messages {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSink) countType(t domain.MessageType) int {
	return len(f.byType(t))
}

func (f *fakeSink) lastOfType(t domain.MessageType) (domain.Message, bool) {
	msgs := f.byType(t)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// --- Mock AnalysisDirectory ---

type mockDirectory struct {
	getAllFn  func(ctx context.Context) (map[string]domain.AnalysisInfo, error)
	getByIDFn func(ctx context.Context, analysisID string) (domain.AnalysisInfo, bool, error)
}

func (m *mockDirectory) GetAll(ctx context.Context) (map[string]domain.AnalysisInfo, error) {
	if m.getAllFn != nil {
		return m.getAllFn(ctx)
	}
	return map[string]domain.AnalysisInfo{}, nil
}

func (m *mockDirectory) GetByID(ctx context.Context, analysisID string) (domain.AnalysisInfo, bool, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, analysisID)
	}
	return domain.AnalysisInfo{}, false, nil
}

// staticDirectory builds a GetByID/GetAll pair over a fixed analysis->team map.
func staticDirectory(teams map[string]string) *mockDirectory {
	dir := make(map[string]domain.AnalysisInfo, len(teams))
	for id, team := range teams {
		dir[id] = domain.AnalysisInfo{TeamID: team}
	}
	return &mockDirectory{
		getAllFn: func(context.Context) (map[string]domain.AnalysisInfo, error) {
			return dir, nil
		},
		getByIDFn: func(_ context.Context, id string) (domain.AnalysisInfo, bool, error) {
			info, ok := dir[id]
			return info, ok, nil
		},
	}
}

// --- Mock PermissionHelper ---

type mockPermissions struct {
	getUserTeamIDsFn         func(ctx context.Context, userID string, perm domain.Permission) ([]string, error)
	getUsersWithTeamAccessFn func(ctx context.Context, teamID string, perm domain.Permission) ([]string, error)
}

func (m *mockPermissions) GetUserTeamIDs(ctx context.Context, userID string, perm domain.Permission) ([]string, error) {
	if m.getUserTeamIDsFn != nil {
		return m.getUserTeamIDsFn(ctx, userID, perm)
	}
	return nil, nil
}

func (m *mockPermissions) GetUsersWithTeamAccess(ctx context.Context, teamID string, perm domain.Permission) ([]string, error) {
	if m.getUsersWithTeamAccessFn != nil {
		return m.getUsersWithTeamAccessFn(ctx, teamID, perm)
	}
	return nil, nil
}

// --- Mock MetricsSource ---

type mockMetricsSource struct {
	getAllMetricsFn     func(ctx context.Context) (domain.MetricsSnapshot, error)
	getProcessMetricsFn func(ctx context.Context) ([]domain.ProcessMetrics, error)
}

func (m *mockMetricsSource) GetAllMetrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	if m.getAllMetricsFn != nil {
		return m.getAllMetricsFn(ctx)
	}
	return domain.MetricsSnapshot{}, nil
}

func (m *mockMetricsSource) GetProcessMetrics(ctx context.Context) ([]domain.ProcessMetrics, error) {
	if m.getProcessMetricsFn != nil {
		return m.getProcessMetricsFn(ctx)
	}
	return nil, nil
}

// --- Mock DNSStatsSource ---

type mockDNSStats struct {
	getConfigFn        func(ctx context.Context) (domain.DNSConfig, error)
	getAnalysisStatsFn func(ctx context.Context, analysisID string) (domain.DNSStats, error)
}

func (m *mockDNSStats) GetConfig(ctx context.Context) (domain.DNSConfig, error) {
	if m.getConfigFn != nil {
		return m.getConfigFn(ctx)
	}
	return domain.DNSConfig{}, nil
}

func (m *mockDNSStats) GetAnalysisStats(ctx context.Context, analysisID string) (domain.DNSStats, error) {
	if m.getAnalysisStatsFn != nil {
		return m.getAnalysisStatsFn(ctx, analysisID)
	}
	return domain.DNSStats{}, nil
}

// --- Mock LogStatsSource ---

type mockLogStats struct {
	getLogStatsFn func(ctx context.Context, analysisID string) (domain.LogStats, error)
}

func (m *mockLogStats) GetLogStats(ctx context.Context, analysisID string) (domain.LogStats, error) {
	if m.getLogStatsFn != nil {
		return m.getLogStatsFn(ctx, analysisID)
	}
	return domain.LogStats{}, nil
}

// --- Test Engine ---

type testEnv struct {
	engine  *Engine
	clock   clockwork.FakeClock
	dir     *mockDirectory
	perms   *mockPermissions
	metrics *mockMetricsSource
	dns     *mockDNSStats
	logs    *mockLogStats
}

var testEngineConfig = Config{
	HeartbeatInterval: 30 * time.Second,
	StaleThreshold:    2 * time.Minute,
	MetricsInterval:   10 * time.Second,
	LogoutGrace:       0,
}

func newTestEnv() *testEnv {
	return newTestEnvWith(testEngineConfig)
}

func newTestEnvWith(cfg Config) *testEnv {
	env := &testEnv{
		clock:   clockwork.NewFakeClock(),
		dir:     &mockDirectory{},
		perms:   &mockPermissions{},
		metrics: &mockMetricsSource{},
		dns:     &mockDNSStats{},
		logs:    &mockLogStats{},
	}
	env.engine = New(
		cfg,
		Collaborators{
			Directory:   env.dir,
			Permissions: env.perms,
			Metrics:     env.metrics,
			DNSStats:    env.dns,
			LogStats:    env.logs,
		},
		domain.NewHealthState(env.clock),
		env.clock,
	)
	return env
}

// connect registers a fresh session and waits for both scheduler loops to
// finish their immediate first tick, so assertions never race the
// startup broadcasts. The fake clock never fires the tickers afterwards
// unless a test advances it.
func (env *testEnv) connect(identity domain.Identity) (*Session, *fakeSink) {
	sink := &fakeSink{}
	s, err := env.engine.Connect(context.Background(), identity, sink)
	if err != nil {
		panic(err)
	}
	env.clock.BlockUntil(2)
	return s, sink
}

func user(id string) domain.Identity {
	return domain.Identity{UserID: id, Role: domain.RoleUser}
}

func admin(id string) domain.Identity {
	return domain.Identity{UserID: id, Role: domain.RoleAdmin}
}

// setLastSeen backdates a session's liveness timestamp.
func (env *testEnv) setLastSeen(s *Session, t time.Time) {
	env.engine.mu.Lock()
	env.engine.store.lastSeen[s.ID] = t
	env.engine.mu.Unlock()
}
