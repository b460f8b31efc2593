package domain

import "context"

// AnalysisDirectory resolves analyses to their owning teams. Backed by
// persistence outside this core; read-only from the engine's perspective.
type AnalysisDirectory interface {
	GetAll(ctx context.Context) (map[string]AnalysisInfo, error)
	GetByID(ctx context.Context, analysisID string) (AnalysisInfo, bool, error)
}

// PermissionHelper resolves team-based visibility in both directions.
type PermissionHelper interface {
	GetUserTeamIDs(ctx context.Context, userID string, perm Permission) ([]string, error)
	GetUsersWithTeamAccess(ctx context.Context, teamID string, perm Permission) ([]string, error)
}

// MetricsSource provides the latest parsed system metrics. The
// collection/parsing pipeline that produces them is a separate concern.
type MetricsSource interface {
	GetAllMetrics(ctx context.Context) (MetricsSnapshot, error)
	GetProcessMetrics(ctx context.Context) ([]ProcessMetrics, error)
}

// DNSStatsSource provides DNS cache configuration and per-analysis stats.
type DNSStatsSource interface {
	GetConfig(ctx context.Context) (DNSConfig, error)
	GetAnalysisStats(ctx context.Context, analysisID string) (DNSStats, error)
}

// LogStatsSource provides per-analysis log line/byte counts for the
// initial stats-subscription snapshot.
type LogStatsSource interface {
	GetLogStats(ctx context.Context, analysisID string) (LogStats, error)
}

// IdentityResolver turns an authenticated user id into a full identity.
// Session-cookie handling and user persistence live outside this core.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (Identity, error)
}
