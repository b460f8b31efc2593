package domain

// Role of an authenticated identity. Admins bypass team-based
// visibility checks entirely.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// TeamUncategorized is the fallback team for analyses without an owner.
const TeamUncategorized = "uncategorized"

// Permission names used when resolving team visibility.
type Permission string

const (
	PermissionViewAnalyses Permission = "view_analyses"
)

// Identity is an authenticated client identity. Team memberships are
// resolved externally through the PermissionHelper, never stored here.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity bypasses team visibility checks.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// AnalysisInfo is the directory's view of a single analysis.
type AnalysisInfo struct {
	TeamID string `json:"teamId"`
}

// Team returns the owning team, defaulting to TeamUncategorized.
func (a AnalysisInfo) Team() string {
	if a.TeamID == "" {
		return TeamUncategorized
	}
	return a.TeamID
}

// ProcessMetrics is one analysis process's resource usage slice.
type ProcessMetrics struct {
	AnalysisID string  `json:"analysisId"`
	CPU        float64 `json:"cpu"`
	Memory     uint64  `json:"memory"`
	Uptime     float64 `json:"uptime"`
}

// ResourceUsage is a CPU/memory pair for a process subtree.
type ResourceUsage struct {
	CPU    float64 `json:"cpu"`
	Memory uint64  `json:"memory"`
}

// MetricsAggregate summarizes a list of process metrics.
type MetricsAggregate struct {
	ProcessCount int     `json:"processCount"`
	CPU          float64 `json:"cpu"`
	Memory       uint64  `json:"memory"`
}

// Aggregate recomputes an aggregate over the given processes. Used when a
// metrics payload is filtered per recipient: reusing the unfiltered total
// after filtering would be a correctness bug.
func Aggregate(processes []ProcessMetrics) MetricsAggregate {
	agg := MetricsAggregate{ProcessCount: len(processes)}
	for _, p := range processes {
		agg.CPU += p.CPU
		agg.Memory += p.Memory
	}
	return agg
}

// MetricsSnapshot is the full system metrics payload.
type MetricsSnapshot struct {
	Processes []ProcessMetrics `json:"processes"`
	Children  ResourceUsage    `json:"children"`
	Container ResourceUsage    `json:"container"`
	Total     MetricsAggregate `json:"total"`
}

// DNSConfig reports whether DNS caching is enabled for the worker.
type DNSConfig struct {
	Enabled bool `json:"enabled"`
}

// DNSStats are per-analysis DNS cache hit/miss counts.
type DNSStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// LogStats are per-analysis log line/byte counts.
type LogStats struct {
	Lines int64 `json:"lines"`
	Bytes int64 `json:"bytes"`
}
