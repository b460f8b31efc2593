package hub

import (
	"context"
	"log/slog"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// RouteUpdate decides which channel receives an update. kind "log" goes
// to the analysis's logs channel, falling back to the global channel when
// the payload carries no analysis id so nothing is silently dropped. Any
// other kind is treated as an analysis id whose update fans out to every
// identity with view permission on the owning team.
func (e *Engine) RouteUpdate(ctx context.Context, kind string, payload domain.Message) {
	if kind == "log" {
		msg := withType(payload, domain.TypeLog)
		if analysisID, _ := payload["analysisId"].(string); analysisID != "" {
			e.BroadcastToChannel(analysisID, KindLogs, msg)
			return
		}
		e.broadcastGlobal(msg)
		return
	}
	e.broadcastAnalysisUpdate(ctx, kind, payload)
}

// broadcastAnalysisUpdate notifies every user who may view the analysis's
// team. The team is resolved via the directory unless the payload already
// carries it.
func (e *Engine) broadcastAnalysisUpdate(ctx context.Context, analysisID string, payload domain.Message) {
	team, _ := payload["teamId"].(string)
	if team == "" {
		info, found, err := e.directory.GetByID(ctx, analysisID)
		if err != nil {
			slog.Warn("Analysis lookup failed, dropping update", "analysis_id", analysisID, "error", err)
			metrics.DependencyFailuresTotal.WithLabelValues("directory").Inc()
			return
		}
		if found {
			team = info.Team()
		} else {
			team = domain.TeamUncategorized
		}
	}

	msg := withType(payload, domain.TypeAnalysisUpdate).
		With("analysisId", analysisID).
		With("teamId", team)
	e.BroadcastToTeamUsers(ctx, team, msg)
}

// BroadcastToTeamUsers fans a message out to every connection of every
// user with view access on the team. An empty team id broadcasts to every
// live connection. Returns the total delivery count.
func (e *Engine) BroadcastToTeamUsers(ctx context.Context, teamID string, msg domain.Message) int {
	if teamID == "" {
		return e.broadcastGlobal(msg)
	}

	userIDs, err := e.perms.GetUsersWithTeamAccess(ctx, teamID, domain.PermissionViewAnalyses)
	if err != nil {
		slog.Warn("Team access lookup failed, dropping broadcast", "team_id", teamID, "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("permissions").Inc()
		return 0
	}

	metrics.BroadcastsTotal.WithLabelValues("team").Inc()
	total := 0
	for _, userID := range userIDs {
		total += e.SendToUser(userID, msg)
	}
	return total
}

// BroadcastAnalysisMove notifies the source team (unless uncategorized)
// and the destination team (unless identical to the source) that an
// analysis changed teams. A no-op move never double-sends.
func (e *Engine) BroadcastAnalysisMove(ctx context.Context, analysisID, name, fromTeam, toTeam string) {
	if fromTeam == "" {
		fromTeam = domain.TeamUncategorized
	}
	if toTeam == "" {
		toTeam = domain.TeamUncategorized
	}

	msg := domain.NewMessage(domain.TypeAnalysisMoved).
		With("analysisId", analysisID).
		With("name", name).
		With("fromTeam", fromTeam).
		With("toTeam", toTeam)

	if fromTeam != domain.TeamUncategorized {
		e.BroadcastToTeamUsers(ctx, fromTeam, msg)
	}
	if toTeam != fromTeam {
		e.BroadcastToTeamUsers(ctx, toTeam, msg)
	}
}

// BroadcastTeamUpdate tells a team's users that team state changed.
func (e *Engine) BroadcastTeamUpdate(ctx context.Context, teamID string, payload domain.Message) int {
	msg := withType(payload, domain.TypeTeamUpdate).With("teamId", teamID)
	return e.BroadcastToTeamUsers(ctx, teamID, msg)
}

// BroadcastRefresh tells every client to re-sync its state.
func (e *Engine) BroadcastRefresh(reason string) int {
	msg := domain.NewMessage(domain.TypeRefresh)
	if reason != "" {
		msg = msg.With("reason", reason)
	}
	return e.broadcastGlobal(msg)
}

// metricsTick is the periodic metrics broadcast. It snapshots all inputs
// once, pushes the lightweight status summary to everybody, feeds active
// stats channels their per-analysis slices, and builds a per-recipient
// payload for every metrics subscriber. A failure for one recipient or
// channel never aborts the rest, and the scheduler itself never stops.
func (e *Engine) metricsTick(ctx context.Context) {
	start := e.clock.Now()
	defer func() {
		metrics.MetricsTickDuration.Observe(e.clock.Since(start).Seconds())
	}()

	health := e.health.Snapshot()

	// Basic liveness UI keeps working even for clients without a
	// detailed metrics subscription.
	e.broadcastGlobal(domain.NewMessage(domain.TypeStatusUpdate).
		With("status", string(health.Status)).
		With("message", health.Message).
		With("uptime", health.Uptime).
		With("timestamp", e.clock.Now().UnixMilli()))

	// One batched snapshot per tick: every recipient sees a consistent
	// view regardless of where it lands in the fan-out order.
	snap, err := e.metricsSrc.GetAllMetrics(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Metrics snapshot failed, skipping tick", "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("metrics_source").Inc()
		return
	}
	dir, dirErr := e.directory.GetAll(ctx)
	if dirErr != nil {
		slog.WarnContext(ctx, "Directory fetch failed, non-admin recipients skipped this tick", "error", dirErr)
		metrics.DependencyFailuresTotal.WithLabelValues("directory").Inc()
	}

	e.mu.Lock()
	statsTargets := make(map[string][]*Session, len(e.channels.stats))
	for analysisID, ch := range e.channels.stats {
		statsTargets[analysisID] = ch.snapshot()
	}
	subscribers := e.channels.metricsCh.snapshot()
	e.mu.Unlock()

	procsByAnalysis := make(map[string][]domain.ProcessMetrics)
	for _, p := range snap.Processes {
		procsByAnalysis[p.AnalysisID] = append(procsByAnalysis[p.AnalysisID], p)
	}

	for analysisID, targets := range statsTargets {
		slice := procsByAnalysis[analysisID]
		if slice == nil {
			slice = []domain.ProcessMetrics{}
		}
		e.pushTargets(targets, domain.NewMessage(domain.TypeAnalysisProcMetric).
			With("analysisId", analysisID).
			With("processes", slice))
	}

	// Per-recipient payloads: admins get the unfiltered snapshot,
	// everyone else a filtered process list with recomputed aggregates.
	teamCache := make(map[string]map[string]struct{})
	for _, s := range subscribers {
		if s.Identity.IsAdmin() {
			e.pushTargets([]*Session{s}, metricsUpdateMessage(snap, health))
			continue
		}
		if dirErr != nil {
			continue
		}
		allowed, ok := teamCache[s.Identity.UserID]
		if !ok {
			teamIDs, err := e.perms.GetUserTeamIDs(ctx, s.Identity.UserID, domain.PermissionViewAnalyses)
			if err != nil {
				slog.WarnContext(ctx, "Team lookup failed, skipping recipient this tick",
					"user_id", s.Identity.UserID, "error", err)
				metrics.DependencyFailuresTotal.WithLabelValues("permissions").Inc()
				continue
			}
			allowed = make(map[string]struct{}, len(teamIDs))
			for _, t := range teamIDs {
				allowed[t] = struct{}{}
			}
			teamCache[s.Identity.UserID] = allowed
		}
		e.pushTargets([]*Session{s}, metricsUpdateMessage(filterSnapshot(snap, dir, allowed), health))
	}
}

// filterSnapshot restricts the process list to analyses owned by allowed
// teams and recomputes the aggregate from the filtered list. Carrying the
// unfiltered total alongside a filtered list would be a correctness bug.
func filterSnapshot(snap domain.MetricsSnapshot, dir map[string]domain.AnalysisInfo, allowed map[string]struct{}) domain.MetricsSnapshot {
	out := snap
	out.Processes = make([]domain.ProcessMetrics, 0, len(snap.Processes))
	for _, p := range snap.Processes {
		if _, ok := allowed[dir[p.AnalysisID].Team()]; ok {
			out.Processes = append(out.Processes, p)
		}
	}
	out.Total = domain.Aggregate(out.Processes)
	return out
}

func metricsUpdateMessage(snap domain.MetricsSnapshot, health domain.HealthView) domain.Message {
	return domain.NewMessage(domain.TypeMetricsUpdate).
		With("metrics", snap).
		With("status", string(health.Status)).
		With("uptime", health.Uptime)
}

// withType copies the payload fields into a fresh message of the given
// type, so routing never mutates the caller's map.
func withType(payload domain.Message, t domain.MessageType) domain.Message {
	msg := domain.NewMessage(t)
	for k, v := range payload {
		if k == "type" {
			continue
		}
		msg[k] = v
	}
	return msg
}
