package hub

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	apperrors "github.com/scstanton20/tago-analysis-worker/internal/errors"
	"github.com/scstanton20/tago-analysis-worker/internal/metrics"
)

// SubscriptionResult reports the outcome of a subscribe operation.
// Denied is populated only for non-admin identities lacking team access;
// denial is data, never an error.
type SubscriptionResult struct {
	SessionID  string   `json:"sessionId"`
	Subscribed []string `json:"subscribed"`
	Denied     []string `json:"denied,omitempty"`
}

// UnsubscribeResult reports the outcome of an unsubscribe operation.
type UnsubscribeResult struct {
	SessionID    string   `json:"sessionId"`
	Unsubscribed []string `json:"unsubscribed"`
}

// Subscribe registers a session on the logs or stats channels of the
// given analyses. Already-subscribed ids are reported as subscribed
// without duplicate registration. Non-admin identities are checked
// against their viewable teams; denied ids are recorded, not registered.
// A stats subscribe additionally pushes an initial snapshot per freshly
// subscribed analysis.
func (e *Engine) Subscribe(ctx context.Context, sessionID uuid.UUID, analysisIDs []string, userID string, kind SubKind) (SubscriptionResult, error) {
	var result SubscriptionResult

	if !kind.Valid() {
		return result, apperrors.InvalidInput("unknown subscription kind")
	}
	if len(analysisIDs) == 0 {
		return result, apperrors.InvalidInput("analysisIds must not be empty")
	}
	for _, id := range analysisIDs {
		if id == "" {
			return result, apperrors.InvalidInput("analysisIds must not contain empty ids")
		}
	}

	e.mu.Lock()
	s, ok := e.store.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return result, apperrors.SessionNotFound(sessionID.String())
	}
	admin := s.Identity.IsAdmin()
	e.mu.Unlock()

	// Visibility resolution happens outside the lock: permission and
	// directory lookups are suspension points.
	denied := make(map[string]bool)
	if !admin {
		teamIDs, err := e.perms.GetUserTeamIDs(ctx, userID, domain.PermissionViewAnalyses)
		if err != nil {
			return result, apperrors.Dependency("failed to resolve team access", err)
		}
		allowed := make(map[string]struct{}, len(teamIDs))
		for _, t := range teamIDs {
			allowed[t] = struct{}{}
		}
		for _, id := range analysisIDs {
			info, _, err := e.directory.GetByID(ctx, id)
			if err != nil {
				return result, apperrors.Dependency("failed to resolve analysis team", err)
			}
			if _, ok := allowed[info.Team()]; !ok {
				denied[id] = true
			}
		}
	}

	result.SessionID = sessionID.String()
	var fresh []string

	e.mu.Lock()
	s, ok = e.store.sessions[sessionID]
	if !ok {
		// Session vanished while we were resolving permissions.
		e.mu.Unlock()
		return SubscriptionResult{}, apperrors.SessionNotFound(sessionID.String())
	}
	set := s.subs(kind)
	for _, id := range analysisIDs {
		if _, already := set[id]; already {
			result.Subscribed = append(result.Subscribed, id)
			continue
		}
		if denied[id] {
			result.Denied = append(result.Denied, id)
			metrics.SubscriptionDenialsTotal.Inc()
			continue
		}
		e.channels.lazy(kind, id).add(s)
		set[id] = struct{}{}
		result.Subscribed = append(result.Subscribed, id)
		fresh = append(fresh, id)
	}
	e.mu.Unlock()

	if kind == KindStats {
		for _, id := range fresh {
			e.pushStatsSnapshot(ctx, s, id)
		}
	}

	slog.Debug("Subscription applied",
		"session_id", result.SessionID,
		"kind", string(kind),
		"subscribed", len(result.Subscribed),
		"denied", len(result.Denied),
	)
	return result, nil
}

// Unsubscribe deregisters a session from the given channels. It tolerates
// an already-removed session, since this path also runs during connection
// teardown; empty channels are dropped either way.
func (e *Engine) Unsubscribe(sessionID uuid.UUID, analysisIDs []string, kind SubKind) UnsubscribeResult {
	result := UnsubscribeResult{SessionID: sessionID.String()}
	if !kind.Valid() {
		return result
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.store.sessions[sessionID]
	for _, id := range analysisIDs {
		if s != nil {
			if _, ok := s.subs(kind)[id]; ok {
				e.leaveChannelLocked(s, kind, id)
				result.Unsubscribed = append(result.Unsubscribed, id)
				continue
			}
		}
		e.channels.dropIfEmpty(kind, id)
	}
	return result
}

// leaveChannelLocked removes the session from one channel, updates the
// subscription set, and garbage-collects the channel if it emptied.
func (e *Engine) leaveChannelLocked(s *Session, kind SubKind, analysisID string) {
	if ch, ok := e.channels.lookup(kind, analysisID); ok {
		ch.remove(s.ID)
	}
	delete(s.subs(kind), analysisID)
	e.channels.dropIfEmpty(kind, analysisID)
}

// SubscribeMetrics opts a session into the full metrics stream and pushes
// a snapshot immediately.
func (e *Engine) SubscribeMetrics(ctx context.Context, sessionID uuid.UUID) error {
	e.mu.Lock()
	s, ok := e.store.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return apperrors.SessionNotFound(sessionID.String())
	}
	if !s.metricsSub {
		s.metricsSub = true
		e.channels.metricsCh.add(s)
	}
	e.mu.Unlock()

	// The welcome snapshot is best effort: a collaborator failure here
	// leaves the subscription in place and the next tick catches up.
	snap, err := e.metricsSrc.GetAllMetrics(ctx)
	if err != nil {
		slog.Warn("Metrics snapshot failed on subscribe", "session_id", sessionID.String(), "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("metrics_source").Inc()
		return nil
	}
	if !s.Identity.IsAdmin() {
		dir, err := e.directory.GetAll(ctx)
		if err != nil {
			slog.Warn("Directory fetch failed on subscribe", "session_id", sessionID.String(), "error", err)
			metrics.DependencyFailuresTotal.WithLabelValues("directory").Inc()
			return nil
		}
		teamIDs, err := e.perms.GetUserTeamIDs(ctx, s.Identity.UserID, domain.PermissionViewAnalyses)
		if err != nil {
			slog.Warn("Team lookup failed on subscribe", "session_id", sessionID.String(), "error", err)
			metrics.DependencyFailuresTotal.WithLabelValues("permissions").Inc()
			return nil
		}
		allowed := make(map[string]struct{}, len(teamIDs))
		for _, t := range teamIDs {
			allowed[t] = struct{}{}
		}
		snap = filterSnapshot(snap, dir, allowed)
	}
	e.pushTargets([]*Session{s}, metricsUpdateMessage(snap, e.health.Snapshot()))
	return nil
}

// UnsubscribeMetrics opts a session out of the metrics stream. Unknown
// sessions are a no-op.
func (e *Engine) UnsubscribeMetrics(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.store.sessions[sessionID]
	if !ok || !s.metricsSub {
		return
	}
	s.metricsSub = false
	e.channels.metricsCh.remove(s.ID)
}

// BroadcastToChannel delivers a payload to one analysis channel. Without
// subscribers this is a cheap no-op; broadcast failures are logged and
// never propagated.
func (e *Engine) BroadcastToChannel(analysisID string, kind SubKind, msg domain.Message) {
	e.mu.Lock()
	ch, ok := e.channels.lookup(kind, analysisID)
	if !ok {
		e.mu.Unlock()
		return
	}
	targets := ch.snapshot()
	e.mu.Unlock()

	metrics.BroadcastsTotal.WithLabelValues(string(kind)).Inc()
	e.pushTargets(targets, msg)
}

// pushStatsSnapshot sends the initial three-part stats snapshot for one
// analysis: log counts, DNS cache stats, and the live process slice. The
// parts are fetched and delivered independently; a failure in one never
// blocks the others.
func (e *Engine) pushStatsSnapshot(ctx context.Context, s *Session, analysisID string) {
	target := []*Session{s}

	if stats, err := e.logStats.GetLogStats(ctx, analysisID); err != nil {
		slog.Warn("Log stats fetch failed", "analysis_id", analysisID, "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("log_stats").Inc()
	} else {
		e.pushTargets(target, domain.NewMessage(domain.TypeAnalysisLogStats).
			With("analysisId", analysisID).
			With("lines", stats.Lines).
			With("bytes", stats.Bytes))
	}

	if cfg, err := e.dnsStats.GetConfig(ctx); err != nil {
		slog.Warn("DNS config fetch failed", "analysis_id", analysisID, "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("dns_stats").Inc()
	} else if cfg.Enabled {
		if stats, err := e.dnsStats.GetAnalysisStats(ctx, analysisID); err != nil {
			slog.Warn("DNS stats fetch failed", "analysis_id", analysisID, "error", err)
			metrics.DependencyFailuresTotal.WithLabelValues("dns_stats").Inc()
		} else {
			e.pushTargets(target, domain.NewMessage(domain.TypeAnalysisDNSStats).
				With("analysisId", analysisID).
				With("hits", stats.Hits).
				With("misses", stats.Misses))
		}
	}

	if procs, err := e.metricsSrc.GetProcessMetrics(ctx); err != nil {
		slog.Warn("Process metrics fetch failed", "analysis_id", analysisID, "error", err)
		metrics.DependencyFailuresTotal.WithLabelValues("metrics_source").Inc()
	} else {
		slice := make([]domain.ProcessMetrics, 0, 1)
		for _, p := range procs {
			if p.AnalysisID == analysisID {
				slice = append(slice, p)
			}
		}
		e.pushTargets(target, domain.NewMessage(domain.TypeAnalysisProcMetric).
			With("analysisId", analysisID).
			With("processes", slice))
	}
}
