package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Live stream
	s.echo.GET("/ws", s.handleWebSocket, s.requireAuth)

	// Subscription API (kind: logs, stats, metrics)
	s.echo.POST("/api/subscriptions/:kind", s.handleSubscribe, s.requireAuth)
	s.echo.DELETE("/api/subscriptions/:kind", s.handleUnsubscribe, s.requireAuth)

	// Event ingestion from the analysis runner (admin only)
	s.echo.POST("/api/events", s.handleRouteUpdate, s.requireAuth, s.requireAdmin)
	s.echo.POST("/api/analyses/:id/move", s.handleAnalysisMove, s.requireAuth, s.requireAdmin)
	s.echo.POST("/api/teams/:id/update", s.handleTeamUpdate, s.requireAuth, s.requireAdmin)
	s.echo.POST("/api/refresh", s.handleRefresh, s.requireAuth, s.requireAdmin)

	// User management (admin only)
	s.echo.POST("/api/users/:id/send", s.handleSendToUser, s.requireAuth, s.requireAdmin)
	s.echo.POST("/api/users/:id/disconnect", s.handleDisconnectUser, s.requireAuth, s.requireAdmin)
	s.echo.POST("/api/users/:id/logout", s.handleForceLogout, s.requireAuth, s.requireAdmin)

	// Engine counters
	s.echo.GET("/api/stats", s.handleStats, s.requireAuth, s.requireAdmin)
}
