package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	apperrors "github.com/scstanton20/tago-analysis-worker/internal/errors"
	"github.com/scstanton20/tago-analysis-worker/internal/hub"
	"github.com/scstanton20/tago-analysis-worker/internal/version"
	"github.com/scstanton20/tago-analysis-worker/internal/websocket"
)

// handleWebSocket upgrades the request and registers the stream with the
// engine. Blocks until the peer goes away.
func (s *Server) handleWebSocket(c echo.Context) error {
	identity := currentIdentity(c)

	if !s.limiter.Acquire() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "connection limit reached"})
	}
	defer s.limiter.Release()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return nil
	}

	var sessionID uuid.UUID
	client := websocket.NewClient(conn, s.clock, func() {
		if sessionID != uuid.Nil {
			s.engine.Touch(sessionID)
		}
	})

	session, err := s.engine.Connect(c.Request().Context(), identity, client)
	if err != nil {
		client.Close("connection rejected")
		return nil
	}
	sessionID = session.ID

	// Blocks until disconnect; the engine never reads inbound payloads.
	client.ReadLoop()

	s.engine.Remove(identity.UserID, session.ID)
	client.Close("connection closed")
	return nil
}

type subscribeRequest struct {
	SessionID   string   `json:"sessionId"`
	AnalysisIDs []string `json:"analysisIds"`
}

func (s *Server) handleSubscribe(c echo.Context) error {
	kind := c.Param("kind")
	identity := currentIdentity(c)

	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.InvalidInput("malformed request body"))
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return writeError(c, apperrors.InvalidInput("sessionId must be a valid uuid"))
	}

	if kind == "metrics" {
		if err := s.engine.SubscribeMetrics(c.Request().Context(), sessionID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"sessionId": sessionID.String()})
	}

	result, err := s.engine.Subscribe(c.Request().Context(), sessionID, req.AnalysisIDs, identity.UserID, hub.SubKind(kind))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleUnsubscribe(c echo.Context) error {
	kind := c.Param("kind")

	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.InvalidInput("malformed request body"))
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return writeError(c, apperrors.InvalidInput("sessionId must be a valid uuid"))
	}

	if kind == "metrics" {
		s.engine.UnsubscribeMetrics(sessionID)
		return c.JSON(http.StatusOK, map[string]string{"sessionId": sessionID.String()})
	}

	result := s.engine.Unsubscribe(sessionID, req.AnalysisIDs, hub.SubKind(kind))
	return c.JSON(http.StatusOK, result)
}

type sendRequest struct {
	Message domain.Message `json:"message"`
}

type eventRequest struct {
	Kind    string         `json:"kind"`
	Payload domain.Message `json:"payload"`
}

// handleRouteUpdate accepts one update event from the analysis runner and
// hands it to the broadcast router.
func (s *Server) handleRouteUpdate(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil || req.Kind == "" {
		return writeError(c, apperrors.InvalidInput("kind is required"))
	}
	if req.Payload == nil {
		req.Payload = domain.Message{}
	}

	s.engine.RouteUpdate(c.Request().Context(), req.Kind, req.Payload)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "routed"})
}

type moveRequest struct {
	Name     string `json:"name"`
	FromTeam string `json:"fromTeam"`
	ToTeam   string `json:"toTeam"`
}

func (s *Server) handleAnalysisMove(c echo.Context) error {
	analysisID := c.Param("id")
	if analysisID == "" {
		return writeError(c, apperrors.InvalidInput("analysis id is required"))
	}

	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.InvalidInput("malformed request body"))
	}

	s.engine.BroadcastAnalysisMove(c.Request().Context(), analysisID, req.Name, req.FromTeam, req.ToTeam)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "notified"})
}

type teamUpdateRequest struct {
	Payload domain.Message `json:"payload"`
}

func (s *Server) handleTeamUpdate(c echo.Context) error {
	teamID := c.Param("id")
	if teamID == "" {
		return writeError(c, apperrors.InvalidInput("team id is required"))
	}

	var req teamUpdateRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperrors.InvalidInput("malformed request body"))
	}
	if req.Payload == nil {
		req.Payload = domain.Message{}
	}

	delivered := s.engine.BroadcastTeamUpdate(c.Request().Context(), teamID, req.Payload)
	return c.JSON(http.StatusOK, map[string]int{"delivered": delivered})
}

type refreshRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	_ = c.Bind(&req)

	delivered := s.engine.BroadcastRefresh(req.Reason)
	return c.JSON(http.StatusOK, map[string]int{"delivered": delivered})
}

func (s *Server) handleSendToUser(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return writeError(c, apperrors.InvalidInput("user id is required"))
	}

	var req sendRequest
	if err := c.Bind(&req); err != nil || len(req.Message) == 0 {
		return writeError(c, apperrors.InvalidInput("message is required"))
	}

	delivered := s.engine.SendToUser(userID, req.Message)
	return c.JSON(http.StatusOK, map[string]int{"delivered": delivered})
}

func (s *Server) handleDisconnectUser(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return writeError(c, apperrors.InvalidInput("user id is required"))
	}
	count := s.engine.DisconnectUser(userID)
	return c.JSON(http.StatusOK, map[string]int{"disconnected": count})
}

type logoutRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleForceLogout(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return writeError(c, apperrors.InvalidInput("user id is required"))
	}

	var req logoutRequest
	_ = c.Bind(&req)
	if req.Reason == "" {
		req.Reason = "logged out by administrator"
	}

	count := s.engine.ForceLogout(c.Request().Context(), userID, req.Reason)
	return c.JSON(http.StatusOK, map[string]int{"disconnected": count})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleLiveness(c echo.Context) error {
	health := s.engine.Health().Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": health.Uptime,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	health := s.engine.Health().Snapshot()
	if !s.engine.Health().Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  string(health.Status),
			"message": health.Message,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
