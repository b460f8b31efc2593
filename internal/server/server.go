// Package server wires the engine to thin HTTP route handlers: the
// WebSocket endpoint, the subscription API, user management operations,
// and observability endpoints. Authentication itself is external; the
// server only reads the identity cookie the auth layer issued.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	gorillaws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/scstanton20/tago-analysis-worker/internal/config"
	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	"github.com/scstanton20/tago-analysis-worker/internal/hub"
)

const identityCookieName = "taw_session"

// Engine is the slice of the hub facade the route handlers touch.
type Engine interface {
	Connect(ctx context.Context, identity domain.Identity, sink hub.Sink) (*hub.Session, error)
	Remove(userID string, sessionID uuid.UUID)
	Touch(sessionID uuid.UUID)
	Subscribe(ctx context.Context, sessionID uuid.UUID, analysisIDs []string, userID string, kind hub.SubKind) (hub.SubscriptionResult, error)
	Unsubscribe(sessionID uuid.UUID, analysisIDs []string, kind hub.SubKind) hub.UnsubscribeResult
	SubscribeMetrics(ctx context.Context, sessionID uuid.UUID) error
	UnsubscribeMetrics(sessionID uuid.UUID)
	SendToUser(userID string, msg domain.Message) int
	DisconnectUser(userID string) int
	ForceLogout(ctx context.Context, userID, reason string) int
	RouteUpdate(ctx context.Context, kind string, payload domain.Message)
	BroadcastAnalysisMove(ctx context.Context, analysisID, name, fromTeam, toTeam string)
	BroadcastTeamUpdate(ctx context.Context, teamID string, payload domain.Message) int
	BroadcastRefresh(reason string) int
	GetStats() hub.Stats
	Health() *domain.HealthState
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	engine   Engine
	resolver domain.IdentityResolver
	clock    clockwork.Clock

	cookies  *sessions.CookieStore
	limiter  *ConnectionLimiter
	upgrader gorillaws.Upgrader
}

func NewServer(cfg *config.Config, engine Engine, resolver domain.IdentityResolver, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:     e,
		config:   cfg,
		engine:   engine,
		resolver: resolver,
		clock:    clock,
		cookies:  cookies,
		limiter:  NewConnectionLimiter(int64(cfg.MaxConnections)),
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
