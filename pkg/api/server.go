// Package api exposes the HTTP surface: query submission with SSE
// streaming, WebSocket attach with replay, cancellation, and health.
package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/pipeline"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// wsWriteTimeout bounds a single WebSocket send so one stalled client
// cannot block the emitter.
const wsWriteTimeout = 5 * time.Second

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg         config.HTTPConfig
	store       *session.Store
	registry    *llm.Registry
	engine      *pipeline.Engine
	connManager *ConnectionManager
}

// NewServer creates the API server. registry may be nil, in which case
// per-request model selection is rejected.
func NewServer(cfg config.HTTPConfig, store *session.Store, registry *llm.Registry, engine *pipeline.Engine) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		engine:      engine,
		connManager: NewConnectionManager(store, wsWriteTimeout),
	}
}

// Echo builds the router with all routes and middleware registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.Use(securityHeaders())

	e.POST("/chat", s.chatHandler)
	e.GET("/ws", s.wsHandler)
	e.POST("/sessions/:id/cancel", s.cancelHandler)
	e.GET("/sessions/:id", s.sessionHandler)
	e.GET("/healthz", s.healthHandler)
	return e
}

// securityHeaders sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// healthHandler reports liveness and the number of in-flight sessions.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "healthy",
		"live_sessions": s.store.Len(),
	})
}
