package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
)

// SessionResponse is the GET /sessions/:id snapshot: current block values
// (patches already applied) and accumulated sections.
type SessionResponse struct {
	SessionID string           `json:"sessionId"`
	Blocks    []blocks.Block   `json:"blocks"`
	Sections  []blocks.Section `json:"sections"`
	Ended     bool             `json:"ended"`
}

// sessionHandler handles GET /sessions/:id.
func (s *Server) sessionHandler(c *echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	sess, err := s.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, &SessionResponse{
		SessionID: sess.ID(),
		Blocks:    sess.Blocks(),
		Sections:  sess.Sections(),
		Ended:     sess.Ended(),
	})
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	SessionID string `json:"sessionId"`
	Canceled  bool   `json:"canceled"`
}

// cancelHandler handles POST /sessions/:id/cancel. Cancellation stops the
// pipeline; the session emits nothing further but keeps serving replays
// until TTL expiry.
func (s *Server) cancelHandler(c *echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	sess, err := s.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if sess.Ended() {
		return echo.NewHTTPError(http.StatusConflict, "session has already finished")
	}
	canceled := sess.Cancel()
	return c.JSON(http.StatusOK, &CancelResponse{SessionID: id, Canceled: canceled})
}
