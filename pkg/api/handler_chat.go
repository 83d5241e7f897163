package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/pipeline"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// maxQueryLength caps submitted query size.
const maxQueryLength = 10000

// keepAliveInterval is how often an idle SSE stream emits a comment line so
// intermediaries do not drop the connection.
const keepAliveInterval = 15 * time.Second

// sseBuffer bounds how many events may queue for a slow SSE consumer
// before further events are dropped from the live stream. Dropped events
// remain in the session log and reach the client via replay on reconnect.
const sseBuffer = 256

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Query              string        `json:"query"`
	History            []ChatMessage `json:"history"`
	Mode               string        `json:"optimizationMode"`
	Sources            []string      `json:"sources"`
	SystemInstructions string        `json:"systemInstructions"`
	// ChatModel selects the generation model for this request; absent means
	// the server's configured default. EmbeddingModel is accepted for
	// interface completeness and validated, but retrieval here is keyword
	// search with no embedding stage.
	ChatModel      *ModelRef `json:"chatModel"`
	EmbeddingModel *ModelRef `json:"embeddingModel"`
}

// ModelRef names a provider/model pair from the server's configuration.
type ModelRef struct {
	ProviderID string `json:"providerId"`
	Key        string `json:"key"`
}

// ChatMessage is one prior conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is returned for non-streaming submissions.
type ChatResponse struct {
	SessionID string `json:"sessionId"`
}

// chatHandler handles POST /chat. With ?stream=true the response is an SSE
// stream of the session's events; otherwise the session id is returned
// immediately and the client attaches over WebSocket.
func (s *Server) chatHandler(c *echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if len(req.Query) > maxQueryLength {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("query exceeds maximum length of %d characters", maxQueryLength))
	}
	history := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		default:
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid history role %q", m.Role))
		}
	}

	client, err := s.resolveModel(req.ChatModel)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.resolveModel(req.EmbeddingModel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess := s.store.Create()

	// Processing is detached from the request context: an SSE disconnect
	// must not abort the pipeline, since the client can re-attach and replay.
	procCtx, cancel := context.WithCancel(context.Background())
	sess.BindCancel(cancel)
	go func() {
		defer cancel()
		if err := s.engine.Process(procCtx, sess, pipeline.Request{
			Query:              req.Query,
			History:            history,
			Mode:               config.ParseMode(req.Mode),
			Sources:            req.Sources,
			SystemInstructions: req.SystemInstructions,
			Client:             client,
		}); err != nil {
			slog.Warn("Pipeline finished with error", "session_id", sess.ID(), "error", err)
		}
	}()

	if c.QueryParam("stream") != "true" {
		return c.JSON(http.StatusAccepted, &ChatResponse{SessionID: sess.ID()})
	}
	return s.streamSSE(c, sess)
}

// resolveModel maps a request's model reference to a client through the
// provider registry. A nil ref means the server default (nil client).
func (s *Server) resolveModel(ref *ModelRef) (llm.Client, error) {
	if ref == nil {
		return nil, nil
	}
	if s.registry == nil {
		return nil, fmt.Errorf("model selection is not available")
	}
	client, err := s.registry.Client(ref.ProviderID, ref.Key)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// streamSSE subscribes to the session and forwards its events as SSE frames
// until a terminal event or client disconnect.
func (s *Server) streamSSE(c *echo.Context, sess sessionStream) error {
	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	ch := make(chan events.Event, sseBuffer)
	unsubscribe := sess.Subscribe(func(ev events.Event) {
		select {
		case ch <- ev:
		default:
			slog.Warn("SSE consumer too slow, dropping event from live stream",
				"session_id", sess.ID(), "event_type", ev.Base().Type)
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	ctx := c.Request().Context()

	for {
		select {
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to marshal event", "session_id", sess.ID(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			flusher.Flush()
			t := ev.Base().Type
			if t == events.TypeEnd || t == events.TypeError {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

// sessionStream is the part of *session.Session the SSE loop needs;
// narrowed for tests.
type sessionStream interface {
	ID() string
	Subscribe(session.Subscriber) func()
}
