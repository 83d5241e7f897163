package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// Terminal error messages surfaced to users.
const (
	ErrMsgCanceled    = "Query canceled by user"
	ErrMsgUnreachable = "server unreachable"
	ErrMsgTimeout     = "timeout"
)

// duplicateWindow is how long an identical query is treated as an
// accidental resubmission (double click, retry button mash) and coalesced
// onto the in-flight request.
const duplicateWindow = 30 * time.Second

// Request is one query submission.
type Request struct {
	Query   string        `json:"query"`
	History []HistoryTurn `json:"history,omitempty"`
	Mode    string        `json:"mode,omitempty"`
	Sources []string      `json:"sources,omitempty"`
}

// HistoryTurn is one prior conversation message.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client submits queries over SSE and reduces the stream into QuerySessions.
type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	lastQuery string
	lastAt    time.Time
	inflight  *QuerySession
}

// New creates a client. httpClient may be nil to use a default with no
// overall timeout (streams are long-lived; use ctx for deadlines).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Query submits a request and blocks until the stream finishes, returning
// the reduced session view. Duplicate submissions are caught here: an
// identical query that already finished without error returns the finalized
// view, and one still in flight within the duplicate window returns the
// in-flight view. An errored view never blocks a retry.
func (c *Client) Query(ctx context.Context, req Request) (*QuerySession, error) {
	c.mu.Lock()
	if c.inflight != nil && req.Query == c.lastQuery {
		view := c.inflight
		settled := view.Done() || view.Err != ""
		if settled && view.Err == "" {
			c.mu.Unlock()
			return view, nil
		}
		if !settled && time.Since(c.lastAt) < duplicateWindow {
			c.mu.Unlock()
			return view, nil
		}
	}
	view := NewQuerySession()
	c.lastQuery = req.Query
	c.lastAt = time.Now()
	c.inflight = view
	c.mu.Unlock()

	if err := c.stream(ctx, req, view); err != nil {
		if view.Err == "" {
			view.Err = terminalMessage(err)
			view.Phase = PhaseError
		}
		return view, err
	}
	return view, nil
}

func (c *Client) stream(ctx context.Context, req Request, view *QuerySession) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat?stream=true", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return ParseSSE(resp.Body, view.Apply)
}

// terminalMessage maps transport errors to the user-facing strings.
func terminalMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrMsgCanceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return ErrMsgTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrMsgTimeout
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrMsgUnreachable
		}
		return err.Error()
	}
}
