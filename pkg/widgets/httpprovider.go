package widgets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
)

// HTTPProvider queries per-widget JSON backends. Each backend exposes
// GET {base_url}?q={query} and responds with a JSON object; an optional
// top-level "items" array determines the item count, otherwise the response
// counts as a single item.
type HTTPProvider struct {
	cfg     config.WidgetsConfig
	clients map[string]*http.Client
}

// NewHTTPProvider creates a provider with one client per configured widget,
// so each backend keeps its own timeout.
func NewHTTPProvider(cfg config.WidgetsConfig) *HTTPProvider {
	clients := make(map[string]*http.Client, len(cfg))
	for widgetType, ep := range cfg {
		clients[widgetType] = &http.Client{Timeout: ep.Timeout}
	}
	return &HTTPProvider{cfg: cfg, clients: clients}
}

// Fetch implements Provider.
func (p *HTTPProvider) Fetch(ctx context.Context, widgetType, query string) (json.RawMessage, int, error) {
	ep, ok := p.cfg[widgetType]
	if !ok {
		return nil, 0, fmt.Errorf("widget %s is not configured", widgetType)
	}
	endpoint := fmt.Sprintf("%s?q=%s", ep.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s widget request: %w", widgetType, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.clients[widgetType].Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s widget request: %w", widgetType, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%s widget backend returned status %d", widgetType, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s widget response: %w", widgetType, err)
	}
	if !json.Valid(body) {
		return nil, 0, fmt.Errorf("%s widget backend returned invalid JSON", widgetType)
	}
	return json.RawMessage(body), countItems(body), nil
}

func countItems(body []byte) int {
	var shape struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &shape); err == nil && shape.Items != nil {
		return len(shape.Items)
	}
	return 1
}
