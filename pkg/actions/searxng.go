package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
)

// SearxNGProvider queries a SearxNG-compatible JSON search API.
type SearxNGProvider struct {
	baseURL string
	client  *http.Client
}

// NewSearxNGProvider creates a provider for the configured endpoint.
func NewSearxNGProvider(cfg config.SearchConfig) *SearxNGProvider {
	return &SearxNGProvider{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type searxngResult struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Thumbnail     string `json:"thumbnail"`
	ImgSrc        string `json:"img_src"`
	PublishedDate string `json:"publishedDate"`
	Author        string `json:"author"`
}

// Search implements SearchProvider.
func (p *SearxNGProvider) Search(ctx context.Context, query string, maxResults int) ([]blocks.Chunk, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", p.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []searxngResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if maxResults > 0 && len(body.Results) > maxResults {
		body.Results = body.Results[:maxResults]
	}
	chunks := make([]blocks.Chunk, 0, len(body.Results))
	for _, r := range body.Results {
		if r.URL == "" {
			continue
		}
		meta := map[string]any{
			"url":   r.URL,
			"title": r.Title,
		}
		if r.Thumbnail != "" {
			meta["thumbnail"] = r.Thumbnail
		}
		if r.ImgSrc != "" {
			meta["images"] = []any{r.ImgSrc}
		}
		if r.PublishedDate != "" {
			meta["date"] = r.PublishedDate
		}
		if r.Author != "" {
			meta["author"] = r.Author
		}
		chunks = append(chunks, blocks.Chunk{Content: r.Content, Metadata: meta})
	}
	return chunks, nil
}
