package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
)

// SearchProvider executes one search query against a retrieval backend.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]blocks.Chunk, error)
}

const webSearchSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1,
      "maxItems": 5,
      "description": "Search queries to run. Use multiple queries to cover distinct aspects of the question."
    }
  },
  "required": ["queries"],
  "additionalProperties": false
}`

// WebSearch fans a batch of queries out to the search provider and merges
// the deduplicated results.
type WebSearch struct {
	provider   SearchProvider
	maxResults int
}

// NewWebSearch creates the web_search action.
func NewWebSearch(provider SearchProvider, cfg config.SearchConfig) *WebSearch {
	return &WebSearch{provider: provider, maxResults: cfg.MaxResults}
}

func (w *WebSearch) Name() string { return NameWebSearch }

func (w *WebSearch) Description() string {
	return "Search the web. Accepts a batch of queries; returns merged, deduplicated result snippets with their source URLs."
}

func (w *WebSearch) ParametersSchema() string { return webSearchSchema }

// Enabled hides search when the classifier decided the question needs no
// retrieval.
func (w *WebSearch) Enabled(c classify.Classification, _ config.Mode, _ []string) bool {
	return !c.SkipSearch
}

// Execute runs all queries concurrently. A query that fails is logged and
// dropped; the action only errors when every query fails.
func (w *WebSearch) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var params struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("decode web_search arguments: %w", err)
	}

	var (
		mu      sync.Mutex
		merged  []blocks.Chunk
		failed  int
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, query := range params.Queries {
		g.Go(func() error {
			results, err := w.provider.Search(gctx, query, w.maxResults)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("Search query failed", "query", query, "error", err)
				failed++
				lastErr = err
				return nil
			}
			merged = append(merged, results...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed == len(params.Queries) && lastErr != nil {
		return nil, fmt.Errorf("all %d search queries failed: %w", failed, lastErr)
	}
	return SearchResults{Results: blocks.DedupeChunks(merged)}, nil
}
