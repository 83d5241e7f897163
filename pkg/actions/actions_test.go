package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
)

type stubProvider struct {
	results map[string][]blocks.Chunk
	errs    map[string]error
}

func (s *stubProvider) Search(_ context.Context, query string, _ int) ([]blocks.Chunk, error) {
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.results[query], nil
}

func newTestRegistry(t *testing.T, provider SearchProvider) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(NewWebSearch(provider, config.SearchConfig{MaxResults: 8})))
	require.NoError(t, r.Register(DoneAction{}))
	require.NoError(t, r.Register(ReasoningAction{}))
	return r
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(DoneAction{}))
	assert.Error(t, r.Register(DoneAction{}))
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t, &stubProvider{})

	tests := []struct {
		name    string
		call    llm.ToolCall
		wantErr bool
	}{
		{
			name: "valid web_search",
			call: llm.ToolCall{Name: NameWebSearch, Arguments: `{"queries":["best hotels in lisbon"]}`},
		},
		{
			name:    "empty queries array",
			call:    llm.ToolCall{Name: NameWebSearch, Arguments: `{"queries":[]}`},
			wantErr: true,
		},
		{
			name:    "missing queries",
			call:    llm.ToolCall{Name: NameWebSearch, Arguments: `{}`},
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			call:    llm.ToolCall{Name: NameWebSearch, Arguments: `{"queries":`},
			wantErr: true,
		},
		{
			name: "done with empty arguments",
			call: llm.ToolCall{Name: NameDone, Arguments: ""},
		},
		{
			name: "reasoning",
			call: llm.ToolCall{Name: NameReasoning, Arguments: `{"reasoning":"compare recent reviews"}`},
		},
		{
			name:    "reasoning without text",
			call:    llm.ToolCall{Name: NameReasoning, Arguments: `{}`},
			wantErr: true,
		},
		{
			name:    "unknown action",
			call:    llm.ToolCall{Name: "teleport", Arguments: `{}`},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.call)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnabledGatesSearchOnSkipFlag(t *testing.T) {
	r := newTestRegistry(t, &stubProvider{})

	names := func(actions []Action) []string {
		out := make([]string, 0, len(actions))
		for _, a := range actions {
			out = append(out, a.Name())
		}
		return out
	}

	all := r.Enabled(classify.Classification{}, config.ModeBalanced, nil)
	assert.Equal(t, []string{NameWebSearch, NameDone, NameReasoning}, names(all))

	noSearch := r.Enabled(classify.Classification{SkipSearch: true}, config.ModeBalanced, nil)
	assert.Equal(t, []string{NameDone, NameReasoning}, names(noSearch))
}

func TestWebSearchMergesAndDedupes(t *testing.T) {
	provider := &stubProvider{
		results: map[string][]blocks.Chunk{
			"q1": {
				{Content: "snippet one", Metadata: map[string]any{"url": "https://example.com/a", "title": "A"}},
			},
			"q2": {
				{Content: "snippet two", Metadata: map[string]any{"url": "https://EXAMPLE.com/a", "title": "A"}},
				{Content: "other", Metadata: map[string]any{"url": "https://example.com/b", "title": "B"}},
			},
		},
	}
	w := NewWebSearch(provider, config.SearchConfig{MaxResults: 8})

	out, err := w.Execute(context.Background(), json.RawMessage(`{"queries":["q1","q2"]}`))
	require.NoError(t, err)
	results, ok := out.(SearchResults)
	require.True(t, ok)
	assert.Len(t, results.Results, 2)
}

func TestWebSearchToleratesPartialFailure(t *testing.T) {
	provider := &stubProvider{
		results: map[string][]blocks.Chunk{
			"ok": {{Content: "x", Metadata: map[string]any{"url": "https://example.com/x"}}},
		},
		errs: map[string]error{"bad": errors.New("backend down")},
	}
	w := NewWebSearch(provider, config.SearchConfig{MaxResults: 8})

	out, err := w.Execute(context.Background(), json.RawMessage(`{"queries":["ok","bad"]}`))
	require.NoError(t, err)
	assert.Len(t, out.(SearchResults).Results, 1)
}

func TestWebSearchFailsWhenAllQueriesFail(t *testing.T) {
	provider := &stubProvider{errs: map[string]error{"bad": errors.New("backend down")}}
	w := NewWebSearch(provider, config.SearchConfig{MaxResults: 8})

	_, err := w.Execute(context.Background(), json.RawMessage(`{"queries":["bad"]}`))
	assert.Error(t, err)
}

func TestSearxNGProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "weather lisbon", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"url":"https://example.com/w","title":"Weather","content":"Sunny, 24C","img_src":"https://example.com/w.jpg"},
			{"url":"https://example.com/x","title":"Other","content":"..."},
			{"url":"","title":"no url","content":"dropped"}
		]}`))
	}))
	defer srv.Close()

	p := NewSearxNGProvider(config.SearchConfig{BaseURL: srv.URL, MaxResults: 8, Timeout: 5 * time.Second})
	chunks, err := p.Search(context.Background(), "weather lisbon", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Sunny, 24C", chunks[0].Content)
	assert.Equal(t, "https://example.com/w", chunks[0].URL())
	assert.Equal(t, "Weather", chunks[0].Title())
}
