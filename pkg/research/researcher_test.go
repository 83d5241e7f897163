package research

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ai/wayfarer/pkg/actions"
	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// scriptedClient replays canned chunk sequences, one per Stream call.
type scriptedClient struct {
	mu    sync.Mutex
	turns [][]llm.Chunk
	calls []*llm.Request
}

func (s *scriptedClient) Stream(_ context.Context, req *llm.Request) (<-chan llm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.turns) == 0 {
		return nil, errors.New("scripted client: no turns left")
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	out := make(chan llm.Chunk, len(turn))
	for _, c := range turn {
		out <- c
	}
	close(out)
	return out, nil
}

func (s *scriptedClient) Complete(context.Context, *llm.Request) (string, error) {
	return "", errors.New("scripted client: Complete not scripted")
}

// recordingSink captures everything emitted during a run.
type recordingSink struct {
	mu        sync.Mutex
	blocks    []blocks.Block
	sections  []blocks.Section
	progress  []events.ResearchProgressPayload
	completed bool
}

func (r *recordingSink) ID() string { return "test-session" }
func (r *recordingSink) EmitBlock(b blocks.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, b)
}
func (r *recordingSink) UpdateBlock(string, []blocks.PatchOp) error { return nil }
func (r *recordingSink) AddSection(sec blocks.Section) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections = append(r.sections, sec)
}
func (r *recordingSink) ResearchProgress(step, maxSteps int, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, events.ResearchProgressPayload{
		ResearchStep: step, MaxResearchSteps: maxSteps, CurrentAction: action,
	})
}
func (r *recordingSink) ResearchComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}
func (r *recordingSink) End(events.EndPayload) {}
func (r *recordingSink) Error(string)          {}

var _ session.Sink = (*recordingSink)(nil)

func toolCall(index int, id, name, args string) []llm.Chunk {
	// Split identity and arguments across chunks the way providers stream them.
	return []llm.Chunk{
		llm.ToolCallChunk{Index: index, CallID: id, Name: name},
		llm.ToolCallChunk{Index: index, Arguments: args[:len(args)/2]},
		llm.ToolCallChunk{Index: index, Arguments: args[len(args)/2:]},
	}
}

func newResearcher(t *testing.T, client llm.Client, provider actions.SearchProvider) *Researcher {
	t.Helper()
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(actions.NewWebSearch(provider, config.SearchConfig{MaxResults: 8})))
	require.NoError(t, reg.Register(actions.DoneAction{}))
	require.NoError(t, reg.Register(actions.ReasoningAction{}))
	modes := config.ModesConfig{SpeedIterations: 2, BalancedIterations: 6, QualityIterations: 25}
	return New(client, "test-model", reg, modes)
}

type fixedProvider struct{ chunks []blocks.Chunk }

func (f fixedProvider) Search(context.Context, string, int) ([]blocks.Chunk, error) {
	return f.chunks, nil
}

func TestRunSearchThenDone(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.Chunk{
		append(
			toolCall(0, "call_1", "reasoning_preamble", `{"reasoning":"Check recent sources on the topic."}`),
			toolCall(1, "call_2", "web_search", `{"queries":["golang context cancellation"]}`)...,
		),
		toolCall(0, "call_3", "done", `{}`),
	}}
	provider := fixedProvider{chunks: []blocks.Chunk{
		{Content: "ctx cancel docs", Metadata: map[string]any{"url": "https://example.com/ctx", "title": "Context"}},
	}}
	sink := &recordingSink{}

	result, err := newResearcher(t, client, provider).Run(context.Background(), sink, Request{
		Query: "how does context cancellation work",
		Mode:  config.ModeBalanced,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, "Check recent sources on the topic.", result.Reasoning)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "https://example.com/ctx", result.Sources[0].URL)

	require.Len(t, sink.sections, 1)
	assert.Equal(t, explanationTitle, sink.sections[0].Title)
	assert.Equal(t, "explanation", sink.sections[0].Kind)

	require.Len(t, sink.blocks, 1)
	assert.Equal(t, blocks.TypeSource, sink.blocks[0].Type)
	assert.True(t, sink.completed)

	// Every round announces itself before the LLM call, then reports the
	// concrete actions once calls are validated.
	require.GreaterOrEqual(t, len(sink.progress), 3)
	assert.Equal(t, events.ResearchProgressPayload{
		ResearchStep: 1, MaxResearchSteps: 6, CurrentAction: startingIteration,
	}, sink.progress[0])
	assert.Equal(t, "reasoning_preamble, web_search", sink.progress[1].CurrentAction)
	assert.Equal(t, 2, sink.progress[2].ResearchStep)
	assert.Equal(t, startingIteration, sink.progress[2].CurrentAction)

	// Second LLM turn must carry the assistant tool calls and their results.
	require.Len(t, client.calls, 2)
	second := client.calls[1].Messages
	var toolResults int
	for _, m := range second {
		if m.Role == llm.RoleTool {
			toolResults++
		}
	}
	assert.Equal(t, 2, toolResults)
}

func TestRunTrailingDoneIsNotExecuted(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.Chunk{
		append(
			toolCall(0, "call_1", "web_search", `{"queries":["weather lisbon"]}`),
			toolCall(1, "call_2", "done", `{}`)...,
		),
	}}
	provider := fixedProvider{chunks: []blocks.Chunk{
		{Content: "sunny", Metadata: map[string]any{"url": "https://example.com/w"}},
	}}
	sink := &recordingSink{}

	result, err := newResearcher(t, client, provider).Run(context.Background(), sink, Request{
		Query: "weather in lisbon",
		Mode:  config.ModeBalanced,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Steps)
	assert.Len(t, result.Chunks, 1)

	// done was stripped before execution: only the search produced a tool
	// result, and the loop never asked for another turn.
	require.Len(t, client.calls, 1)
}

func TestRunStopsWhenNoToolCalls(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.Chunk{
		{llm.TextChunk{Content: "I already know this."}},
	}}
	sink := &recordingSink{}

	result, err := newResearcher(t, client, fixedProvider{}).Run(context.Background(), sink, Request{
		Query: "what is 2+2",
		Mode:  config.ModeSpeed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)
	assert.Empty(t, result.Chunks)
	assert.Empty(t, sink.blocks)
	assert.True(t, sink.completed)
}

func TestRunDropsInvalidCallsWithoutPoisoningTranscript(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.Chunk{
		toolCall(0, "call_1", "web_search", `{"queries":[]}`),
		toolCall(0, "call_2", "done", `{}`),
	}}
	sink := &recordingSink{}

	result, err := newResearcher(t, client, fixedProvider{}).Run(context.Background(), sink, Request{
		Query: "anything",
		Mode:  config.ModeBalanced,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Steps)

	// The dropped round contributed no assistant or tool messages, and no
	// action-level progress beyond the round announcements.
	require.Len(t, client.calls, 2)
	assert.Equal(t, len(client.calls[0].Messages), len(client.calls[1].Messages))
	require.Len(t, sink.progress, 2)
	for _, p := range sink.progress {
		assert.Equal(t, startingIteration, p.CurrentAction)
	}
}

func TestRunRespectsIterationBudget(t *testing.T) {
	searchTurn := func() []llm.Chunk {
		return toolCall(0, "call_n", "web_search", `{"queries":["more"]}`)
	}
	client := &scriptedClient{turns: [][]llm.Chunk{
		searchTurn(), searchTurn(), searchTurn(),
	}}
	provider := fixedProvider{chunks: []blocks.Chunk{
		{Content: "x", Metadata: map[string]any{"url": "https://example.com/x"}},
	}}
	sink := &recordingSink{}

	result, err := newResearcher(t, client, provider).Run(context.Background(), sink, Request{
		Query: "endless topic",
		Mode:  config.ModeSpeed, // budget of 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Steps)
	// Two rounds, each with a start announcement and an action report.
	require.Len(t, sink.progress, 4)
	assert.Equal(t, startingIteration, sink.progress[2].CurrentAction)
	assert.Equal(t, "web_search", sink.progress[3].CurrentAction)
	assert.Equal(t, 2, sink.progress[3].MaxResearchSteps)
}

func TestRunUsesRequestClientOverride(t *testing.T) {
	deflt := &scriptedClient{}
	override := &scriptedClient{turns: [][]llm.Chunk{
		toolCall(0, "call_1", "done", `{}`),
	}}
	sink := &recordingSink{}

	_, err := newResearcher(t, deflt, fixedProvider{}).Run(context.Background(), sink, Request{
		Query:  "anything",
		Mode:   config.ModeSpeed,
		Client: override,
	})
	require.NoError(t, err)
	assert.Empty(t, deflt.calls)
	require.Len(t, override.calls, 1)
}

func TestRunStreamErrorFailsRun(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.Chunk{
		{llm.ErrorChunk{Message: "rate limited", Retryable: true}},
	}}
	sink := &recordingSink{}

	_, err := newResearcher(t, client, fixedProvider{}).Run(context.Background(), sink, Request{
		Query: "anything",
		Mode:  config.ModeBalanced,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.False(t, sink.completed)
}

func TestRenderOutputFormatsSearchResults(t *testing.T) {
	out := renderOutput(actions.SearchResults{Results: []blocks.Chunk{
		{Content: "body", Metadata: map[string]any{"url": "https://example.com/a", "title": "A"}},
	}})
	assert.Contains(t, out, "[A](https://example.com/a)")
	assert.Contains(t, out, "body")

	raw, err := json.Marshal(actions.ExecError{Action: "web_search", Error: "boom"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "boom")
}
