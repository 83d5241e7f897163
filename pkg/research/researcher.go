// Package research runs the iterative retrieval loop: the LLM is given the
// action registry as tools and called repeatedly, executing the calls it
// makes each round, until it declares itself done or the mode's iteration
// budget runs out.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wayfarer-ai/wayfarer/pkg/actions"
	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// explanationTitle is the section surfaced when the model first states its
// research plan.
const explanationTitle = "How I approached this"

// startingIteration is the progress label emitted at the top of each round,
// before the LLM call, so subscribers see activity during streaming.
const startingIteration = "Starting iteration"

// Result is what the researcher hands to synthesis.
type Result struct {
	// Chunks is the deduplicated union of all retrieval results, in
	// first-seen order.
	Chunks []blocks.Chunk
	// Sources is the citation view of Chunks.
	Sources []blocks.Source
	// Reasoning is the model's first stated plan, empty if it never gave one.
	Reasoning string
	// Steps is the number of iterations actually run.
	Steps int
}

// Request carries everything one research run needs.
type Request struct {
	Query          string
	History        []llm.Message
	Classification classify.Classification
	Mode           config.Mode
	Sources        []string // enabled retrieval source names
	// Client, when set, overrides the researcher's default LLM client for
	// this run (per-request model selection).
	Client llm.Client
}

// Researcher drives the retrieval loop.
type Researcher struct {
	client   llm.Client
	model    string
	registry *actions.Registry
	modes    config.ModesConfig
}

// New creates a researcher.
func New(client llm.Client, model string, registry *actions.Registry, modes config.ModesConfig) *Researcher {
	return &Researcher{client: client, model: model, registry: registry, modes: modes}
}

// Run executes the loop, emitting progress, the explanation section, and the
// source preview block through the sink. It returns the accumulated context
// for synthesis; an error means retrieval failed entirely.
func (r *Researcher) Run(ctx context.Context, sink session.Sink, req Request) (*Result, error) {
	maxSteps := r.modes.MaxIterations(req.Mode)
	tools := r.registry.ToolDefinitions(req.Classification, req.Mode, req.Sources)
	client := r.client
	if req.Client != nil {
		client = req.Client
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(maxSteps)})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Query})

	result := &Result{}
	var allChunks []blocks.Chunk

	for step := 1; step <= maxSteps; step++ {
		result.Steps = step
		sink.ResearchProgress(step, maxSteps, startingIteration)

		calls, err := r.streamTurn(ctx, client, messages, tools)
		if err != nil {
			return nil, fmt.Errorf("research step %d: %w", step, err)
		}
		if len(calls) == 0 {
			break
		}

		// A trailing done terminates the loop; it is never executed. Calls
		// before it still run so their results reach the transcript.
		sawDone := false
		if calls[len(calls)-1].Name == actions.NameDone {
			calls = calls[:len(calls)-1]
			sawDone = true
		}

		valid := calls[:0]
		for _, call := range calls {
			if err := r.registry.Validate(call); err != nil {
				slog.Warn("Dropping invalid tool call", "session_id", sink.ID(), "error", err)
				continue
			}
			valid = append(valid, call)
		}
		if len(valid) == 0 {
			if sawDone {
				break
			}
			// Nothing executable this round. Skip the assistant turn entirely
			// so the transcript never holds tool calls without results.
			continue
		}

		sink.ResearchProgress(step, maxSteps, actionSummary(valid))
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, ToolCalls: valid})

		outputs, err := r.execute(ctx, valid)
		if err != nil {
			return nil, fmt.Errorf("research step %d: %w", step, err)
		}
		for i, call := range valid {
			out := outputs[i]
			if sr, ok := out.(actions.SearchResults); ok {
				allChunks = append(allChunks, sr.Results...)
			}
			if re, ok := out.(actions.Reasoning); ok && result.Reasoning == "" {
				result.Reasoning = re.Reasoning
				sink.AddSection(blocks.Section{
					Title:   explanationTitle,
					Content: re.Reasoning,
					Kind:    "explanation",
				})
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    renderOutput(out),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
		if sawDone {
			break
		}
	}

	result.Chunks = blocks.DedupeChunks(allChunks)
	result.Sources = blocks.SourcesFromChunks(result.Chunks)
	if len(result.Sources) > 0 {
		block, err := blocks.NewSource(result.Sources)
		if err != nil {
			return nil, err
		}
		sink.EmitBlock(block)
	}
	sink.ResearchComplete()
	return result, nil
}

// streamTurn runs one LLM call and returns the assembled tool calls.
// Tool-call deltas arrive fragmented: identity on the first delta for an
// index, argument text spread over the rest.
func (r *Researcher) streamTurn(ctx context.Context, client llm.Client, messages []llm.Message, tools []llm.ToolDefinition) ([]llm.ToolCall, error) {
	stream, err := client.Stream(ctx, &llm.Request{
		Model:    r.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return nil, err
	}

	partial := make(map[int]*llm.ToolCall)
	for chunk := range stream {
		switch c := chunk.(type) {
		case llm.ToolCallChunk:
			tc, ok := partial[c.Index]
			if !ok {
				tc = &llm.ToolCall{}
				partial[c.Index] = tc
			}
			if c.CallID != "" {
				tc.ID = c.CallID
			}
			if c.Name != "" {
				tc.Name = c.Name
			}
			tc.Arguments += c.Arguments
		case llm.ErrorChunk:
			return nil, fmt.Errorf("llm stream: %s", c.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	indexes := make([]int, 0, len(partial))
	for i := range partial {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	calls := make([]llm.ToolCall, 0, len(partial))
	for _, i := range indexes {
		calls = append(calls, *partial[i])
	}
	return calls, nil
}

// execute runs one round's calls concurrently. Individual failures become
// error outputs in the transcript rather than aborting the run.
func (r *Researcher) execute(ctx context.Context, calls []llm.ToolCall) ([]actions.Output, error) {
	outputs := make([]actions.Output, len(calls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			action, ok := r.registry.Get(call.Name)
			if !ok {
				return fmt.Errorf("unknown action: %s", call.Name)
			}
			out, err := action.Execute(gctx, json.RawMessage(call.Arguments))
			if err != nil {
				out = actions.ExecError{Action: call.Name, Error: err.Error()}
			}
			mu.Lock()
			outputs[i] = out
			mu.Unlock()
			if err := gctx.Err(); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// renderOutput formats an action output as the tool result message content.
func renderOutput(out actions.Output) string {
	switch o := out.(type) {
	case actions.SearchResults:
		if len(o.Results) == 0 {
			return "No results."
		}
		var b strings.Builder
		for i, chunk := range o.Results {
			if i > 0 {
				b.WriteString("\n\n")
			}
			if title := chunk.Title(); title != "" {
				fmt.Fprintf(&b, "[%s](%s)\n", title, chunk.URL())
			} else if url := chunk.URL(); url != "" {
				fmt.Fprintf(&b, "%s\n", url)
			}
			b.WriteString(chunk.Content)
		}
		return b.String()
	case actions.Reasoning:
		return "Noted."
	case actions.Done:
		return "Done."
	case actions.ExecError:
		return fmt.Sprintf("Error running %s: %s", o.Action, o.Error)
	default:
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Sprintf("%v", out)
		}
		return string(raw)
	}
}

func actionSummary(calls []llm.ToolCall) string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

func systemPrompt(maxSteps int) string {
	return fmt.Sprintf(`You are a research agent gathering context to answer the user's question.

Work in rounds. Each round, call the tools you need:
- Before your first search, call reasoning_preamble with a one-sentence plan.
- Use web_search with focused queries; batch distinct aspects into one call.
- When you have enough context to answer, call done.

You have at most %d rounds. Do not write the answer yourself; another
stage synthesizes it from what you gather.`, maxSteps)
}
