// Package synthesis streams the final answer: one text block, then a
// full-text replace patch per delta so clients can apply updates
// idempotently without ordering guarantees.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
	"github.com/wayfarer-ai/wayfarer/pkg/widgets"
)

// Request carries everything the writer needs for one answer.
type Request struct {
	Query   string
	History []llm.Message
	Chunks  []blocks.Chunk
	Widgets []widgets.Result
	// SystemInstructions is the caller-supplied steering text, appended to
	// the writer's prompt verbatim.
	SystemInstructions string
	// Client, when set, overrides the writer's default LLM client for this
	// answer (per-request model selection).
	Client llm.Client
	// OnEarlyAnswer, when set, is invoked exactly once with the partial
	// answer as soon as enough text has streamed to seed follow-up
	// generation. It must not block.
	OnEarlyAnswer func(partial string)
}

// Writer streams answers through a session sink.
type Writer struct {
	client llm.Client
	model  string
	cfg    config.SynthesisConfig
}

// New creates a writer.
func New(client llm.Client, model string, cfg config.SynthesisConfig) *Writer {
	return &Writer{client: client, model: model, cfg: cfg}
}

// Write streams the answer into a text block created on the first non-empty
// chunk; later chunks become full-text replace patches. It returns the full
// answer text; on a mid-stream failure the partial text already delivered
// stays in place and the error is returned alongside what was written.
func (w *Writer) Write(ctx context.Context, sink session.Sink, req Request) (string, error) {
	client := w.client
	if req.Client != nil {
		client = req.Client
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: w.prompt(req)})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Query})

	stream, err := client.Stream(ctx, &llm.Request{Model: w.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("start synthesis stream: %w", err)
	}

	var (
		block      blocks.Block
		started    bool
		answer     strings.Builder
		chunkCount int
		kicked     bool
	)
	for chunk := range stream {
		switch c := chunk.(type) {
		case llm.TextChunk:
			if c.Content == "" {
				continue
			}
			answer.WriteString(c.Content)
			chunkCount++
			if !started {
				block, err = blocks.NewText(answer.String())
				if err != nil {
					return answer.String(), err
				}
				sink.EmitBlock(block)
				started = true
			} else {
				ops, err := blocks.ReplaceData(answer.String())
				if err != nil {
					return answer.String(), err
				}
				if err := sink.UpdateBlock(block.ID, ops); err != nil {
					return answer.String(), fmt.Errorf("patch answer block: %w", err)
				}
			}
			if !kicked && req.OnEarlyAnswer != nil && w.earlyThresholdMet(answer.Len(), chunkCount) {
				kicked = true
				req.OnEarlyAnswer(answer.String())
			}
		case llm.ErrorChunk:
			return answer.String(), fmt.Errorf("synthesis stream: %s", c.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return answer.String(), err
	}

	// A short answer can finish before either threshold trips; follow-ups
	// still need a seed.
	if !kicked && req.OnEarlyAnswer != nil {
		req.OnEarlyAnswer(answer.String())
	}
	return answer.String(), nil
}

func (w *Writer) earlyThresholdMet(chars, chunks int) bool {
	return chars >= w.cfg.EarlyFollowupChars || chunks >= w.cfg.EarlyFollowupChunks
}

func (w *Writer) prompt(req Request) string {
	var b strings.Builder
	b.WriteString(`You write the final answer for a research assistant.
Answer the user's question directly, in clear markdown. Ground every claim
in the provided context and cite nothing that is not there. If the context
is insufficient, say so rather than guessing.`)

	if len(req.Chunks) > 0 {
		b.WriteString("\n\n## Retrieved context\n")
		for i, chunk := range req.Chunks {
			fmt.Fprintf(&b, "\n[%d] ", i+1)
			if title := chunk.Title(); title != "" {
				fmt.Fprintf(&b, "%s (%s)\n", title, chunk.URL())
			} else {
				fmt.Fprintf(&b, "%s\n", chunk.URL())
			}
			b.WriteString(chunk.Content)
			b.WriteString("\n")
		}
	}
	if len(req.Widgets) > 0 {
		b.WriteString("\n\n## Widget data already shown to the user\n")
		for _, wr := range req.Widgets {
			fmt.Fprintf(&b, "\n%s: %s\n", wr.WidgetType, string(wr.Params))
		}
		b.WriteString("\nDo not repeat widget contents verbatim; reference them where useful.")
	}
	if req.SystemInstructions != "" {
		b.WriteString("\n\n## Instructions from the user\n")
		b.WriteString(req.SystemInstructions)
	}
	return b.String()
}
