// Package followup generates the follow-up questions offered after an
// answer, deduplicated against the question they would follow.
package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
)

var followupTemperature float32 = 0.7

// Generator produces follow-up suggestions from the query and a partial or
// complete answer.
type Generator struct {
	client llm.Client
	model  string
	cfg    config.FollowupConfig
}

// New creates a generator.
func New(client llm.Client, model string, cfg config.FollowupConfig) *Generator {
	return &Generator{client: client, model: model, cfg: cfg}
}

// Generate returns up to the configured number of suggestions. It never
// fails: on LLM or parse errors it returns an empty list, since follow-ups
// are decoration on the answer, not part of it.
func (g *Generator) Generate(ctx context.Context, query, answer string) []string {
	raw, err := g.client.Complete(ctx, &llm.Request{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nAnswer so far:\n%s", query, answer)},
		},
		Temperature: &followupTemperature,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("Follow-up generation failed", "error", err)
		return nil
	}

	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		slog.Warn("Follow-up parse failed", "error", err)
		return nil
	}
	return g.dedupe(query, parsed.Suggestions)
}

// dedupe drops suggestions too similar to the original query or to an
// earlier suggestion, then caps the list.
func (g *Generator) dedupe(query string, suggestions []string) []string {
	kept := make([]string, 0, g.cfg.MaxSuggestions)
	keptTokens := make([]map[string]bool, 0, g.cfg.MaxSuggestions)
	queryTokens := tokenize(query)

	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		tokens := tokenize(s)
		if jaccard(tokens, queryTokens) > g.cfg.JaccardThreshold {
			continue
		}
		similar := false
		for _, prev := range keptTokens {
			if jaccard(tokens, prev) > g.cfg.JaccardThreshold {
				similar = true
				break
			}
		}
		if similar {
			continue
		}
		kept = append(kept, s)
		keptTokens = append(keptTokens, tokens)
		if len(kept) == g.cfg.MaxSuggestions {
			break
		}
	}
	return kept
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "and": true, "or": true, "what": true,
	"which": true, "how": true, "do": true, "does": true, "can": true,
	"i": true, "you": true, "it": true, "this": true, "that": true,
	"with": true, "about": true, "my": true,
}

// tokenize lowercases, strips punctuation, and removes stopwords.
func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if !stopwords[word] {
			out[word] = true
		}
	}
	return out
}

// jaccard is intersection over union of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

const prompt = `You suggest follow-up questions a curious user might ask next.
Given a question and its answer, respond with a JSON object:

{"suggestions": ["...", "...", "..."]}

Each suggestion must be a short, self-contained question that explores a
different direction than the original. Respond with the JSON object only.`
