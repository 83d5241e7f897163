// Package classify maps an incoming query plus chat history to an intent
// structure: widget enable flags, a skip-search flag, and a rewritten
// standalone question.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wayfarer-ai/wayfarer/pkg/llm"
)

// Classification holds the intent flags derived from the query.
type Classification struct {
	SkipSearch            bool `json:"skipSearch"`
	AcademicSearch        bool `json:"academicSearch"`
	PersonalSearch        bool `json:"personalSearch"`
	ShowWeatherWidget     bool `json:"showWeatherWidget"`
	ShowStockWidget       bool `json:"showStockWidget"`
	ShowCalculationWidget bool `json:"showCalculationWidget"`
	ShowProductWidget     bool `json:"showProductWidget"`
	ShowHotelWidget       bool `json:"showHotelWidget"`
	ShowPlaceWidget       bool `json:"showPlaceWidget"`
	ShowMovieWidget       bool `json:"showMovieWidget"`
}

// AnyWidget reports whether any widget flag is set.
func (c Classification) AnyWidget() bool {
	return c.ShowWeatherWidget || c.ShowStockWidget || c.ShowCalculationWidget ||
		c.ShowProductWidget || c.ShowHotelWidget || c.ShowPlaceWidget || c.ShowMovieWidget
}

// Result is the classifier output.
type Result struct {
	StandaloneFollowUp string         `json:"standaloneFollowUp"`
	Classification     Classification `json:"classification"`
}

// classifierTemperature keeps the call near-deterministic: equal inputs
// should produce equal outputs.
var classifierTemperature float32 = 0.1

// Classifier performs the single intent-classification LLM call. It is
// stateless and purely functional over its inputs.
type Classifier struct {
	client llm.Client
	model  string
}

// New creates a classifier on the given client. model may be empty to use
// the client's default.
func New(client llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify returns the intent for a query. It never fails: on any LLM or
// parse error it falls back to no widgets, no skip-search, and a standalone
// question equal to the raw query.
func (c *Classifier) Classify(ctx context.Context, history []llm.Message, query string, enabledSources []string) Result {
	fallback := Result{StandaloneFollowUp: query}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: buildPrompt(enabledSources),
	})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	raw, err := c.client.Complete(ctx, &llm.Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: &classifierTemperature,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("Classification call failed, using fallback", "error", err)
		return fallback
	}

	result, err := parse(raw)
	if err != nil {
		slog.Warn("Classification parse failed, using fallback", "error", err)
		return fallback
	}
	if result.StandaloneFollowUp == "" {
		result.StandaloneFollowUp = query
	}
	return result
}

// parse decodes the model output, tolerating markdown code fences.
func parse(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("decode classification: %w", err)
	}
	return result, nil
}

func buildPrompt(enabledSources []string) string {
	var b strings.Builder
	b.WriteString(`You classify user queries for a research assistant.
Given the conversation, respond with a single JSON object:

{
  "standaloneFollowUp": "<the user's latest question rewritten so it stands alone>",
  "classification": {
    "skipSearch": <true if the question needs no retrieval (definitions, chit-chat, pure reasoning)>,
    "academicSearch": <true if scholarly sources would materially help>,
    "personalSearch": <true if the question is about the user's own data>,
    "showWeatherWidget": <true for weather conditions or forecasts>,
    "showStockWidget": <true for stock or market prices>,
    "showCalculationWidget": <true for arithmetic or unit conversion>,
    "showProductWidget": <true for shopping or product comparison>,
    "showHotelWidget": <true for hotels or accommodation>,
    "showPlaceWidget": <true for restaurants, attractions, or points of interest>,
    "showMovieWidget": <true for films or TV shows>
  }
}

Set a widget flag only when the query is clearly about that domain.
Respond with the JSON object only.`)
	if len(enabledSources) > 0 {
		fmt.Fprintf(&b, "\n\nEnabled retrieval sources: %s.", strings.Join(enabledSources, ", "))
	}
	return b.String()
}
