package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
)

const doneSchema = `{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}`

// DoneAction lets the model declare it has gathered enough context. The
// researcher treats a trailing done call as a loop terminator and never
// executes it; Execute exists only to satisfy the Action contract.
type DoneAction struct{}

func (DoneAction) Name() string { return NameDone }

func (DoneAction) Description() string {
	return "Call this when you have gathered enough information to answer the question. Do not call it together with other tools unless those tools should still run first."
}

func (DoneAction) ParametersSchema() string { return doneSchema }

func (DoneAction) Enabled(classify.Classification, config.Mode, []string) bool { return true }

func (DoneAction) Execute(context.Context, json.RawMessage) (Output, error) {
	return Done{}, nil
}

const reasoningSchema = `{
  "type": "object",
  "properties": {
    "reasoning": {
      "type": "string",
      "minLength": 1,
      "description": "One sentence describing your research plan for this question."
    }
  },
  "required": ["reasoning"],
  "additionalProperties": false
}`

// ReasoningAction captures the model's stated plan. Only the first
// invocation per session is surfaced to the user; later ones are recorded
// in the transcript but not shown.
type ReasoningAction struct{}

func (ReasoningAction) Name() string { return NameReasoning }

func (ReasoningAction) Description() string {
	return "State, in one sentence, how you plan to research this question. Call this before your first search."
}

func (ReasoningAction) ParametersSchema() string { return reasoningSchema }

func (ReasoningAction) Enabled(classify.Classification, config.Mode, []string) bool { return true }

func (ReasoningAction) Execute(_ context.Context, args json.RawMessage) (Output, error) {
	var params struct {
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("decode reasoning_preamble arguments: %w", err)
	}
	return Reasoning{Reasoning: params.Reasoning}, nil
}
