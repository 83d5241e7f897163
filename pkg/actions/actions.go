// Package actions defines the pluggable, schema-validated tools the
// researcher can call, and the registry that resolves them.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
)

// Reserved action names.
const (
	NameWebSearch = "web_search"
	NameDone      = "done"
	NameReasoning = "reasoning_preamble"
)

// Output is the tagged result of executing an action.
type Output interface {
	Kind() OutputKind
}

// OutputKind discriminates Output variants.
type OutputKind string

const (
	KindSearchResults OutputKind = "search_results"
	KindReasoning     OutputKind = "reasoning"
	KindDone          OutputKind = "done"
	KindError         OutputKind = "error"
)

// SearchResults carries retrieval chunks from a search action.
type SearchResults struct {
	Results []blocks.Chunk `json:"results"`
}

// Reasoning carries the model's one-sentence plan, surfaced to the user as
// an explanation section.
type Reasoning struct {
	Reasoning string `json:"reasoning"`
}

// Done signals the researcher has enough context to answer.
type Done struct{}

// ExecError is an action execution failure returned as an output so the
// loop can continue; it never aborts the researcher.
type ExecError struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

func (SearchResults) Kind() OutputKind { return KindSearchResults }
func (Reasoning) Kind() OutputKind     { return KindReasoning }
func (Done) Kind() OutputKind          { return KindDone }
func (ExecError) Kind() OutputKind     { return KindError }

// Action is a callable tool. Enabled gates availability per request;
// Execute runs with already schema-validated arguments.
type Action interface {
	Name() string
	Description() string
	ParametersSchema() string
	Enabled(c classify.Classification, mode config.Mode, sources []string) bool
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Registry holds the available actions in registration order.
type Registry struct {
	actions  map[string]Action
	order    []string
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions:  make(map[string]Action),
		schemas:  make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
	}
}

// Register adds an action, compiling its argument schema. Registering a
// duplicate name or an invalid schema is a programming error surfaced at
// startup.
func (r *Registry) Register(a Action) error {
	name := a.Name()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %s already registered", name)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(a.ParametersSchema()))
	if err != nil {
		return fmt.Errorf("action %s: parse argument schema: %w", name, err)
	}
	resource := name + ".schema.json"
	if err := r.compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("action %s: add schema resource: %w", name, err)
	}
	schema, err := r.compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("action %s: compile argument schema: %w", name, err)
	}
	r.actions[name] = a
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered action.
func (r *Registry) Get(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Enabled returns the actions available for this request, in registration
// order.
func (r *Registry) Enabled(c classify.Classification, mode config.Mode, sources []string) []Action {
	out := make([]Action, 0, len(r.order))
	for _, name := range r.order {
		if a := r.actions[name]; a.Enabled(c, mode, sources) {
			out = append(out, a)
		}
	}
	return out
}

// ToolDefinitions projects enabled actions into LLM tool definitions.
func (r *Registry) ToolDefinitions(c classify.Classification, mode config.Mode, sources []string) []llm.ToolDefinition {
	enabled := r.Enabled(c, mode, sources)
	out := make([]llm.ToolDefinition, 0, len(enabled))
	for _, a := range enabled {
		out = append(out, llm.ToolDefinition{
			Name:             a.Name(),
			Description:      a.Description(),
			ParametersSchema: a.ParametersSchema(),
		})
	}
	return out
}

// Validate checks a tool call's arguments against the action's compiled
// schema. Invalid calls are dropped by the researcher rather than failing
// the request.
func (r *Registry) Validate(call llm.ToolCall) error {
	schema, ok := r.schemas[call.Name]
	if !ok {
		return fmt.Errorf("unknown action: %s", call.Name)
	}
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(args))
	if err != nil {
		return fmt.Errorf("action %s: arguments are not valid JSON: %w", call.Name, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("action %s: invalid arguments: %w", call.Name, err)
	}
	return nil
}
