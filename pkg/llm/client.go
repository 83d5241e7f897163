// Package llm provides a channel-based streaming interface to
// OpenAI-compatible chat completion APIs, including native tool calling.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single conversation message.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // for assistant messages
	ToolCallID string     // for tool result messages
	ToolName   string     // for tool result messages
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall represents an LLM's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition // nil = no tools
	Temperature *float32
	JSONMode    bool // force a JSON object response (classifier, follow-ups)
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is a delta of the LLM's text response.
type TextChunk struct{ Content string }

// ToolCallChunk is a delta of a streamed tool call. Index identifies which
// call the delta belongs to; CallID and Name are only present on the first
// delta for a call, and Arguments fragments must be concatenated by the
// consumer.
type ToolCallChunk struct {
	Index     int
	CallID    string
	Name      string
	Arguments string
}

// UsageChunk reports token consumption for this LLM call.
type UsageChunk struct{ PromptTokens, CompletionTokens, TotalTokens int }

// ErrorChunk signals an error from the LLM provider. It is always the last
// chunk on the channel.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (ToolCallChunk) chunkType() ChunkType { return ChunkTypeToolCall }
func (UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }

// Client is the interface to a chat completion backend.
type Client interface {
	// Stream sends a request and returns a stream of chunks. The channel is
	// closed when the stream completes; errors are delivered as ErrorChunk
	// values.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)

	// Complete sends a request and returns the full response text. Used for
	// the one-shot structured calls (classifier, follow-up generator).
	Complete(ctx context.Context, req *Request) (string, error)
}
