package session

import (
	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
)

// Sink is the emission surface the researcher, widget executor, and writer
// hold. It is a non-owning handle: producers emit through it but never read
// back state a later stage produces. *Session implements Sink.
type Sink interface {
	ID() string
	EmitBlock(b blocks.Block)
	UpdateBlock(blockID string, ops []blocks.PatchOp) error
	AddSection(sec blocks.Section)
	ResearchProgress(step, maxSteps int, action string)
	ResearchComplete()
	End(p events.EndPayload)
	Error(msg string)
}

var _ Sink = (*Session)(nil)
