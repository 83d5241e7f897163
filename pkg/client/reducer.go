// Package client consumes the streaming protocol: an SSE/WebSocket event
// feed reduced into a query view. The reducer is idempotent under replay —
// reconnecting and re-applying the full log must converge to the same view.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
)

// Phase is the client-visible progress state of a query.
type Phase string

const (
	PhaseSearching Phase = "searching"
	PhaseAnswering Phase = "answering"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// explanationMarker prefixes the model's stated plan when rendered.
const explanationMarker = "🧠 "

// QuerySession is the reduced view of one query's event stream.
type QuerySession struct {
	SessionID string
	Phase     Phase

	// Research progress, as last reported.
	ResearchStep     int
	MaxResearchSteps int
	CurrentAction    string

	// Explanation is the model's plan with its display marker, empty until a
	// section of kind "explanation" arrives.
	Explanation string

	// Answer is the committed answer text. During streaming it tracks the
	// text block; at end it is replaced by the longest candidate.
	Answer string

	Sections            []blocks.Section
	Sources             []blocks.Source
	FollowUpSuggestions []string
	// CardsByDomain holds the widget result cards keyed by widget type,
	// committed (and frozen) at end.
	CardsByDomain map[string][]json.RawMessage
	Scenario            events.Scenario
	UIDecision          events.UIDecision
	DestinationImages   []string
	Videos              []events.Video

	// Err is the terminal error message, if the stream failed.
	Err string

	blockStore map[string]blocks.Block
	blockOrder []string
	textBlock  string // id of the streamed answer block
	seen       map[string]bool
	finalized  bool
}

// NewQuerySession creates an empty view.
func NewQuerySession() *QuerySession {
	return &QuerySession{
		Phase:      PhaseSearching,
		blockStore: make(map[string]blocks.Block),
		seen:       make(map[string]bool),
	}
}

// envelope holds the fields needed to route a raw event.
type envelope struct {
	Type      events.Type `json:"type"`
	EventID   string      `json:"eventId"`
	SessionID string      `json:"sessionId"`
	BlockID   string      `json:"blockId"`
}

// Apply reduces one raw event into the view. Duplicate events (same
// dedupe key) and any event after finalization are ignored without error.
func (q *QuerySession) Apply(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	if q.finalized {
		return nil
	}
	if q.SessionID == "" {
		q.SessionID = env.SessionID
	}

	key := env.SessionID + "/" + env.EventID
	if env.Type == events.TypeUpdateBlock {
		key = env.SessionID + "/" + env.BlockID + "/" + env.EventID
	}
	if q.seen[key] {
		return nil
	}
	q.seen[key] = true

	switch env.Type {
	case events.TypeBlock:
		var p events.BlockPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode block event: %w", err)
		}
		return q.applyBlock(p.Block)

	case events.TypeUpdateBlock:
		var p events.UpdateBlockPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode updateBlock event: %w", err)
		}
		return q.applyUpdate(p.BlockID, p.Patch)

	case events.TypeSection:
		var p events.SectionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode section event: %w", err)
		}
		q.applySection(p.Section)
		return nil

	case events.TypeResearchProgress:
		var p events.ResearchProgressPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode researchProgress event: %w", err)
		}
		q.ResearchStep = p.ResearchStep
		q.MaxResearchSteps = p.MaxResearchSteps
		q.CurrentAction = p.CurrentAction
		return nil

	case events.TypeResearchComplete:
		// Research is over; progress indicators come down while the answer
		// keeps streaming.
		q.ResearchStep = 0
		q.MaxResearchSteps = 0
		q.CurrentAction = ""
		return nil

	case events.TypeEnd:
		var p events.EndPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode end event: %w", err)
		}
		q.applyEnd(p)
		return nil

	case events.TypeError:
		var p events.ErrorPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode error event: %w", err)
		}
		q.Err = p.Error
		q.Phase = PhaseError
		q.finalized = true
		return nil

	default:
		// Unknown event types are skipped so protocol additions do not break
		// older clients.
		return nil
	}
}

func (q *QuerySession) applyBlock(b blocks.Block) error {
	if _, exists := q.blockStore[b.ID]; !exists {
		q.blockOrder = append(q.blockOrder, b.ID)
	}
	q.blockStore[b.ID] = b
	if b.Type == blocks.TypeText && q.textBlock == "" {
		q.textBlock = b.ID
		if text, err := b.Text(); err == nil && text != "" {
			q.Answer = text
		}
	}
	if b.Type == blocks.TypeSource {
		sources, err := b.Sources()
		if err != nil {
			return err
		}
		q.Sources = blocks.MergeSources(q.Sources, sources)
	}
	return nil
}

func (q *QuerySession) applyUpdate(blockID string, ops []blocks.PatchOp) error {
	b, ok := q.blockStore[blockID]
	if !ok {
		// A replayed stream always delivers the block before its updates;
		// an unknown id means events arrived on a different session.
		return fmt.Errorf("updateBlock for unknown block %s", blockID)
	}
	patched, err := blocks.ApplyPatch(b, ops)
	if err != nil {
		return err
	}
	q.blockStore[blockID] = patched

	if blockID == q.textBlock {
		if text, err := patched.Text(); err == nil {
			q.Answer = text
		}
		// The first answer text ends the searching phase.
		if q.Phase == PhaseSearching {
			q.Phase = PhaseAnswering
		}
	}
	return nil
}

func (q *QuerySession) applySection(sec blocks.Section) {
	for _, existing := range q.Sections {
		if blocks.SameSection(existing, sec) {
			return
		}
	}
	q.Sections = append(q.Sections, sec)
	if sec.Kind == "explanation" && q.Explanation == "" {
		q.Explanation = explanationMarker + sec.Content
	}
}

// applyEnd commits the terminal envelope: the answer becomes the longest of
// the streamed text and the envelope's answer and summary fields, and the
// view freezes.
func (q *QuerySession) applyEnd(p events.EndPayload) {
	answer := q.Answer
	if len(p.Answer) > len(answer) {
		answer = p.Answer
	}
	if len(p.Summary) > len(answer) {
		answer = p.Summary
	}
	q.Answer = answer

	q.FollowUpSuggestions = p.FollowUpSuggestions
	q.Scenario = p.Scenario
	q.UIDecision = p.UIDecision
	q.DestinationImages = p.DestinationImages
	q.Videos = p.Videos
	q.CardsByDomain = q.cardsFromWidgets()
	if len(p.Sources) > 0 {
		// The end envelope's source list is canonical.
		q.Sources = p.Sources
	}
	for _, sec := range p.Sections {
		q.applySection(sec)
	}
	q.Phase = PhaseDone
	q.finalized = true
}

// cardsFromWidgets projects the received widget blocks into per-domain card
// lists. A params payload with an "items" array contributes one card per
// item; anything else is a single card.
func (q *QuerySession) cardsFromWidgets() map[string][]json.RawMessage {
	var out map[string][]json.RawMessage
	for _, id := range q.blockOrder {
		b := q.blockStore[id]
		if b.Type != blocks.TypeWidget {
			continue
		}
		wd, err := b.Widget()
		if err != nil {
			continue
		}
		params, err := json.Marshal(wd.Params)
		if err != nil {
			continue
		}
		if out == nil {
			out = make(map[string][]json.RawMessage)
		}
		var envelope struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(params, &envelope); err == nil && len(envelope.Items) > 0 {
			out[wd.WidgetType] = append(out[wd.WidgetType], envelope.Items...)
			continue
		}
		out[wd.WidgetType] = append(out[wd.WidgetType], params)
	}
	return out
}

// Blocks returns the current block values in arrival order.
func (q *QuerySession) Blocks() []blocks.Block {
	out := make([]blocks.Block, 0, len(q.blockOrder))
	for _, id := range q.blockOrder {
		out = append(out, q.blockStore[id])
	}
	return out
}

// Done reports whether a terminal event has been applied.
func (q *QuerySession) Done() bool { return q.finalized }
