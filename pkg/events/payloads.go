package events

import "github.com/wayfarer-ai/wayfarer/pkg/blocks"

// Event is implemented by every payload struct. Base returns the routing
// fields shared by all envelopes.
type Event interface {
	Base() BasePayload
}

// BasePayload carries the routing fields present on every event.
type BasePayload struct {
	Type      Type   `json:"type"`
	EventID   string `json:"eventId"`
	SessionID string `json:"sessionId"`
}

// Base implements Event.
func (b BasePayload) Base() BasePayload { return b }

// BlockPayload announces a new block.
type BlockPayload struct {
	BasePayload
	Block blocks.Block `json:"block"`
}

// UpdateBlockPayload patches an existing block. The receiver-side dedupe
// key includes BlockID.
type UpdateBlockPayload struct {
	BasePayload
	BlockID string           `json:"blockId"`
	Patch   []blocks.PatchOp `json:"patch"`
}

// SectionPayload announces a narrative section. Sections deduplicate by id
// or title on the receiver.
type SectionPayload struct {
	BasePayload
	Section blocks.Section `json:"section"`
}

// ResearchProgressPayload reports researcher iteration progress.
type ResearchProgressPayload struct {
	BasePayload
	ResearchStep     int    `json:"researchStep"`
	MaxResearchSteps int    `json:"maxResearchSteps"`
	CurrentAction    string `json:"currentAction"`
}

// ResearchCompletePayload signals that retrieval has finished and synthesis
// is about to begin.
type ResearchCompletePayload struct {
	BasePayload
}

// EndPayload is the terminal envelope. Sources here are the authoritative
// deduplicated union — the earlier source block is a preview, this list is
// canonical.
type EndPayload struct {
	BasePayload
	FollowUpSuggestions []string         `json:"followUpSuggestions"`
	Scenario            Scenario         `json:"scenario"`
	UIDecision          UIDecision       `json:"uiDecision"`
	Sections            []blocks.Section `json:"sections,omitempty"`
	Sources             []blocks.Source  `json:"sources,omitempty"`
	DestinationImages   []string         `json:"destination_images,omitempty"`
	Videos              []Video          `json:"videos,omitempty"`
	Answer              string           `json:"answer,omitempty"`
	Summary             string           `json:"summary,omitempty"`
}

// ErrorPayload is the terminal envelope for stream-level failures.
type ErrorPayload struct {
	BasePayload
	Error string `json:"error"`
}
