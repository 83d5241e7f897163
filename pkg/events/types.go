// Package events defines the streaming wire protocol between a session and
// its subscribers.
//
// ════════════════════════════════════════════════════════════════
// Event lifecycle
// ════════════════════════════════════════════════════════════════
//
// A request produces one ordered event log:
//
//	block            {block: {id, type, data}}        — a new content unit
//	updateBlock      {blockId, patch: [{op,path,value}]} — text accumulation
//	section          {section: {id, title, content}}  — narrative fragment
//	researchProgress {researchStep, maxResearchSteps, currentAction}
//	researchComplete {}
//	end              {followUpSuggestions, scenario, uiDecision, ...}
//	error            {error}
//
// Text streams via one `block` event followed by repeated `updateBlock`
// events whose `replace /data` value carries the FULL accumulated text, not
// a delta. Receivers that want deltas compute them locally.
//
// `end` and `error` are terminal: after either, the session emits nothing
// further for the request, though late subscribers still get a full replay.
//
// Every payload carries a unique eventId. Receivers deduplicate on
// (sessionId, eventId), or (sessionId, blockId, eventId) for updateBlock.
// ════════════════════════════════════════════════════════════════
package events

// Type identifies the kind of event in an envelope.
type Type string

const (
	TypeBlock            Type = "block"
	TypeUpdateBlock      Type = "updateBlock"
	TypeSection          Type = "section"
	TypeResearchProgress Type = "researchProgress"
	TypeResearchComplete Type = "researchComplete"
	TypeEnd              Type = "end"
	TypeError            Type = "error"
)

// Scenario is a coarse categorization of the answer shape, derived from
// which widget executors produced results — never from client-side data
// presence heuristics.
type Scenario string

const (
	ScenarioHotelLookupSingle Scenario = "hotel_lookup_single"
	ScenarioHotelBrowse       Scenario = "hotel_browse"
	ScenarioProductBrowse     Scenario = "product_browse"
	ScenarioPlaceBrowse       Scenario = "place_browse"
	ScenarioGeneralAnswer     Scenario = "general_answer"
)

// UIDecision is a backend-computed hint about which surfaces the client
// should render.
type UIDecision struct {
	ShowMap        bool `json:"showMap"`
	ShowCards      bool `json:"showCards"`
	ShowImages     bool `json:"showImages"`
	ShowComparison bool `json:"showComparison"`
}

// Video is an optional media result carried in the end envelope.
type Video struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}
