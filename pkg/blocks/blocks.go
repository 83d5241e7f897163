// Package blocks defines the typed content units a session emits to
// subscribers: streamed answer text, deduplicated source citations, domain
// widget results, and follow-up suggestions, plus the narrative sections
// that live on the session itself.
package blocks

import (
	"encoding/json"
	"fmt"

	"github.com/lithammer/shortuuid/v4"
)

// Type identifies the kind of content a block carries.
type Type string

const (
	TypeText       Type = "text"
	TypeSource     Type = "source"
	TypeWidget     Type = "widget"
	TypeSuggestion Type = "suggestion"
)

// Block is a tagged union. Data is kept as raw JSON so the same value can be
// stored, patched, and forwarded to clients without re-encoding; typed
// accessors decode it on demand.
type Block struct {
	ID   string          `json:"id"`
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WidgetData is the payload of a widget block.
type WidgetData struct {
	WidgetType string `json:"widgetType"`
	Params     any    `json:"params"`
}

// NewText creates a text block seeded with the given content.
func NewText(text string) (Block, error) {
	data, err := json.Marshal(text)
	if err != nil {
		return Block{}, fmt.Errorf("marshal text block data: %w", err)
	}
	return Block{ID: shortuuid.New(), Type: TypeText, Data: data}, nil
}

// NewSource creates a source block carrying the given citations.
func NewSource(sources []Source) (Block, error) {
	data, err := json.Marshal(sources)
	if err != nil {
		return Block{}, fmt.Errorf("marshal source block data: %w", err)
	}
	return Block{ID: shortuuid.New(), Type: TypeSource, Data: data}, nil
}

// NewWidget creates a widget block for one successful widget result.
func NewWidget(widgetType string, params any) (Block, error) {
	data, err := json.Marshal(WidgetData{WidgetType: widgetType, Params: params})
	if err != nil {
		return Block{}, fmt.Errorf("marshal widget block data: %w", err)
	}
	return Block{ID: shortuuid.New(), Type: TypeWidget, Data: data}, nil
}

// NewSuggestion creates a suggestion block carrying follow-up questions.
func NewSuggestion(suggestions []string) (Block, error) {
	data, err := json.Marshal(suggestions)
	if err != nil {
		return Block{}, fmt.Errorf("marshal suggestion block data: %w", err)
	}
	return Block{ID: shortuuid.New(), Type: TypeSuggestion, Data: data}, nil
}

// Text decodes the data of a text block.
func (b Block) Text() (string, error) {
	if b.Type != TypeText {
		return "", fmt.Errorf("block %s is %q, not text", b.ID, b.Type)
	}
	var s string
	if err := json.Unmarshal(b.Data, &s); err != nil {
		return "", fmt.Errorf("decode text block %s: %w", b.ID, err)
	}
	return s, nil
}

// Sources decodes the data of a source block.
func (b Block) Sources() ([]Source, error) {
	if b.Type != TypeSource {
		return nil, fmt.Errorf("block %s is %q, not source", b.ID, b.Type)
	}
	var out []Source
	if err := json.Unmarshal(b.Data, &out); err != nil {
		return nil, fmt.Errorf("decode source block %s: %w", b.ID, err)
	}
	return out, nil
}

// Widget decodes the data of a widget block.
func (b Block) Widget() (WidgetData, error) {
	if b.Type != TypeWidget {
		return WidgetData{}, fmt.Errorf("block %s is %q, not widget", b.ID, b.Type)
	}
	var out WidgetData
	if err := json.Unmarshal(b.Data, &out); err != nil {
		return WidgetData{}, fmt.Errorf("decode widget block %s: %w", b.ID, err)
	}
	return out, nil
}

// Section is a persistent narrative fragment attached to the session rather
// than stored as a block, so late subscribers receive it via replay.
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// SameSection reports whether two sections collide under the dedupe rule:
// equal id, or equal title.
func SameSection(a, b Section) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return a.Title != "" && a.Title == b.Title
}
