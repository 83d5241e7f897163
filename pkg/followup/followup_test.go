package followup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
)

type completeClient struct {
	response string
	err      error
}

func (c *completeClient) Stream(context.Context, *llm.Request) (<-chan llm.Chunk, error) {
	return nil, errors.New("not scripted")
}

func (c *completeClient) Complete(context.Context, *llm.Request) (string, error) {
	return c.response, c.err
}

func cfg() config.FollowupConfig {
	return config.FollowupConfig{MaxSuggestions: 3, JaccardThreshold: 0.5}
}

func TestGenerateParsesAndCaps(t *testing.T) {
	client := &completeClient{response: `{"suggestions":[
		"What are the best beaches near Lisbon?",
		"How expensive is public transport there?",
		"Which museums are worth a full day?",
		"Is tap water safe to drink?"
	]}`}
	got := New(client, "m", cfg()).Generate(context.Background(), "things to do in lisbon", "...")
	require.Len(t, got, 3)
	assert.Equal(t, "What are the best beaches near Lisbon?", got[0])
}

func TestGenerateDropsNearDuplicateOfQuery(t *testing.T) {
	client := &completeClient{response: `{"suggestions":[
		"Things to do in Lisbon?",
		"Where should I eat seafood nearby?"
	]}`}
	got := New(client, "m", cfg()).Generate(context.Background(), "things to do in lisbon", "...")
	require.Len(t, got, 1)
	assert.Equal(t, "Where should I eat seafood nearby?", got[0])
}

func TestGenerateDropsNearDuplicateSuggestions(t *testing.T) {
	client := &completeClient{response: `{"suggestions":[
		"What are the best surfing spots in Portugal?",
		"What are the best surfing spots around Portugal?",
		"When does the rainy season start?"
	]}`}
	got := New(client, "m", cfg()).Generate(context.Background(), "weather in lisbon", "...")
	require.Len(t, got, 2)
	assert.Equal(t, "What are the best surfing spots in Portugal?", got[0])
	assert.Equal(t, "When does the rainy season start?", got[1])
}

func TestGenerateNeverFails(t *testing.T) {
	assert.Empty(t, New(&completeClient{err: errors.New("down")}, "m", cfg()).
		Generate(context.Background(), "q", "a"))
	assert.Empty(t, New(&completeClient{response: "not json"}, "m", cfg()).
		Generate(context.Background(), "q", "a"))
}

func TestJaccard(t *testing.T) {
	a := tokenize("best hotels in lisbon")
	b := tokenize("the best hotels of Lisbon")
	assert.Greater(t, jaccard(a, b), 0.5)

	c := tokenize("cheap flights to porto")
	assert.Less(t, jaccard(a, c), 0.5)

	assert.Equal(t, 1.0, jaccard(tokenize(""), tokenize("the a of")))
}
