package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
)

type stubWidgetProvider struct {
	params map[string]json.RawMessage
	items  map[string]int
	errs   map[string]error
}

func (s *stubWidgetProvider) Fetch(_ context.Context, widgetType, _ string) (json.RawMessage, int, error) {
	if err, ok := s.errs[widgetType]; ok {
		return nil, 0, err
	}
	return s.params[widgetType], s.items[widgetType], nil
}

type blockSink struct {
	mu     sync.Mutex
	blocks []blocks.Block
}

func (b *blockSink) ID() string { return "test-session" }
func (b *blockSink) EmitBlock(block blocks.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = append(b.blocks, block)
}
func (b *blockSink) UpdateBlock(string, []blocks.PatchOp) error { return nil }
func (b *blockSink) AddSection(blocks.Section)                  {}
func (b *blockSink) ResearchProgress(int, int, string)          {}
func (b *blockSink) ResearchComplete()                          {}
func (b *blockSink) End(events.EndPayload)                      {}
func (b *blockSink) Error(string)                               {}

func widgetsConfig(types ...string) config.WidgetsConfig {
	cfg := make(config.WidgetsConfig, len(types))
	for _, t := range types {
		cfg[t] = config.WidgetEndpoint{BaseURL: "http://unused", Timeout: time.Second}
	}
	return cfg
}

func TestRunEmitsEnabledConfiguredWidgetsInOrder(t *testing.T) {
	provider := &stubWidgetProvider{
		params: map[string]json.RawMessage{
			TypeWeather: json.RawMessage(`{"temp":24}`),
			TypeHotel:   json.RawMessage(`{"items":[{"name":"A"},{"name":"B"}]}`),
		},
		items: map[string]int{TypeWeather: 1, TypeHotel: 2},
	}
	sink := &blockSink{}
	e := NewExecutor(provider, widgetsConfig(TypeWeather, TypeHotel))

	results := e.Run(context.Background(), sink, classify.Classification{
		ShowWeatherWidget: true,
		ShowHotelWidget:   true,
		ShowMovieWidget:   true, // flagged but not configured
	}, "hotels in lisbon")

	require.Len(t, results, 2)
	assert.Equal(t, TypeWeather, results[0].WidgetType)
	assert.Equal(t, TypeHotel, results[1].WidgetType)
	assert.Equal(t, 2, results[1].Items)

	require.Len(t, sink.blocks, 2)
	wd, err := sink.blocks[1].Widget()
	require.NoError(t, err)
	assert.Equal(t, TypeHotel, wd.WidgetType)
}

func TestRunSkipsFailedWidgets(t *testing.T) {
	provider := &stubWidgetProvider{
		params: map[string]json.RawMessage{TypeStock: json.RawMessage(`{"price":101.5}`)},
		items:  map[string]int{TypeStock: 1},
		errs:   map[string]error{TypeWeather: errors.New("backend down")},
	}
	sink := &blockSink{}
	e := NewExecutor(provider, widgetsConfig(TypeWeather, TypeStock))

	results := e.Run(context.Background(), sink, classify.Classification{
		ShowWeatherWidget: true,
		ShowStockWidget:   true,
	}, "AAPL price")

	require.Len(t, results, 1)
	assert.Equal(t, TypeStock, results[0].WidgetType)
	assert.Len(t, sink.blocks, 1)
}

func TestRunNoFlagsNoWork(t *testing.T) {
	sink := &blockSink{}
	e := NewExecutor(&stubWidgetProvider{}, widgetsConfig(TypeWeather))
	results := e.Run(context.Background(), sink, classify.Classification{}, "anything")
	assert.Empty(t, results)
	assert.Empty(t, sink.blocks)
}

func TestHTTPProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hotels in lisbon", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"name":"A"},{"name":"B"},{"name":"C"}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.WidgetsConfig{
		TypeHotel: {BaseURL: srv.URL, Timeout: 5 * time.Second},
	})
	params, items, err := p.Fetch(context.Background(), TypeHotel, "hotels in lisbon")
	require.NoError(t, err)
	assert.Equal(t, 3, items)
	assert.True(t, json.Valid(params))
}

func TestHTTPProviderCountsObjectAsOneItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"temp":24,"unit":"C"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.WidgetsConfig{
		TypeWeather: {BaseURL: srv.URL, Timeout: 5 * time.Second},
	})
	_, items, err := p.Fetch(context.Background(), TypeWeather, "weather lisbon")
	require.NoError(t, err)
	assert.Equal(t, 1, items)
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.WidgetsConfig{
		TypePlace: {BaseURL: srv.URL, Timeout: 5 * time.Second},
	})
	_, _, err := p.Fetch(context.Background(), TypePlace, "cafes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
