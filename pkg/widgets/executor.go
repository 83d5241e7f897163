package widgets

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// Executor fans enabled widget lookups out to the provider and emits a
// widget block per success. Failures are logged and skipped: a widget is an
// enrichment, never a reason to fail the query.
type Executor struct {
	provider Provider
	cfg      config.WidgetsConfig
}

// NewExecutor creates an executor. Widget types absent from cfg are treated
// as disabled regardless of classifier flags.
func NewExecutor(provider Provider, cfg config.WidgetsConfig) *Executor {
	return &Executor{provider: provider, cfg: cfg}
}

// Run executes all widgets enabled by the classification, emitting blocks in
// the fixed widget order regardless of completion order. It returns the
// successful results for scenario selection.
func (e *Executor) Run(ctx context.Context, sink session.Sink, c classify.Classification, query string) []Result {
	type slot struct {
		result Result
		ok     bool
	}
	slots := make([]slot, len(flagged))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range flagged {
		if !f.enabled(c) {
			continue
		}
		if _, configured := e.cfg[f.widgetType]; !configured {
			slog.Debug("Widget enabled by classifier but not configured", "widget", f.widgetType)
			continue
		}
		g.Go(func() error {
			params, items, err := e.provider.Fetch(gctx, f.widgetType, query)
			if err != nil {
				slog.Warn("Widget lookup failed", "session_id", sink.ID(), "widget", f.widgetType, "error", err)
				return nil
			}
			mu.Lock()
			slots[i] = slot{result: Result{WidgetType: f.widgetType, Params: params, Items: items}, ok: true}
			mu.Unlock()
			return nil
		})
	}
	// Per-widget errors are swallowed above; Wait only fails on context
	// cancellation, at which point emitting is pointless anyway.
	if err := g.Wait(); err != nil {
		return nil
	}

	results := make([]Result, 0, len(slots))
	for _, s := range slots {
		if !s.ok {
			continue
		}
		block, err := blocks.NewWidget(s.result.WidgetType, s.result.Params)
		if err != nil {
			slog.Warn("Dropping widget with unmarshalable params", "widget", s.result.WidgetType, "error", err)
			continue
		}
		sink.EmitBlock(block)
		results = append(results, s.result)
	}
	return results
}
