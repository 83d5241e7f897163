// Package pipeline runs one query end to end: classification, widgets and
// research in parallel, streamed synthesis, follow-up generation, and the
// terminal end envelope.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/followup"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/research"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
	"github.com/wayfarer-ai/wayfarer/pkg/synthesis"
	"github.com/wayfarer-ai/wayfarer/pkg/widgets"
)

// followupGrace bounds how long the end envelope waits on follow-up
// generation after the answer finishes streaming.
const followupGrace = 10 * time.Second

// Recorder persists finalized sessions. Optional; a nil Recorder disables
// persistence.
type Recorder interface {
	SaveFinalized(ctx context.Context, rec Record) error
}

// Record is the snapshot handed to the Recorder after end.
type Record struct {
	SessionID   string
	Query       string
	Answer      string
	Scenario    events.Scenario
	Sources     []blocks.Source
	Sections    []blocks.Section
	Suggestions []string
	FinishedAt  time.Time
}

// Request is one query to process.
type Request struct {
	Query   string
	History []llm.Message
	Mode    config.Mode
	Sources []string // enabled retrieval source names
	// SystemInstructions is caller-supplied steering text passed through to
	// the writer.
	SystemInstructions string
	// Client, when set, overrides the default LLM client for the generation
	// stages (per-request model selection, resolved by the transport layer).
	Client llm.Client
}

// Engine wires the stages together. All stages emit through the session
// sink; Engine owns only sequencing and the end envelope.
type Engine struct {
	classifier *classify.Classifier
	researcher *research.Researcher
	widgets    *widgets.Executor
	writer     SynthWriter
	followups  *followup.Generator
	recorder   Recorder
}

// SynthWriter is the synthesis stage contract; *synthesis.Writer satisfies
// it, and tests substitute a scripted writer.
type SynthWriter interface {
	Write(ctx context.Context, sink session.Sink, req synthesis.Request) (string, error)
}

// New creates an engine. recorder may be nil.
func New(classifier *classify.Classifier, researcher *research.Researcher, widgetExec *widgets.Executor, writer SynthWriter, followups *followup.Generator, recorder Recorder) *Engine {
	return &Engine{
		classifier: classifier,
		researcher: researcher,
		widgets:    widgetExec,
		writer:     writer,
		followups:  followups,
		recorder:   recorder,
	}
}

// Process runs the full pipeline for one request. All output flows through
// the sink; the returned error is for the caller's logs only — stream-level
// failures have already been emitted as terminal error events, and a
// canceled context emits nothing further by session contract.
func (e *Engine) Process(ctx context.Context, sess *session.Session, req Request) error {
	result := e.classifier.Classify(ctx, req.History, req.Query, req.Sources)
	query := result.StandaloneFollowUp

	// Widgets and research are independent; run them in parallel. Neither
	// returns a fatal error on partial failure.
	var (
		widgetResults  []widgets.Result
		researchResult *research.Result
		researchErr    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		widgetResults = e.widgets.Run(ctx, sess, result.Classification, query)
	}()
	if result.Classification.SkipSearch {
		researchResult = &research.Result{}
		sess.ResearchComplete()
	} else {
		researchResult, researchErr = e.researcher.Run(ctx, sess, research.Request{
			Query:          query,
			History:        req.History,
			Classification: result.Classification,
			Mode:           req.Mode,
			Sources:        req.Sources,
			Client:         req.Client,
		})
	}
	<-done

	if researchErr != nil {
		return e.fail(ctx, sess, fmt.Errorf("research: %w", researchErr))
	}

	// Follow-up generation starts as soon as the writer has streamed enough
	// text, so it overlaps the remainder of synthesis.
	suggestionCh := make(chan []string, 1)
	answer, err := e.writer.Write(ctx, sess, synthesis.Request{
		Query:              query,
		History:            req.History,
		Chunks:             researchResult.Chunks,
		Widgets:            widgetResults,
		SystemInstructions: req.SystemInstructions,
		Client:             req.Client,
		OnEarlyAnswer: func(partial string) {
			go func() {
				suggestionCh <- e.followups.Generate(ctx, query, partial)
			}()
		},
	})
	if err != nil {
		return e.fail(ctx, sess, fmt.Errorf("synthesis: %w", err))
	}

	var suggestions []string
	select {
	case suggestions = <-suggestionCh:
	case <-time.After(followupGrace):
		slog.Warn("Follow-up generation timed out", "session_id", sess.ID())
	case <-ctx.Done():
		return ctx.Err()
	}

	scenario := scenarioFor(widgetResults)
	end := events.EndPayload{
		FollowUpSuggestions: suggestions,
		Scenario:            scenario,
		UIDecision:          uiDecisionFor(scenario, widgetResults),
		Sources:             researchResult.Sources,
		DestinationImages:   destinationImages(scenario, researchResult.Sources, widgetResults),
		Answer:              answer,
	}
	sess.End(end)

	if e.recorder != nil {
		rec := Record{
			SessionID:   sess.ID(),
			Query:       req.Query,
			Answer:      answer,
			Scenario:    scenario,
			Sources:     researchResult.Sources,
			Sections:    sess.Sections(),
			Suggestions: suggestions,
			FinishedAt:  time.Now(),
		}
		if err := e.recorder.SaveFinalized(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("Failed to persist finalized session", "session_id", sess.ID(), "error", err)
		}
	}
	return nil
}

// fail converts a stage error into a terminal error event. Cancellation is
// not an error to report: the session is already sealed against emissions.
func (e *Engine) fail(ctx context.Context, sess *session.Session, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return err
	}
	slog.Error("Pipeline failed", "session_id", sess.ID(), "error", err)
	sess.Error(err.Error())
	return err
}

// destinationImages surfaces imagery from sources and widget results for
// browse scenarios, deduplicated in first-seen order and capped to keep the
// envelope small.
func destinationImages(scenario events.Scenario, sources []blocks.Source, widgetResults []widgets.Result) []string {
	if scenario != events.ScenarioHotelBrowse && scenario != events.ScenarioPlaceBrowse {
		return nil
	}
	const maxImages = 8
	var candidates []string
	for _, s := range sources {
		candidates = append(candidates, s.Images...)
	}
	candidates = append(candidates, widgetImages(widgetResults)...)

	seen := make(map[string]bool)
	var out []string
	for _, img := range candidates {
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		out = append(out, img)
		if len(out) == maxImages {
			break
		}
	}
	return out
}

// widgetImages pulls image URLs out of widget params: a top-level "images"
// list plus per-item image fields.
func widgetImages(results []widgets.Result) []string {
	var out []string
	for _, r := range results {
		var params struct {
			Images []string `json:"images"`
			Items  []struct {
				Image     string   `json:"image"`
				Thumbnail string   `json:"thumbnail"`
				Images    []string `json:"images"`
			} `json:"items"`
		}
		if len(r.Params) == 0 || json.Unmarshal(r.Params, &params) != nil {
			continue
		}
		out = append(out, params.Images...)
		for _, item := range params.Items {
			if item.Image != "" {
				out = append(out, item.Image)
			}
			if item.Thumbnail != "" {
				out = append(out, item.Thumbnail)
			}
			out = append(out, item.Images...)
		}
	}
	return out
}
