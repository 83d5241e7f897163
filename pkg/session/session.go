// Package session holds per-request state: an ordered, replayable event
// log, the block store with idempotent patching, accumulated sections, and
// the subscriber fan-out. A Session is the only mutable state shared
// between the researcher, widget executor, and writer; all of them funnel
// through the emit methods, which own ordering and event-id assignment.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
)

// Subscriber receives every event of a session: first the stored log (in
// order), then stored sections, then the live tail. Callbacks run on the
// emitter goroutine and must not block; panics are recovered and logged
// without affecting other subscribers.
type Subscriber func(events.Event)

// Session is a single request's event bus. Emitted events are appended,
// never reordered or rewritten; block updates mutate the block store before
// the paired updateBlock event is appended.
type Session struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	log        []events.Event
	blockStore map[string]blocks.Block
	blockOrder []string
	sections   []blocks.Section
	subs       map[int]Subscriber
	nextSubID  int
	terminal   bool
	canceled   bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	timerMu sync.Mutex
	timer   *time.Timer
	ttl     time.Duration
}

func newSession(id string) *Session {
	return &Session{
		id:         id,
		createdAt:  time.Now(),
		blockStore: make(map[string]blocks.Block),
		subs:       make(map[int]Subscriber),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session construction time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// BindCancel stores the cancel function for the pipeline processing this
// session. Called once by the request handler before processing starts.
func (s *Session) BindCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancel = cancel
}

// Cancel aborts the in-flight pipeline. The session stops emitting — it
// does not emit end — but continues to service replays until TTL expiry.
// Returns false if no pipeline was bound.
func (s *Session) Cancel() bool {
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()

	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Subscribe registers a callback and synchronously replays, in order, every
// stored event, then every stored section as a fresh section event. The
// returned function unsubscribes.
func (s *Session) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = sub
	replay := make([]events.Event, len(s.log))
	copy(replay, s.log)
	sections := make([]blocks.Section, len(s.sections))
	copy(sections, s.sections)
	s.mu.Unlock()

	for _, ev := range replay {
		deliver(s.id, sub, ev)
	}
	for _, sec := range sections {
		deliver(s.id, sub, events.SectionPayload{
			BasePayload: s.base(events.TypeSection),
			Section:     sec,
		})
	}

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// EmitBlock inserts the block into the store and emits a block event.
func (s *Session) EmitBlock(b blocks.Block) {
	s.emit(func() events.Event {
		if _, exists := s.blockStore[b.ID]; !exists {
			s.blockOrder = append(s.blockOrder, b.ID)
		}
		s.blockStore[b.ID] = b
		return events.BlockPayload{
			BasePayload: s.base(events.TypeBlock),
			Block:       b,
		}
	})
}

// UpdateBlock applies the patch to the stored block, then emits an
// updateBlock event carrying the same patch. The store mutation always
// precedes the event append.
func (s *Session) UpdateBlock(blockID string, ops []blocks.PatchOp) error {
	var applyErr error
	s.emit(func() events.Event {
		b, ok := s.blockStore[blockID]
		if !ok {
			applyErr = fmt.Errorf("update block %s: unknown block", blockID)
			return nil
		}
		patched, err := blocks.ApplyPatch(b, ops)
		if err != nil {
			applyErr = fmt.Errorf("update block %s: %w", blockID, err)
			return nil
		}
		s.blockStore[blockID] = patched
		return events.UpdateBlockPayload{
			BasePayload: s.base(events.TypeUpdateBlock),
			BlockID:     blockID,
			Patch:       ops,
		}
	})
	return applyErr
}

// AddSection stores the section (deduplicated by id or title) and emits a
// section event. Duplicate sections are dropped silently.
func (s *Session) AddSection(sec blocks.Section) {
	s.emit(func() events.Event {
		for _, existing := range s.sections {
			if blocks.SameSection(existing, sec) {
				return nil
			}
		}
		s.sections = append(s.sections, sec)
		return events.SectionPayload{
			BasePayload: s.base(events.TypeSection),
			Section:     sec,
		}
	})
}

// ResearchProgress emits a researchProgress event.
func (s *Session) ResearchProgress(step, maxSteps int, action string) {
	s.emit(func() events.Event {
		return events.ResearchProgressPayload{
			BasePayload:      s.base(events.TypeResearchProgress),
			ResearchStep:     step,
			MaxResearchSteps: maxSteps,
			CurrentAction:    action,
		}
	})
}

// ResearchComplete emits a researchComplete event.
func (s *Session) ResearchComplete() {
	s.emit(func() events.Event {
		return events.ResearchCompletePayload{
			BasePayload: s.base(events.TypeResearchComplete),
		}
	})
}

// End emits the terminal envelope. Routing fields and stored sections are
// filled in here; after End no further blocks or updates are emitted for
// this request, though replays continue to be served.
func (s *Session) End(p events.EndPayload) {
	s.emit(func() events.Event {
		p.BasePayload = s.base(events.TypeEnd)
		if p.Sections == nil {
			p.Sections = append([]blocks.Section{}, s.sections...)
		}
		s.terminal = true
		return p
	})
}

// Error emits a terminal error event. Like End, it seals the session
// against further streaming emissions.
func (s *Session) Error(msg string) {
	s.emit(func() events.Event {
		s.terminal = true
		return events.ErrorPayload{
			BasePayload: s.base(events.TypeError),
			Error:       msg,
		}
	})
}

// Blocks returns the current block values in insertion order.
func (s *Session) Blocks() []blocks.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]blocks.Block, 0, len(s.blockOrder))
	for _, id := range s.blockOrder {
		out = append(out, s.blockStore[id])
	}
	return out
}

// Block returns the current value of a single block.
func (s *Session) Block(id string) (blocks.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blockStore[id]
	return b, ok
}

// Sections returns the stored sections.
func (s *Session) Sections() []blocks.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blocks.Section{}, s.sections...)
}

// Events returns a copy of the stored event log.
func (s *Session) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event{}, s.log...)
}

// Ended reports whether a terminal end or error event has been emitted.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// base mints the routing fields for a new event. Caller holds s.mu.
func (s *Session) base(t events.Type) events.BasePayload {
	return events.BasePayload{
		Type:      t,
		EventID:   uuid.New().String(),
		SessionID: s.id,
	}
}

// emit runs build under the session lock, appends the produced event to the
// log, then fans out to subscribers outside the lock. A nil event (dedupe
// hit, patch failure) emits nothing. Emissions after a terminal event or
// cancellation are dropped.
func (s *Session) emit(build func() events.Event) {
	s.mu.Lock()
	if s.terminal || s.canceled {
		s.mu.Unlock()
		return
	}
	ev := build()
	if ev == nil {
		s.mu.Unlock()
		return
	}
	s.log = append(s.log, ev)
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	s.touch()
	for _, sub := range subs {
		deliver(s.id, sub, ev)
	}
}

// deliver invokes a subscriber, recovering panics so one broken callback
// cannot affect the emitter or other subscribers.
func deliver(sessionID string, sub Subscriber, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscriber callback panicked",
				"session_id", sessionID, "event_type", ev.Base().Type, "panic", r)
		}
	}()
	sub(ev)
}

// touch re-arms the TTL timer, if one is attached.
func (s *Session) touch() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Reset(s.ttl)
	}
}

// armTTL attaches the destruction timer. Called once by the store.
func (s *Session) armTTL(ttl time.Duration, expire func()) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.ttl = ttl
	s.timer = time.AfterFunc(ttl, expire)
}

// destroy clears subscribers and timers. Called by the store on TTL expiry
// or explicit deletion.
func (s *Session) destroy() {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerMu.Unlock()

	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.subs = make(map[int]Subscriber)
	s.mu.Unlock()
}
