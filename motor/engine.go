package motor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pb33f/logtracker/normalize"
)

type atomicStats struct {
	eventsAccepted    int64
	consoleMessages   int64
	malformedEvents   int64
	unsupportedEvents int64
	rejectedEvents    int64
	bodyFetches       int64
	bodyFetchFailures int64
	staleCompletions  int64
	mergePanics       int64
}

// Engine correlates the asynchronous event stream of every attached session.
// Each session gets one merge goroutine fed by an unbounded mailbox, so
// ingestion never blocks and all mutation of a session is single-writer.
type Engine struct {
	store   *Store
	fetcher BodyFetcher
	logger  *slog.Logger
	stats   atomicStats
}

var _ EventSink = (*Engine)(nil)

// NewEngine wires an engine to a store. A nil fetcher disables body
// retrieval; records then stop at the response-seen state.
func NewEngine(store *Store, fetcher BodyFetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
	}
}

func (e *Engine) Store() *Store {
	return e.store
}

// Attach starts the merge loop of a session created in the store.
func (e *Engine) Attach(id SessionID) error {
	s, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("attach %q: %w", id, ErrSessionNotFound)
	}
	if !e.start(s) {
		return fmt.Errorf("attach %q: %w", id, ErrSessionExists)
	}
	e.logger.Debug("session attached", "session", id)
	return nil
}

func (e *Engine) start(s *Session) bool {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return false
	}
	s.attached = true
	s.mu.Unlock()

	go e.run(s)
	return true
}

// OnEvent queues a canonical event for the session.
func (e *Engine) OnEvent(id SessionID, ev normalize.Event) error {
	if ev == nil {
		return fmt.Errorf("session %q: %w: nil event", id, normalize.ErrMalformedEvent)
	}
	return e.post(id, mail{kind: mailEvent, event: ev})
}

func (e *Engine) OnConsoleEvent(id SessionID, msg normalize.ConsoleMessage) error {
	return e.OnEvent(id, normalize.ConsoleEntry{Message: msg})
}

// HandleMessage decodes a raw protocol event and queues it. Malformed and
// unsupported payloads are counted and dropped without touching the session.
func (e *Engine) HandleMessage(id SessionID, method string, params []byte) error {
	ev, err := normalize.DecodeEvent(method, params)
	if err != nil {
		if errors.Is(err, normalize.ErrUnsupportedEvent) {
			atomic.AddInt64(&e.stats.unsupportedEvents, 1)
			e.logger.Debug("ignoring event", "session", id, "method", method)
		} else {
			atomic.AddInt64(&e.stats.malformedEvents, 1)
			e.logger.Warn("dropping malformed event", "session", id, "method", method, "error", err)
		}
		return err
	}
	return e.OnEvent(id, ev)
}

func (e *Engine) post(id SessionID, m mail) error {
	s, ok := e.store.Get(id)
	if !ok {
		atomic.AddInt64(&e.stats.rejectedEvents, 1)
		return fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	if err := s.enqueue(m); err != nil {
		atomic.AddInt64(&e.stats.rejectedEvents, 1)
		return fmt.Errorf("session %q: %w", id, err)
	}
	atomic.AddInt64(&e.stats.eventsAccepted, 1)
	return nil
}

// WaitIdle blocks until the session has no queued mail and no body fetch in
// flight, or ctx ends.
func (e *Engine) WaitIdle(ctx context.Context, id SessionID) error {
	s, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("wait %q: %w", id, ErrSessionNotFound)
	}
	for {
		ch := s.idleChan()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Detach stops intake, drains the mailbox and returns a deep copy of the
// session. Body fetches still in flight are cancelled and their results
// discarded. The session stays in the store until the caller destroys it.
//
// Once intake has stopped the snapshot is always taken: the drain only
// covers mail already queued in memory, so ending ctx early just cancels
// the body fetches sooner.
func (e *Engine) Detach(ctx context.Context, id SessionID) (Snapshot, error) {
	s, ok := e.store.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("detach %q: %w", id, ErrSessionNotFound)
	}
	if !s.beginClose() {
		return Snapshot{}, fmt.Errorf("detach %q: %w", id, ErrSessionClosed)
	}

	// a session that was never attached still has to drain what it queued
	e.start(s)

	select {
	case <-s.done:
	case <-ctx.Done():
		s.cancel()
		<-s.done
	}
	s.cancel()

	snap := s.snapshot()
	e.logger.Debug("session detached", "session", id,
		"records", len(snap.Records), "console", len(snap.Console))
	return snap, nil
}

func (e *Engine) Stats() EngineStats {
	return EngineStats{
		EventsAccepted:    atomic.LoadInt64(&e.stats.eventsAccepted),
		ConsoleMessages:   atomic.LoadInt64(&e.stats.consoleMessages),
		MalformedEvents:   atomic.LoadInt64(&e.stats.malformedEvents),
		UnsupportedEvents: atomic.LoadInt64(&e.stats.unsupportedEvents),
		RejectedEvents:    atomic.LoadInt64(&e.stats.rejectedEvents),
		BodyFetches:       atomic.LoadInt64(&e.stats.bodyFetches),
		BodyFetchFailures: atomic.LoadInt64(&e.stats.bodyFetchFailures),
		StaleCompletions:  atomic.LoadInt64(&e.stats.staleCompletions),
		MergePanics:       atomic.LoadInt64(&e.stats.mergePanics),
		ActiveSessions:    e.store.Len(),
	}
}

func (e *Engine) run(s *Session) {
	defer close(s.done)

	for {
		batch, ok := s.next()
		if !ok {
			return
		}
		for _, m := range batch {
			e.apply(s, m)
		}
	}
}

// apply merges one mail item. A panic while merging only loses that item.
func (e *Engine) apply(s *Session, m mail) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&e.stats.mergePanics, 1)
			e.logger.Error("merge failed", "session", s.ID, "panic", r)
		}
	}()

	switch m.kind {
	case mailBody:
		e.mergeBody(s, m)
	case mailEvent:
		switch ev := m.event.(type) {
		case normalize.ConsoleEntry:
			s.console = append(s.console, ev.Message)
			atomic.AddInt64(&e.stats.consoleMessages, 1)
		case normalize.RequestWillBeSent:
			req := ev.Request
			e.record(s, ev.ID).Request = &req
		case normalize.ResponseReceived:
			resp := ev.Response
			resp.Body, resp.Base64Encoded, resp.BodyLoaded = "", false, false
			rec := e.record(s, ev.ID)
			rec.Response = &resp
			rec.generation++
			e.fetch(s, ev.ID, rec.generation)
		default:
			e.logger.Warn("unknown event type", "session", s.ID, "type", fmt.Sprintf("%T", m.event))
		}
	}
}

func (e *Engine) record(s *Session, id normalize.RequestID) *NetworkRecord {
	rec, ok := s.network[id]
	if !ok {
		rec = &NetworkRecord{ID: id}
		s.network[id] = rec
		s.order = append(s.order, id)
	}
	return rec
}

func (e *Engine) mergeBody(s *Session, m mail) {
	rec, ok := s.network[m.requestID]
	// a body fetched for a response that has since been replaced is stale
	if !ok || rec.Response == nil || rec.generation != m.generation {
		atomic.AddInt64(&e.stats.staleCompletions, 1)
		return
	}
	if m.err != nil {
		atomic.AddInt64(&e.stats.bodyFetchFailures, 1)
		e.logger.Debug("body fetch failed", "session", s.ID, "request", m.requestID, "error", m.err)
		return
	}
	rec.Response.Body = m.body.Data
	rec.Response.Base64Encoded = m.body.Base64Encoded
	rec.Response.BodyLoaded = true
}

// fetch issues the body request without waiting for it.
func (e *Engine) fetch(s *Session, id normalize.RequestID, generation uint64) {
	if e.fetcher == nil {
		return
	}

	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	atomic.AddInt64(&e.stats.bodyFetches, 1)

	go func() {
		body, err := e.fetcher.FetchBody(s.ctx, s.ID, id)
		e.complete(s, id, generation, body, err)
	}()
}

// complete routes a body result back through the mailbox. Results for a
// session that is closing or no longer live are dropped.
func (e *Engine) complete(s *Session, id normalize.RequestID, generation uint64, body normalize.Body, err error) {
	defer func() {
		s.mu.Lock()
		s.fetches--
		s.notifyIdleLocked()
		s.mu.Unlock()
	}()

	if !e.store.lookup(s) || s.isClosing() {
		atomic.AddInt64(&e.stats.staleCompletions, 1)
		return
	}
	if enqueueErr := s.enqueue(mail{kind: mailBody, requestID: id, generation: generation, body: body, err: err}); enqueueErr != nil {
		atomic.AddInt64(&e.stats.staleCompletions, 1)
	}
}
