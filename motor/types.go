package motor

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pb33f/logtracker/normalize"
)

type SessionID string

// RecordState is the correlation state of one request id.
type RecordState int

const (
	StateUnseen RecordState = iota
	StateRequestSeen
	StateResponseSeen
	StateComplete
)

func (s RecordState) String() string {
	switch s {
	case StateRequestSeen:
		return "request-seen"
	case StateResponseSeen:
		return "response-seen"
	case StateComplete:
		return "complete"
	default:
		return "unseen"
	}
}

// NetworkRecord accumulates everything known about one request id.
type NetworkRecord struct {
	ID       normalize.RequestID
	Request  *normalize.Request
	Response *normalize.Response

	// bumped by every response event; a body merges only into the
	// response it was fetched for
	generation uint64
}

func (r *NetworkRecord) State() RecordState {
	switch {
	case r == nil:
		return StateUnseen
	case r.Response != nil && r.Response.BodyLoaded:
		return StateComplete
	case r.Response != nil:
		return StateResponseSeen
	case r.Request != nil:
		return StateRequestSeen
	default:
		return StateUnseen
	}
}

func (r *NetworkRecord) clone() NetworkRecord {
	out := NetworkRecord{ID: r.ID}
	if r.Request != nil {
		req := *r.Request
		req.Headers = maps.Clone(r.Request.Headers)
		out.Request = &req
	}
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = maps.Clone(r.Response.Headers)
		if r.Response.Timing != nil {
			timing := *r.Response.Timing
			resp.Timing = &timing
		}
		out.Response = &resp
	}
	return out
}

// Snapshot is a detached, deep copy of a session taken at detach time.
// Records keep the order in which their request ids were first seen.
type Snapshot struct {
	SessionID SessionID
	StartedAt time.Time
	Console   []normalize.ConsoleMessage
	Records   []NetworkRecord
}

type mailKind int

const (
	mailEvent mailKind = iota
	mailBody
)

type mail struct {
	kind       mailKind
	event      normalize.Event
	requestID  normalize.RequestID
	generation uint64
	body       normalize.Body
	err        error
}

// Session is the per-target capture state. The console, network and order
// fields are owned by the merge loop once the session is attached; the
// mailbox fields are guarded by mu.
type Session struct {
	ID        SessionID
	StartedAt time.Time

	console []normalize.ConsoleMessage
	network map[normalize.RequestID]*NetworkRecord
	order   []normalize.RequestID

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []mail
	busy     bool
	fetches  int
	attached bool
	closing  bool
	idle     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(id SessionID, startedAt time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		StartedAt: startedAt,
		network:   make(map[normalize.RequestID]*NetworkRecord),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue appends to the mailbox without blocking.
func (s *Session) enqueue(m mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrSessionClosed
	}
	s.queue = append(s.queue, m)
	s.cond.Signal()
	return nil
}

// next blocks until mail is available. It returns false once the session is
// closing and the mailbox is drained.
func (s *Session) next() ([]mail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	s.notifyIdleLocked()

	for len(s.queue) == 0 && !s.closing {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}

	batch := s.queue
	s.queue = nil
	s.busy = true
	return batch, true
}

func (s *Session) isIdleLocked() bool {
	return len(s.queue) == 0 && !s.busy && s.fetches == 0
}

func (s *Session) notifyIdleLocked() {
	if s.idle != nil && s.isIdleLocked() {
		close(s.idle)
		s.idle = nil
	}
}

// idleChan returns nil when the session is idle already, otherwise a channel
// closed on the next transition to idle.
func (s *Session) idleChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isIdleLocked() || s.closing {
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	return s.idle
}

// beginClose stops intake. Only the first caller wins.
func (s *Session) beginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.closing = true
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.cond.Broadcast()
	return true
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) shutdown() {
	s.beginClose()
	s.cancel()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		Console:   make([]normalize.ConsoleMessage, len(s.console)),
		Records:   make([]NetworkRecord, 0, len(s.order)),
	}
	copy(snap.Console, s.console)
	for _, id := range s.order {
		snap.Records = append(snap.Records, s.network[id].clone())
	}
	return snap
}

// EngineStats is a point-in-time view of the engine counters.
type EngineStats struct {
	EventsAccepted    int64 `json:"eventsAccepted"`
	ConsoleMessages   int64 `json:"consoleMessages"`
	MalformedEvents   int64 `json:"malformedEvents"`
	UnsupportedEvents int64 `json:"unsupportedEvents"`
	RejectedEvents    int64 `json:"rejectedEvents"`
	BodyFetches       int64 `json:"bodyFetches"`
	BodyFetchFailures int64 `json:"bodyFetchFailures"`
	StaleCompletions  int64 `json:"staleCompletions"`
	MergePanics       int64 `json:"mergePanics"`
	ActiveSessions    int   `json:"activeSessions"`
}
