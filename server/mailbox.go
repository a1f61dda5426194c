package server

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
)

type delivery struct {
	body normalize.Body
	err  error
}

type mailboxKey struct {
	session motor.SessionID
	request normalize.RequestID
}

// Mailbox is the body fetcher used when bodies are pushed by the driver over
// HTTP. A fetch blocks until the driver delivers the body or the session
// context ends; deliveries that arrive first are held until fetched. A
// request id answered twice (a repeated response event) releases every
// fetch waiting on it.
type Mailbox struct {
	mu      sync.Mutex
	waiting map[mailboxKey][]chan delivery
	early   map[mailboxKey]delivery
}

var _ motor.BodyFetcher = (*Mailbox)(nil)

func NewMailbox() *Mailbox {
	return &Mailbox{
		waiting: make(map[mailboxKey][]chan delivery),
		early:   make(map[mailboxKey]delivery),
	}
}

func (m *Mailbox) FetchBody(ctx context.Context, session motor.SessionID, request normalize.RequestID) (normalize.Body, error) {
	key := mailboxKey{session, request}

	m.mu.Lock()
	if d, ok := m.early[key]; ok {
		delete(m.early, key)
		m.mu.Unlock()
		return d.body, d.err
	}
	ch := make(chan delivery, 1)
	m.waiting[key] = append(m.waiting[key], ch)
	m.mu.Unlock()

	select {
	case d := <-ch:
		return d.body, d.err
	case <-ctx.Done():
		m.drop(key, ch)
		return normalize.Body{}, ctx.Err()
	}
}

func (m *Mailbox) drop(key mailboxKey, ch chan delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiters := slices.DeleteFunc(m.waiting[key], func(c chan delivery) bool { return c == ch })
	if len(waiters) == 0 {
		delete(m.waiting, key)
		return
	}
	m.waiting[key] = waiters
}

// Deliver hands a body, or the reason it could not be read, to the fetches
// waiting for it.
func (m *Mailbox) Deliver(session motor.SessionID, request normalize.RequestID, body normalize.Body, reason string) {
	key := mailboxKey{session, request}
	d := delivery{body: body}
	if reason != "" {
		d.err = errors.New(reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if waiters, ok := m.waiting[key]; ok {
		delete(m.waiting, key)
		for _, ch := range waiters {
			ch <- d
		}
		return
	}
	m.early[key] = d
}

// Forget drops undelivered state of a finished session.
func (m *Mailbox) Forget(session motor.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.early {
		if key.session == session {
			delete(m.early, key)
		}
	}
}
