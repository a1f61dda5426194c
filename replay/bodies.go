package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
)

// ErrNoBody is returned for a body the stream never delivered.
var ErrNoBody = errors.New("no body recorded")

type bodyKey struct {
	session motor.SessionID
	request normalize.RequestID
}

// Bodies is the body fetcher of a replay. A fetch waits until the stream
// delivers the matching getResponseBody result, or until the stream ends.
type Bodies struct {
	mu      sync.Mutex
	bodies  map[bodyKey]normalize.Body
	waiters map[bodyKey][]chan struct{}
	closed  bool
}

var _ motor.BodyFetcher = (*Bodies)(nil)

func NewBodies() *Bodies {
	return &Bodies{
		bodies:  make(map[bodyKey]normalize.Body),
		waiters: make(map[bodyKey][]chan struct{}),
	}
}

func (b *Bodies) Put(session motor.SessionID, request normalize.RequestID, body normalize.Body) {
	key := bodyKey{session, request}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.bodies[key] = body
	for _, ch := range b.waiters[key] {
		close(ch)
	}
	delete(b.waiters, key)
}

// Close releases every pending fetch; what has not arrived by now never will.
func (b *Bodies) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for key, chans := range b.waiters {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.waiters, key)
	}
}

func (b *Bodies) FetchBody(ctx context.Context, session motor.SessionID, request normalize.RequestID) (normalize.Body, error) {
	key := bodyKey{session, request}

	b.mu.Lock()
	if body, ok := b.bodies[key]; ok {
		b.mu.Unlock()
		return body, nil
	}
	if b.closed {
		b.mu.Unlock()
		return normalize.Body{}, fmt.Errorf("%s/%s: %w", session, request, ErrNoBody)
	}
	ch := make(chan struct{})
	b.waiters[key] = append(b.waiters[key], ch)
	b.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return normalize.Body{}, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if body, ok := b.bodies[key]; ok {
		return body, nil
	}
	return normalize.Body{}, fmt.Errorf("%s/%s: %w", session, request, ErrNoBody)
}
