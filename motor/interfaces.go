package motor

import (
	"context"

	"github.com/pb33f/logtracker/normalize"
)

// BodyFetcher retrieves a response body out of band. Implementations must
// return promptly once ctx is cancelled; the session context ends when the
// session is detached or destroyed.
type BodyFetcher interface {
	FetchBody(ctx context.Context, session SessionID, request normalize.RequestID) (normalize.Body, error)
}

// BodyFetcherFunc adapts a plain function to BodyFetcher.
type BodyFetcherFunc func(ctx context.Context, session SessionID, request normalize.RequestID) (normalize.Body, error)

func (f BodyFetcherFunc) FetchBody(ctx context.Context, session SessionID, request normalize.RequestID) (normalize.Body, error) {
	return f(ctx, session, request)
}

// EventSink is the write side of the engine, used by drivers that only
// forward events.
type EventSink interface {
	OnEvent(id SessionID, ev normalize.Event) error
	OnConsoleEvent(id SessionID, msg normalize.ConsoleMessage) error
	HandleMessage(id SessionID, method string, params []byte) error
}
