// Package recording starts and stops a companion screen recording per
// session. The actual capture and encoding is delegated to a Recorder.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnavailable means the host cannot record; capture carries on without.
var ErrUnavailable = errors.New("recording unavailable")

// Handle identifies an active recording. Its shape is owned by the Recorder.
type Handle interface{}

// Recorder is the host recording capability.
type Recorder interface {
	Start(ctx context.Context, session string) (Handle, error)
	Stop(ctx context.Context, handle Handle) error
}

// NopRecorder never records.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, string) (Handle, error) {
	return nil, ErrUnavailable
}

func (NopRecorder) Stop(context.Context, Handle) error {
	return nil
}

type phase int

const (
	phaseStarted phase = iota
	phaseStopped
)

type entry struct {
	phase  phase
	handle Handle
}

// Controller makes start and stop happen at most once per session no matter
// how often they are called.
type Controller struct {
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewController(recorder Recorder, logger *slog.Logger) *Controller {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		recorder: recorder,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Start begins recording for a session. A nil handle means no recording is
// running; that is not an error for the caller.
func (c *Controller) Start(ctx context.Context, session string) Handle {
	c.mu.Lock()
	if e, ok := c.sessions[session]; ok {
		c.mu.Unlock()
		return e.handle
	}
	e := &entry{phase: phaseStarted}
	c.sessions[session] = e

	// hold the lock so a concurrent Stop observes the handle
	defer c.mu.Unlock()

	handle, err := c.recorder.Start(ctx, session)
	switch {
	case errors.Is(err, ErrUnavailable):
		c.logger.Debug("recording unavailable", "session", session)
		return nil
	case err != nil:
		c.logger.Warn("recording failed to start", "session", session, "error", err)
		return nil
	}

	e.handle = handle
	return handle
}

// Stop ends the session's recording once. Stopping a session that never
// started, or has already stopped, does nothing.
func (c *Controller) Stop(ctx context.Context, session string) error {
	c.mu.Lock()
	e, ok := c.sessions[session]
	if !ok || e.phase == phaseStopped {
		c.mu.Unlock()
		return nil
	}
	e.phase = phaseStopped
	handle := e.handle
	c.mu.Unlock()

	if handle == nil {
		return nil
	}
	if err := c.recorder.Stop(ctx, handle); err != nil {
		return fmt.Errorf("stop recording for %s: %w", session, err)
	}
	return nil
}

// Forget drops the bookkeeping for a session whose lifecycle has ended.
func (c *Controller) Forget(session string) {
	c.mu.Lock()
	delete(c.sessions, session)
	c.mu.Unlock()
}

// Handle returns the active recording for a session, if any.
func (c *Controller) Handle(session string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sessions[session]; ok && e.phase == phaseStarted {
		return e.handle
	}
	return nil
}
