// Package replay drives a capture from a recorded CDP stream stored as JSON
// lines, one protocol message per line.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
	"github.com/pb33f/logtracker/capture"
	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
)

// DefaultSession names the session of messages that carry no sessionId.
const DefaultSession = "default"

const maxLineSize = 16 * 1024 * 1024

// Stats summarises one replay run.
type Stats struct {
	Lines       int
	Events      int
	Bodies      int
	Skipped     int
	Malformed   int
	SessionsRun int
}

type Driver struct {
	tracker *capture.Tracker
	bodies  *Bodies
	logger  *slog.Logger

	started map[motor.SessionID]bool
	order   []motor.SessionID
	stats   Stats
}

// NewDriver returns a driver for a tracker whose engine fetches bodies from
// bodies.
func NewDriver(tracker *capture.Tracker, bodies *Bodies, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		tracker: tracker,
		bodies:  bodies,
		logger:  logger,
		started: make(map[motor.SessionID]bool),
	}
}

type bodyParams struct {
	RequestID string `json:"requestId"`
}

type detachParams struct {
	SessionID string `json:"sessionId"`
}

// Run feeds every message of r into the tracker. Sessions start on first
// sight and end at Target.detachedFromTarget or at the end of the stream.
// Results are returned in the order sessions ended.
func (d *Driver) Run(ctx context.Context, r io.Reader) ([]*capture.Result, Stats, error) {
	var results []*capture.Result
	var errs []error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return results, d.stats, err
		}

		line := scanner.Bytes()
		d.stats.Lines++
		if len(line) == 0 {
			continue
		}

		var msg cdproto.Message
		if err := easyjson.Unmarshal(line, &msg); err != nil {
			d.stats.Malformed++
			d.logger.Warn("skipping unreadable line", "line", d.stats.Lines, "error", err)
			continue
		}

		result, err := d.handle(ctx, &msg)
		if err != nil {
			errs = append(errs, err)
		}
		if result != nil {
			results = append(results, result)
		}
	}
	if err := scanner.Err(); err != nil {
		return results, d.stats, fmt.Errorf("failed to read stream: %w", err)
	}

	// whatever body has not been seen by now is missing
	d.bodies.Close()

	for _, id := range d.order {
		if !d.started[id] {
			continue
		}
		result, err := d.end(ctx, id)
		if err != nil {
			errs = append(errs, err)
		}
		if result != nil {
			results = append(results, result)
		}
	}

	return results, d.stats, errors.Join(errs...)
}

func (d *Driver) handle(ctx context.Context, msg *cdproto.Message) (*capture.Result, error) {
	session := motor.SessionID(msg.SessionID)
	if session == "" {
		session = DefaultSession
	}

	switch msg.Method {
	case cdproto.CommandNetworkGetResponseBody:
		var params bodyParams
		var body normalize.Body
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.RequestID == "" {
			d.stats.Malformed++
			return nil, nil
		}
		if err := json.Unmarshal(msg.Result, &body); err != nil {
			d.stats.Malformed++
			return nil, nil
		}
		d.bodies.Put(session, normalize.RequestID(params.RequestID), body)
		d.stats.Bodies++
		return nil, nil

	case cdproto.EventTargetDetachedFromTarget:
		var params detachParams
		if err := json.Unmarshal(msg.Params, &params); err == nil && params.SessionID != "" {
			session = motor.SessionID(params.SessionID)
		}
		if !d.started[session] {
			return nil, nil
		}
		return d.end(ctx, session)
	}

	if msg.Method == "" {
		d.stats.Skipped++
		return nil, nil
	}

	if err := d.start(ctx, session); err != nil {
		return nil, err
	}

	err := d.tracker.HandleMessage(session, string(msg.Method), msg.Params)
	switch {
	case err == nil:
		d.stats.Events++
	case errors.Is(err, normalize.ErrUnsupportedEvent):
		d.stats.Skipped++
	default:
		d.stats.Malformed++
	}
	return nil, nil
}

func (d *Driver) start(ctx context.Context, session motor.SessionID) error {
	if _, seen := d.started[session]; seen {
		return nil
	}
	d.started[session] = true
	d.order = append(d.order, session)

	if err := d.tracker.OnSessionStart(ctx, session); err != nil {
		return fmt.Errorf("start %s: %w", session, err)
	}
	d.stats.SessionsRun++
	return nil
}

func (d *Driver) end(ctx context.Context, session motor.SessionID) (*capture.Result, error) {
	d.started[session] = false
	return d.tracker.OnSessionEnd(ctx, session)
}
