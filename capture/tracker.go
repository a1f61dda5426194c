// Package capture ties the session lifecycle together: it creates sessions,
// forwards their events to the correlation engine and, when a session ends,
// builds the reports and hands them to the configured sinks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pb33f/harhar"
	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
	"github.com/pb33f/logtracker/recording"
	"github.com/pb33f/logtracker/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pb33f/logtracker/capture"

// Result is everything produced for one finished session.
type Result struct {
	SessionID motor.SessionID
	StartedAt time.Time
	EndedAt   time.Time
	HAR       *harhar.HAR
	Console   []byte
	Records   int
	Messages  int
	Problems  []report.EntryError
	Recording recording.Handle
}

// Sink receives finished results, e.g. to write them to disk.
type Sink interface {
	Write(ctx context.Context, result *Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result *Result) error

func (f SinkFunc) Write(ctx context.Context, result *Result) error {
	return f(ctx, result)
}

type Options struct {
	// DrainTimeout bounds the wait for in-flight body fetches at session
	// end. Zero skips the wait.
	DrainTimeout time.Duration
	Sinks        []Sink
	Logger       *slog.Logger
	Tracer       trace.Tracer
}

type Tracker struct {
	engine   *motor.Engine
	builder  *report.Builder
	recorder *recording.Controller
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewTracker(engine *motor.Engine, builder *report.Builder, recorder *recording.Controller, opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if recorder == nil {
		recorder = recording.NewController(nil, logger)
	}
	return &Tracker{
		engine:   engine,
		builder:  builder,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		tracer:   tracer,
	}
}

func (t *Tracker) Engine() *motor.Engine {
	return t.engine
}

// OnSessionStart creates and attaches a session and starts its recording.
// Starting a live session fails with motor.ErrSessionExists.
func (t *Tracker) OnSessionStart(ctx context.Context, id motor.SessionID) error {
	if _, err := t.engine.Store().Create(id); err != nil {
		return err
	}
	if err := t.engine.Attach(id); err != nil {
		t.engine.Store().Destroy(id)
		return err
	}

	handle := t.recorder.Start(ctx, string(id))
	t.logger.Info("capture started", "session", id, "recording", handle != nil)
	return nil
}

// HandleMessage forwards a raw protocol event. Events for sessions that are
// unknown or already ending are dropped.
func (t *Tracker) HandleMessage(id motor.SessionID, method string, params []byte) error {
	return t.forward(id, t.engine.HandleMessage(id, method, params))
}

func (t *Tracker) OnEvent(id motor.SessionID, ev normalize.Event) error {
	return t.forward(id, t.engine.OnEvent(id, ev))
}

func (t *Tracker) forward(id motor.SessionID, err error) error {
	if errors.Is(err, motor.ErrSessionNotFound) || errors.Is(err, motor.ErrSessionClosed) {
		t.logger.Debug("dropping event", "session", id, "error", err)
		return nil
	}
	return err
}

// OnSessionEnd finishes a session: it drains outstanding work, builds both
// reports, stops the recording, destroys the session and emits the result
// to every sink. An unknown id yields (nil, nil). Sink failures are returned
// joined alongside the result.
func (t *Tracker) OnSessionEnd(ctx context.Context, id motor.SessionID) (*Result, error) {
	if _, ok := t.engine.Store().Get(id); !ok {
		return nil, nil
	}

	ctx, span := t.tracer.Start(ctx, "capture.session_end",
		trace.WithAttributes(attribute.String("session.id", string(id))))
	defer span.End()

	if t.opts.DrainTimeout > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, t.opts.DrainTimeout)
		if err := t.engine.WaitIdle(drainCtx, id); err != nil {
			t.logger.Debug("drain timed out, pending bodies are discarded", "session", id)
		}
		cancel()
	}

	// the report must reach the sinks even when the caller has gone away
	finishCtx := context.WithoutCancel(ctx)

	snap, err := t.engine.Detach(ctx, id)
	if err != nil {
		if errors.Is(err, motor.ErrSessionNotFound) || errors.Is(err, motor.ErrSessionClosed) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.release(finishCtx, id)
		return nil, err
	}

	har, problems := t.builder.BuildNetworkReport(snap)
	result := &Result{
		SessionID: id,
		StartedAt: snap.StartedAt,
		EndedAt:   time.Now(),
		HAR:       har,
		Console:   t.builder.BuildConsoleReport(snap),
		Records:   len(snap.Records),
		Messages:  len(snap.Console),
		Problems:  problems,
		Recording: t.recorder.Handle(string(id)),
	}

	var errs []error
	if err := t.release(finishCtx, id); err != nil {
		errs = append(errs, err)
	}

	span.SetAttributes(
		attribute.Int("capture.records", result.Records),
		attribute.Int("capture.entries", len(har.Log.Entries)),
		attribute.Int("capture.console", result.Messages),
		attribute.Int("capture.problems", len(problems)),
	)

	for _, sink := range t.opts.Sinks {
		if err := sink.Write(finishCtx, result); err != nil {
			t.logger.Error("sink failed", "session", id, "error", err)
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}

	t.logger.Info("capture finished", "session", id,
		"entries", len(har.Log.Entries), "console", result.Messages, "problems", len(problems))

	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

// release stops the recording and frees the session id.
func (t *Tracker) release(ctx context.Context, id motor.SessionID) error {
	err := t.recorder.Stop(ctx, string(id))
	if err != nil {
		t.logger.Warn("failed to stop recording", "session", id, "error", err)
	}
	t.recorder.Forget(string(id))
	t.engine.Store().Destroy(id)
	return err
}

// Close ends every live session, emitting results as usual. Sessions end
// concurrently so each gets its own drain budget; once ctx is done the
// drains are cut short but every report is still built and emitted.
func (t *Tracker) Close(ctx context.Context) error {
	ids := t.engine.Store().IDs()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id motor.SessionID) {
			defer wg.Done()
			if _, err := t.OnSessionEnd(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errors.Join(errs...)
}
