package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
	"github.com/pb33f/logtracker/recording"
	"github.com/pb33f/logtracker/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	requestJSON  = `{"requestId":"r1","loaderId":"L","documentURL":"https://example.com/","request":{"url":"https://example.com/api?x=1","method":"GET","headers":{"Accept":"*/*"},"initialPriority":"High","referrerPolicy":"no-referrer"},"timestamp":10,"wallTime":1700000000,"initiator":{"type":"other"},"redirectHasExtraInfo":false}`
	responseJSON = `{"requestId":"r1","loaderId":"L","timestamp":10.2,"type":"XHR","response":{"url":"https://example.com/api?x=1","status":200,"statusText":"OK","headers":{"Content-Type":"application/json"},"mimeType":"application/json","connectionReused":false,"connectionId":1,"encodedDataLength":12,"securityState":"secure","protocol":"h2"},"hasExtraInfo":false}`
	consoleJSON  = `{"entry":{"source":"javascript","level":"error","text":"boom","timestamp":1700000000000,"url":"https://example.com/app.js"}}`
)

type recorderStub struct {
	mu      sync.Mutex
	started []string
	stopped int
}

func (r *recorderStub) Start(_ context.Context, session string) (recording.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, session)
	return "video-" + session, nil
}

func (r *recorderStub) Stop(context.Context, recording.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return nil
}

type memorySink struct {
	mu      sync.Mutex
	results []*Result
}

func (s *memorySink) Write(_ context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func newTracker(t *testing.T, fetcher motor.BodyFetcher, rec recording.Recorder, sinks ...Sink) *Tracker {
	t.Helper()
	engine := motor.NewEngine(motor.NewStore(), fetcher, nil)
	return NewTracker(engine, report.NewBuilder(report.DefaultOptions()),
		recording.NewController(rec, nil),
		Options{DrainTimeout: 2 * time.Second, Sinks: sinks})
}

func staticBody(body string) motor.BodyFetcher {
	return motor.BodyFetcherFunc(func(context.Context, motor.SessionID, normalize.RequestID) (normalize.Body, error) {
		return normalize.Body{Data: body}, nil
	})
}

func TestTracker_FullLifecycle(t *testing.T) {
	rec := &recorderStub{}
	sink := &memorySink{}
	tracker := newTracker(t, staticBody(`{"ok":true}`), rec, sink)
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "tab-7"))
	require.NoError(t, tracker.HandleMessage("tab-7", "Network.requestWillBeSent", []byte(requestJSON)))
	require.NoError(t, tracker.HandleMessage("tab-7", "Network.responseReceived", []byte(responseJSON)))
	require.NoError(t, tracker.HandleMessage("tab-7", "Log.entryAdded", []byte(consoleJSON)))

	result, err := tracker.OnSessionEnd(ctx, "tab-7")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, result.HAR.Log.Entries, 1)
	entry := result.HAR.Log.Entries[0]
	assert.Equal(t, `{"ok":true}`, entry.Response.Body.Content)
	assert.InDelta(t, 200, entry.Time, 0.001)
	assert.Contains(t, string(result.Console), `"error","boom","https://example.com/app.js"`)
	assert.Equal(t, "video-tab-7", result.Recording)

	assert.Equal(t, []string{"tab-7"}, rec.started)
	assert.Equal(t, 1, rec.stopped)
	require.Len(t, sink.results, 1)
	assert.Same(t, result, sink.results[0])

	_, live := tracker.Engine().Store().Get("tab-7")
	assert.False(t, live, "session is destroyed once reported")
}

func TestTracker_DoubleStart(t *testing.T) {
	tracker := newTracker(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "s1"))
	err := tracker.OnSessionStart(ctx, "s1")
	assert.True(t, errors.Is(err, motor.ErrSessionExists))
}

func TestTracker_EndUnknownSession(t *testing.T) {
	tracker := newTracker(t, nil, nil)

	result, err := tracker.OnSessionEnd(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestTracker_EndTwice(t *testing.T) {
	sink := &memorySink{}
	tracker := newTracker(t, nil, nil, sink)
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "s1"))
	_, err := tracker.OnSessionEnd(ctx, "s1")
	require.NoError(t, err)

	result, err := tracker.OnSessionEnd(ctx, "s1")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, sink.results, 1)
}

func TestTracker_EventsForUnknownSessionAreDropped(t *testing.T) {
	tracker := newTracker(t, nil, nil)
	assert.NoError(t, tracker.HandleMessage("ghost", "Log.entryAdded", []byte(consoleJSON)))
}

func TestTracker_MalformedEventSurfaces(t *testing.T) {
	tracker := newTracker(t, nil, nil)
	require.NoError(t, tracker.OnSessionStart(context.Background(), "s1"))

	err := tracker.HandleMessage("s1", "Network.responseReceived", []byte(`{`))
	assert.Error(t, err)
}

func TestTracker_SinkErrorsAreJoined(t *testing.T) {
	failing := SinkFunc(func(context.Context, *Result) error { return errors.New("disk full") })
	good := &memorySink{}
	tracker := newTracker(t, nil, nil, failing, good)
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "s1"))
	result, err := tracker.OnSessionEnd(ctx, "s1")

	require.NotNil(t, result, "the result is returned even when a sink fails")
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, good.results, 1)
}

func TestTracker_PendingFetchDiscardedAfterDrainTimeout(t *testing.T) {
	blocked := motor.BodyFetcherFunc(func(ctx context.Context, _ motor.SessionID, _ normalize.RequestID) (normalize.Body, error) {
		<-ctx.Done()
		return normalize.Body{}, ctx.Err()
	})
	engine := motor.NewEngine(motor.NewStore(), blocked, nil)
	tracker := NewTracker(engine, report.NewBuilder(report.DefaultOptions()), nil,
		Options{DrainTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "s1"))
	require.NoError(t, tracker.HandleMessage("s1", "Network.responseReceived", []byte(responseJSON)))

	result, err := tracker.OnSessionEnd(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, result.HAR.Log.Entries, 1)
	assert.Empty(t, result.HAR.Log.Entries[0].Response.Body.Content)

	require.Eventually(t, func() bool {
		return engine.Stats().StaleCompletions == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTracker_Close(t *testing.T) {
	sink := &memorySink{}
	tracker := newTracker(t, nil, nil, sink)
	ctx := context.Background()

	for _, id := range []motor.SessionID{"a", "b", "c"} {
		require.NoError(t, tracker.OnSessionStart(ctx, id))
	}
	require.NoError(t, tracker.Close(ctx))
	assert.Len(t, sink.results, 3)
	assert.Zero(t, tracker.Engine().Store().Len())
}

func TestTracker_SessionEndSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	defer provider.Shutdown(context.Background())

	engine := motor.NewEngine(motor.NewStore(), nil, nil)
	tracker := NewTracker(engine, report.NewBuilder(report.DefaultOptions()), nil,
		Options{Tracer: provider.Tracer("test")})
	ctx := context.Background()

	require.NoError(t, tracker.OnSessionStart(ctx, "s1"))
	_, err := tracker.OnSessionEnd(ctx, "s1")
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "capture.session_end", spans[0].Name)
}

// ctxCheckingSink records whether it was handed a live context.
type ctxCheckingSink struct {
	memorySink
	cancelled int
}

func (s *ctxCheckingSink) Write(ctx context.Context, result *Result) error {
	if ctx.Err() != nil {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
	}
	return s.memorySink.Write(ctx, result)
}

func TestTracker_EndWithCancelledContext(t *testing.T) {
	rec := &recorderStub{}
	sink := &ctxCheckingSink{}
	tracker := newTracker(t, staticBody("{}"), rec, sink)

	require.NoError(t, tracker.OnSessionStart(context.Background(), "s1"))
	require.NoError(t, tracker.HandleMessage("s1", "Log.entryAdded", []byte(consoleJSON)))
	require.NoError(t, tracker.HandleMessage("s1", "Network.requestWillBeSent", []byte(requestJSON)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tracker.OnSessionEnd(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Messages)

	require.Len(t, sink.results, 1)
	assert.Zero(t, sink.cancelled, "sinks write with a live context")
	assert.Equal(t, 1, rec.stopped)

	_, ok := tracker.Engine().Store().Get("s1")
	assert.False(t, ok)
	assert.NoError(t, tracker.OnSessionStart(context.Background(), "s1"), "the id can be captured again")
}

func TestTracker_CloseAfterDeadlineStillEmitsEverySession(t *testing.T) {
	blocked := motor.BodyFetcherFunc(func(ctx context.Context, _ motor.SessionID, _ normalize.RequestID) (normalize.Body, error) {
		<-ctx.Done()
		return normalize.Body{}, ctx.Err()
	})
	sink := &memorySink{}
	engine := motor.NewEngine(motor.NewStore(), blocked, nil)
	tracker := NewTracker(engine, report.NewBuilder(report.DefaultOptions()), nil,
		Options{DrainTimeout: time.Minute, Sinks: []Sink{sink}})

	ids := []motor.SessionID{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, tracker.OnSessionStart(context.Background(), id))
		require.NoError(t, tracker.HandleMessage(id, "Network.responseReceived", []byte(responseJSON)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, tracker.Close(ctx))
	assert.Less(t, time.Since(start), 10*time.Second)

	require.Len(t, sink.results, len(ids))
	for _, result := range sink.results {
		assert.Len(t, result.HAR.Log.Entries, 1)
	}
	assert.Zero(t, engine.Store().Len())
}
