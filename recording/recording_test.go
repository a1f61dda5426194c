package recording

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	starts   atomic.Int32
	stops    atomic.Int32
	startErr error
	stopErr  error
}

func (r *countingRecorder) Start(_ context.Context, session string) (Handle, error) {
	r.starts.Add(1)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return "rec-" + session, nil
}

func (r *countingRecorder) Stop(context.Context, Handle) error {
	r.stops.Add(1)
	return r.stopErr
}

func TestController_StartStopOnce(t *testing.T) {
	rec := &countingRecorder{}
	c := NewController(rec, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start(ctx, "s1")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), rec.starts.Load())
	assert.Equal(t, "rec-s1", c.Handle("s1"))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Stop(ctx, "s1"))
	}
	assert.Equal(t, int32(1), rec.stops.Load())
	assert.Nil(t, c.Handle("s1"))

	c.Start(ctx, "s1")
	assert.Equal(t, int32(1), rec.starts.Load(), "a stopped session is not restarted")
}

func TestController_Unavailable(t *testing.T) {
	c := NewController(NopRecorder{}, nil)

	assert.Nil(t, c.Start(context.Background(), "s1"))
	assert.NoError(t, c.Stop(context.Background(), "s1"))
}

func TestController_NilRecorder(t *testing.T) {
	c := NewController(nil, nil)
	assert.Nil(t, c.Start(context.Background(), "s1"))
}

func TestController_StartFailureIsNoRecording(t *testing.T) {
	rec := &countingRecorder{startErr: errors.New("permission denied")}
	c := NewController(rec, nil)

	assert.Nil(t, c.Start(context.Background(), "s1"))
	require.NoError(t, c.Stop(context.Background(), "s1"))
	assert.Equal(t, int32(0), rec.stops.Load())
}

func TestController_StopWithoutStart(t *testing.T) {
	rec := &countingRecorder{}
	c := NewController(rec, nil)

	assert.NoError(t, c.Stop(context.Background(), "never"))
	assert.Equal(t, int32(0), rec.stops.Load())
}

func TestController_StopError(t *testing.T) {
	rec := &countingRecorder{stopErr: errors.New("disk full")}
	c := NewController(rec, nil)
	c.Start(context.Background(), "s1")

	err := c.Stop(context.Background(), "s1")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, c.Stop(context.Background(), "s1"))
}

func TestController_Forget(t *testing.T) {
	rec := &countingRecorder{}
	c := NewController(rec, nil)
	ctx := context.Background()

	c.Start(ctx, "s1")
	require.NoError(t, c.Stop(ctx, "s1"))
	c.Forget("s1")

	c.Start(ctx, "s1")
	assert.Equal(t, int32(2), rec.starts.Load(), "a new lifecycle may record again")
}
