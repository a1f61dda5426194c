package motor

import (
	"testing"

	"github.com/pb33f/logtracker/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkRecord_State(t *testing.T) {
	var missing *NetworkRecord
	assert.Equal(t, StateUnseen, missing.State())
	assert.Equal(t, StateUnseen, (&NetworkRecord{ID: "r1"}).State())

	rec := &NetworkRecord{ID: "r1", Request: &normalize.Request{Method: "GET"}}
	assert.Equal(t, StateRequestSeen, rec.State())

	rec.Response = &normalize.Response{Status: 200}
	assert.Equal(t, StateResponseSeen, rec.State())

	rec.Response.BodyLoaded = true
	assert.Equal(t, StateComplete, rec.State())

	// a response without its request still counts as seen
	orphan := &NetworkRecord{ID: "r2", Response: &normalize.Response{Status: 404}}
	assert.Equal(t, StateResponseSeen, orphan.State())
}

func TestRecordState_String(t *testing.T) {
	assert.Equal(t, "unseen", StateUnseen.String())
	assert.Equal(t, "request-seen", StateRequestSeen.String())
	assert.Equal(t, "response-seen", StateResponseSeen.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "unseen", RecordState(42).String())
}

func TestNetworkRecord_CloneIsDeep(t *testing.T) {
	rec := &NetworkRecord{
		ID:      "r1",
		Request: &normalize.Request{Method: "POST", Headers: map[string]string{"Accept": "*/*"}},
		Response: &normalize.Response{
			Status:  200,
			Headers: map[string]string{"Server": "nginx"},
			Timing:  &normalize.Timing{SendStart: 1, SendEnd: 2},
		},
	}

	cp := rec.clone()
	require.NotNil(t, cp.Request)
	require.NotNil(t, cp.Response)

	rec.Request.Headers["Accept"] = "text/html"
	rec.Request.Method = "PUT"
	rec.Response.Headers["Server"] = "apache"
	rec.Response.Timing.SendEnd = 99

	assert.Equal(t, "POST", cp.Request.Method)
	assert.Equal(t, "*/*", cp.Request.Headers["Accept"])
	assert.Equal(t, "nginx", cp.Response.Headers["Server"])
	assert.Equal(t, 2.0, cp.Response.Timing.SendEnd)
}

func TestNetworkRecord_CloneKeepsMissingHalves(t *testing.T) {
	cp := (&NetworkRecord{ID: "r1", Request: &normalize.Request{Method: "GET"}}).clone()
	assert.Equal(t, normalize.RequestID("r1"), cp.ID)
	assert.NotNil(t, cp.Request)
	assert.Nil(t, cp.Response)
}
