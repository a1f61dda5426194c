package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func record(id string, status int, elapsed time.Duration) motor.NetworkRecord {
	return motor.NetworkRecord{
		ID: normalize.RequestID(id),
		Request: &normalize.Request{
			Method:    "GET",
			URL:       "https://example.com/" + id + "?a=1&b=2&c",
			Headers:   map[string]string{"User-Agent": "test", "Accept": "*/*"},
			Timestamp: started,
		},
		Response: &normalize.Response{
			URL:               "https://example.com/" + id,
			Status:            status,
			StatusText:        "status",
			Protocol:          "http/1.1",
			Headers:           map[string]string{"Content-Type": "application/json"},
			MimeType:          "application/json",
			EncodedDataLength: 321,
			RemoteIPAddress:   "10.1.1.1",
			Timestamp:         started.Add(elapsed),
		},
	}
}

func snapshotOf(records ...motor.NetworkRecord) motor.Snapshot {
	return motor.Snapshot{SessionID: "s1", StartedAt: started, Records: records}
}

func TestBuildNetworkReport_Skeleton(t *testing.T) {
	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf())

	assert.Empty(t, problems)
	assert.Equal(t, "1.2", har.Log.Version)
	assert.Equal(t, "logTracker", har.Log.Creator.Name)
	assert.Equal(t, "0.1", har.Log.Creator.Version)
	require.Len(t, har.Log.Pages, 1)
	assert.Equal(t, "page_1", har.Log.Pages[0].ID)
	assert.Equal(t, "2025-03-04T10:00:00.000Z", har.Log.Pages[0].Start)
	assert.Empty(t, har.Log.Pages[0].Title)
	assert.NotNil(t, har.Log.Entries)
}

func TestBuildNetworkReport_Entry(t *testing.T) {
	rec := record("r1", 200, 120*time.Millisecond)
	rec.Response.Body = "eyJvayI6dHJ1ZX0="
	rec.Response.Base64Encoded = true
	rec.Response.BodyLoaded = true
	rec.Response.Timing = &normalize.Timing{
		DNSStart: 0, DNSEnd: 4,
		ConnectStart: 4, ConnectEnd: 30,
		SSLStart: 10, SSLEnd: 30,
		SendStart: 31, SendEnd: 32,
		ReceiveHeadersEnd: 100,
	}

	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	assert.Empty(t, problems)
	require.Len(t, har.Log.Entries, 1)

	entry := har.Log.Entries[0]
	assert.Equal(t, float64(120), entry.Time)
	assert.Equal(t, "page_1", entry.PageRef)
	assert.Equal(t, "10.1.1.1", entry.ServerIP)

	assert.Equal(t, "GET", entry.Request.Method)
	assert.Equal(t, "http/1.1", entry.Request.HTTPVersion)
	assert.Equal(t, 50, entry.Request.HeadersSize)
	assert.Equal(t, -1, entry.Request.BodySize)
	require.Len(t, entry.Request.Headers, 2)
	assert.Equal(t, "Accept", entry.Request.Headers[0].Name)
	require.Len(t, entry.Request.QueryParams, 3)
	assert.Equal(t, "c", entry.Request.QueryParams[2].Name)
	assert.Empty(t, entry.Request.Body.Params)

	assert.Equal(t, 200, entry.Response.StatusCode)
	assert.Equal(t, 321, entry.Response.BodySize)
	assert.Equal(t, 321, entry.Response.Body.Size)
	assert.Equal(t, "base64", entry.Response.Body.Encoding)
	assert.Equal(t, "eyJvayI6dHJ1ZX0=", entry.Response.Body.Content)

	assert.Equal(t, float64(4), entry.Timings.DNS)
	assert.Equal(t, float64(26), entry.Timings.Connect)
	assert.Equal(t, float64(20), entry.Timings.SSL)
	assert.Equal(t, float64(1), entry.Timings.Send)
	assert.Equal(t, float64(68), entry.Timings.Wait)
	assert.Zero(t, entry.Timings.Blocked)
	assert.Zero(t, entry.Timings.Receive)
}

func TestBuildNetworkReport_TimingSentinels(t *testing.T) {
	rec := record("r1", 200, 0)
	rec.Response.Timing = &normalize.Timing{
		DNSStart: -1, DNSEnd: -1, ConnectStart: -1, ConnectEnd: -1,
		SSLStart: -1, SSLEnd: -1, SendStart: 2, SendEnd: 3, ReceiveHeadersEnd: 10,
	}

	har, _ := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	timings := har.Log.Entries[0].Timings
	assert.Zero(t, timings.DNS)
	assert.Zero(t, timings.Connect)
	assert.Zero(t, timings.SSL)
	assert.Equal(t, float64(7), timings.Wait)
}

func TestBuildNetworkReport_StatusThreshold(t *testing.T) {
	var records []motor.NetworkRecord
	for i, status := range []int{150, 199, 200, 404, 503} {
		records = append(records, record(string(rune('a'+i)), status, time.Millisecond))
	}

	har, _ := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(records...))

	var statuses []int
	for _, entry := range har.Log.Entries {
		statuses = append(statuses, entry.Response.StatusCode)
	}
	assert.Equal(t, []int{199, 200, 404, 503}, statuses)
}

func TestBuildNetworkReport_RequestOnlyNeverExported(t *testing.T) {
	rec := record("r1", 200, 0)
	rec.Response = nil

	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	assert.Empty(t, har.Log.Entries)
	assert.Empty(t, problems)
}

func TestBuildNetworkReport_ResponseOnly(t *testing.T) {
	rec := record("r1", 404, 0)
	rec.Request = nil

	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	assert.Empty(t, problems)
	require.Len(t, har.Log.Entries, 1)
	assert.Zero(t, har.Log.Entries[0].Time)
	assert.Empty(t, har.Log.Entries[0].Request.Method)
	assert.Equal(t, "https://example.com/r1", har.Log.Entries[0].Request.URL)
}

func TestBuildNetworkReport_RequireBody(t *testing.T) {
	loaded := record("loaded", 200, 0)
	loaded.Response.BodyLoaded = true
	missing := record("missing", 200, 0)

	opts := DefaultOptions()
	opts.Policy.RequireBody = true
	har, _ := NewBuilder(opts).BuildNetworkReport(snapshotOf(loaded, missing))

	require.Len(t, har.Log.Entries, 1)
	assert.Contains(t, har.Log.Entries[0].Request.URL, "loaded")
}

func TestBuildNetworkReport_NegativeDuration(t *testing.T) {
	rec := record("r1", 200, -5*time.Millisecond)

	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	require.Len(t, har.Log.Entries, 1)
	assert.Zero(t, har.Log.Entries[0].Time)
	assert.NotEmpty(t, har.Log.Entries[0].Comment)

	require.Len(t, problems, 1)
	assert.True(t, errors.Is(problems[0], ErrNegativeDuration))
	assert.Equal(t, normalize.RequestID("r1"), problems[0].RequestID)
}

func TestBuildNetworkReport_BrokenEntrySkipped(t *testing.T) {
	good := record("r1", 200, 10*time.Millisecond)
	broken := record("r2", 500, 10*time.Millisecond)
	broken.Response.Body = "not base64 at all!"
	broken.Response.Base64Encoded = true
	broken.Response.BodyLoaded = true
	last := record("r3", 404, 10*time.Millisecond)

	har, problems := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(good, broken, last))

	require.Len(t, har.Log.Entries, 2)
	assert.Contains(t, har.Log.Entries[0].Request.URL, "/r1")
	assert.Contains(t, har.Log.Entries[1].Request.URL, "/r3")

	require.Len(t, problems, 1)
	assert.Equal(t, normalize.RequestID("r2"), problems[0].RequestID)
	assert.True(t, errors.Is(problems[0], ErrEntryBuild))
}

func TestBuildNetworkReport_PostData(t *testing.T) {
	rec := record("r1", 200, 0)
	rec.Request.Method = "POST"
	rec.Request.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	rec.Request.PostData = "user=alice&note=hi%20there"

	har, _ := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	body := har.Log.Entries[0].Request.Body

	assert.Equal(t, "application/x-www-form-urlencoded", body.MIMEType)
	assert.Equal(t, "user=alice&note=hi%20there", body.Content)
	require.Len(t, body.Params, 2)
	assert.Equal(t, "hi there", body.Params[1].Value)
}

func TestBuildNetworkReport_WallTime(t *testing.T) {
	rec := record("r1", 200, 0)
	rec.Request.WallTime = time.Date(2025, 3, 4, 10, 0, 1, 500_000_000, time.UTC)

	har, _ := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(rec))
	assert.Equal(t, "2025-03-04T10:00:01.500Z", har.Log.Entries[0].Start)
}

func TestBuildNetworkReport_CustomCreator(t *testing.T) {
	har, _ := NewBuilder(Options{CreatorName: "ci", CreatorVersion: "2"}).BuildNetworkReport(snapshotOf())
	assert.Equal(t, "ci", har.Log.Creator.Name)
	assert.Equal(t, "2", har.Log.Creator.Version)
}

func TestBuildNetworkReport_Pure(t *testing.T) {
	snap := snapshotOf(record("r1", 200, 0), record("r2", 500, 0))
	builder := NewBuilder(DefaultOptions())

	var first, second bytes.Buffer
	h1, _ := builder.BuildNetworkReport(snap)
	h2, _ := builder.BuildNetworkReport(snap)
	require.NoError(t, WriteHAR(&first, h1))
	require.NoError(t, WriteHAR(&second, h2))
	assert.Equal(t, first.String(), second.String())
}

func TestWriteHAR(t *testing.T) {
	har, _ := NewBuilder(DefaultOptions()).BuildNetworkReport(snapshotOf(record("r1", 200, 0)))

	var buf bytes.Buffer
	require.NoError(t, WriteHAR(&buf, har))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	log := decoded["log"].(map[string]any)
	assert.Equal(t, "1.2", log["version"])
	assert.Len(t, log["entries"], 1)
	assert.Contains(t, buf.String(), "\n  \"log\"")
}
