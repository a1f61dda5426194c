// Package cdpgen generates synthetic, reproducible CDP event streams in the
// JSON lines format understood by the replay driver.
package cdpgen

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// GenerateOptions configures stream generation
type GenerateOptions struct {
	RequestCount     int     // requests per session
	ConsoleCount     int     // console messages per session
	Sessions         int     // number of interleaved sessions (default: 1)
	Seed             int64   // random seed for reproducibility (0 = use time)
	DropResponseRate float64 // share of requests that never get a response
	DropBodyRate     float64 // share of responses whose body is never delivered
	OutOfOrderRate   float64 // share of responses delivered before their request
	Base64Rate       float64 // share of bodies delivered base64 encoded
	DictionaryPath   string  // word list (default: /usr/share/dict/words)
	MaxJSONDepth     int
	MaxJSONNodes     int
}

var DefaultGenerateOptions = GenerateOptions{
	RequestCount:   20,
	ConsoleCount:   5,
	Sessions:       1,
	DictionaryPath: "/usr/share/dict/words",
	MaxJSONDepth:   3,
	MaxJSONNodes:   6,
}

// SessionTotals describes what a session in the stream contains, so callers
// can check the reports produced from it.
type SessionTotals struct {
	Requests  int
	Responses int
	Bodies    int
	Console   int
	Exported  int // responses with a status of at least 199
	Statuses  []int
}

type Stream struct {
	Messages []*cdproto.Message
	Sessions []string
	Totals   map[string]*SessionTotals
}

var statuses = []int{101, 200, 200, 200, 201, 204, 301, 304, 400, 404, 500, 503}

var statusText = map[int]string{
	101: "Switching Protocols", 200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 304: "Not Modified", 400: "Bad Request",
	404: "Not Found", 500: "Internal Server Error", 503: "Service Unavailable",
}

var consoleLevels = []string{"verbose", "info", "warning", "error"}

// monotonic clock origin and wall clock origin of generated sessions
const (
	monotonicBase = 1000.0
	wallBase      = 1_700_000_000.0
)

type timedMessage struct {
	at  float64
	seq int
	msg *cdproto.Message
}

type generator struct {
	opts    GenerateOptions
	rng     *rand.Rand
	dict    *Dictionary
	jsonGen *JSONGenerator
	out     []timedMessage
}

func applyDefaults(opts *GenerateOptions) {
	if opts.Sessions <= 0 {
		opts.Sessions = DefaultGenerateOptions.Sessions
	}
	if opts.DictionaryPath == "" {
		opts.DictionaryPath = DefaultGenerateOptions.DictionaryPath
	}
	if opts.MaxJSONDepth == 0 {
		opts.MaxJSONDepth = DefaultGenerateOptions.MaxJSONDepth
	}
	if opts.MaxJSONNodes == 0 {
		opts.MaxJSONNodes = DefaultGenerateOptions.MaxJSONNodes
	}
}

// Generate builds a stream in memory. Messages of all sessions are merged by
// arrival time.
func Generate(opts GenerateOptions) (*Stream, error) {
	applyDefaults(&opts)

	// local rng, the global one stays untouched
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	dict, err := LoadDictionary(opts.DictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dictionary: %w", err)
	}

	g := &generator{
		opts:    opts,
		rng:     rng,
		dict:    dict,
		jsonGen: NewJSONGenerator(dict, opts.MaxJSONDepth, opts.MaxJSONNodes, rng),
	}

	stream := &Stream{Totals: make(map[string]*SessionTotals)}
	for s := 0; s < opts.Sessions; s++ {
		session := fmt.Sprintf("SESSION-%d", s+1)
		stream.Sessions = append(stream.Sessions, session)
		stream.Totals[session] = g.session(session)
	}

	sort.SliceStable(g.out, func(i, j int) bool {
		if g.out[i].at != g.out[j].at {
			return g.out[i].at < g.out[j].at
		}
		return g.out[i].seq < g.out[j].seq
	})
	for _, tm := range g.out {
		stream.Messages = append(stream.Messages, tm.msg)
	}
	return stream, nil
}

func (g *generator) emit(at float64, session string, method cdproto.MethodType, params, result interface{}) {
	msg := &cdproto.Message{
		SessionID: target.SessionID(session),
		Method:    method,
	}
	if params != nil {
		msg.Params = mustJSON(params)
	}
	if result != nil {
		msg.Result = mustJSON(result)
	}
	g.out = append(g.out, timedMessage{at: at, seq: len(g.out), msg: msg})
}

func mustJSON(v interface{}) easyjson.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("cdpgen: marshal %T: %v", v, err))
	}
	return raw
}

func (g *generator) session(session string) *SessionTotals {
	totals := &SessionTotals{}
	host := g.dict.RandomWord(g.rng) + ".example.com"
	clock := monotonicBase

	for i := 0; i < g.opts.RequestCount; i++ {
		clock += float64(g.rng.Intn(40)+1) / 1000
		requestID := fmt.Sprintf("%s.%d", session, i+1)
		reqURL := g.url(host)
		method, postData := g.method()

		g.emit(clock, session, cdproto.EventNetworkRequestWillBeSent, requestPayload(requestID, reqURL, method, postData, clock), nil)
		totals.Requests++

		if g.rng.Float64() < g.opts.DropResponseRate {
			continue
		}

		latency := float64(g.rng.Intn(400)+5) / 1000
		respAt := clock + latency
		arrival := respAt
		if g.rng.Float64() < g.opts.OutOfOrderRate {
			arrival = clock - 0.0001
		}

		status := statuses[g.rng.Intn(len(statuses))]
		body := g.jsonGen.Body()
		g.emit(arrival, session, cdproto.EventNetworkResponseReceived,
			responsePayload(requestID, reqURL, status, len(body), respAt, g.rng), nil)
		totals.Responses++
		totals.Statuses = append(totals.Statuses, status)
		if status >= 199 {
			totals.Exported++
		}

		if g.rng.Float64() < g.opts.DropBodyRate {
			continue
		}
		encoded := g.rng.Float64() < g.opts.Base64Rate
		if encoded {
			body = base64.StdEncoding.EncodeToString([]byte(body))
		}
		g.emit(respAt+0.0001, session, cdproto.CommandNetworkGetResponseBody,
			map[string]string{"requestId": requestID},
			map[string]interface{}{"body": body, "base64Encoded": encoded})
		totals.Bodies++
	}

	for i := 0; i < g.opts.ConsoleCount; i++ {
		at := monotonicBase + float64(i)/100
		text := strings.Join([]string{g.dict.RandomWord(g.rng), g.dict.RandomWord(g.rng)}, " ")
		if i%2 == 0 {
			g.emit(at, session, cdproto.EventLogEntryAdded, map[string]interface{}{
				"entry": map[string]interface{}{
					"source":    "javascript",
					"level":     consoleLevels[g.rng.Intn(len(consoleLevels))],
					"text":      text,
					"timestamp": (wallBase + at - monotonicBase) * 1000,
					"url":       "https://" + host + "/app.js",
				},
			}, nil)
		} else {
			g.emit(at, session, cdproto.EventRuntimeConsoleAPICalled, map[string]interface{}{
				"type":               "log",
				"args":               []map[string]string{{"type": "string", "value": text}},
				"executionContextId": 1,
				"timestamp":          (wallBase + at - monotonicBase) * 1000,
			}, nil)
		}
		totals.Console++
	}

	return totals
}

func (g *generator) url(host string) string {
	segments := make([]string, g.rng.Intn(3)+1)
	for i := range segments {
		segments[i] = g.dict.RandomWord(g.rng)
	}
	u := "https://" + host + "/" + strings.Join(segments, "/")
	if g.rng.Intn(2) == 0 {
		q := url.Values{}
		q.Set(g.dict.RandomWord(g.rng), g.dict.RandomWord(g.rng))
		u += "?" + q.Encode()
	}
	return u
}

func (g *generator) method() (string, string) {
	if g.rng.Intn(4) != 0 {
		return "GET", ""
	}
	form := url.Values{}
	form.Set(g.dict.RandomWord(g.rng), g.dict.RandomWord(g.rng)+" "+g.dict.RandomWord(g.rng))
	return "POST", form.Encode()
}

func requestPayload(id, reqURL, method, postData string, ts float64) map[string]interface{} {
	headers := map[string]interface{}{
		"Accept":     "application/json",
		"User-Agent": "cdpgen/1.0",
	}
	request := map[string]interface{}{
		"url":     reqURL,
		"method":  method,
		"headers": headers,
	}
	if postData != "" {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
		request["hasPostData"] = true
		request["postDataEntries"] = []map[string]string{
			{"bytes": base64.StdEncoding.EncodeToString([]byte(postData))},
		}
	}
	return map[string]interface{}{
		"requestId":   id,
		"loaderId":    "LOADER-1",
		"documentURL": reqURL,
		"request":     request,
		"timestamp":   ts,
		"wallTime":    wallBase + ts - monotonicBase,
	}
}

func responsePayload(id, reqURL string, status, size int, ts float64, rng *rand.Rand) map[string]interface{} {
	dns := float64(rng.Intn(10))
	connect := dns + float64(rng.Intn(30))
	send := connect + 1
	return map[string]interface{}{
		"requestId": id,
		"loaderId":  "LOADER-1",
		"timestamp": ts,
		"response": map[string]interface{}{
			"url":               reqURL,
			"status":            status,
			"statusText":        statusText[status],
			"headers":           map[string]string{"Content-Type": "application/json", "Server": "cdpgen"},
			"mimeType":          "application/json",
			"connectionId":      rng.Intn(500) + 1,
			"remoteIPAddress":   fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), rng.Intn(254)+1),
			"remotePort":        443,
			"encodedDataLength": size,
			"protocol":          "h2",
			"timing": map[string]float64{
				"requestTime":       ts,
				"dnsStart":          0,
				"dnsEnd":            dns,
				"connectStart":      dns,
				"connectEnd":        connect,
				"sslStart":          -1,
				"sslEnd":            -1,
				"sendStart":         connect,
				"sendEnd":           send,
				"receiveHeadersEnd": send + float64(rng.Intn(200)),
			},
		},
	}
}

// WriteTo writes the stream as JSON lines.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, msg := range s.Messages {
		raw, err := easyjson.Marshal(msg)
		if err != nil {
			return n, fmt.Errorf("failed to encode message: %w", err)
		}
		written, err := bw.Write(append(raw, '\n'))
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// GenerateToFile generates a stream and writes it to path.
func GenerateToFile(path string, opts GenerateOptions) (*Stream, error) {
	stream, err := Generate(opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := stream.WriteTo(file); err != nil {
		return nil, fmt.Errorf("failed to write stream: %w", err)
	}
	return stream, nil
}
