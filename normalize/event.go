package normalize

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

var (
	// ErrUnsupportedEvent is returned for protocol methods the capture does not consume.
	ErrUnsupportedEvent = errors.New("unsupported event")

	// ErrMalformedEvent is returned when a payload decodes but misses required fields.
	ErrMalformedEvent = errors.New("malformed event")
)

// RequestID is the opaque correlation key the transport assigns to one
// request/response pair.
type RequestID string

// Kind identifies the canonical event shapes the engine consumes.
type Kind int

const (
	KindConsole Kind = iota
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindConsole:
		return "console"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Event is one decoded protocol event.
type Event interface {
	Kind() Kind
}

// ConsoleMessage is a single console/log line emitted by the target.
type ConsoleMessage struct {
	Level     string
	Text      string
	Source    string
	Timestamp time.Time
}

// Request holds the normalized fields of a request-will-be-sent event.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	PostData    string
	HasPostData bool
	Timestamp   time.Time // monotonic clock of the target
	WallTime    time.Time // zero when the transport did not report one
}

// Timing carries the CDP phase boundaries, in milliseconds relative to the
// request start. The protocol uses -1 for boundaries that do not apply.
type Timing struct {
	DNSStart          float64
	DNSEnd            float64
	ConnectStart      float64
	ConnectEnd        float64
	SSLStart          float64
	SSLEnd            float64
	SendStart         float64
	SendEnd           float64
	ReceiveHeadersEnd float64
}

// Response holds response metadata plus the body once it has been fetched.
type Response struct {
	URL               string
	Status            int
	StatusText        string
	Protocol          string
	Headers           map[string]string
	MimeType          string
	EncodedDataLength float64
	RemoteIPAddress   string
	RemotePort        int
	ConnectionID      string
	Timing            *Timing
	Timestamp         time.Time

	Body          string
	Base64Encoded bool
	BodyLoaded    bool
}

// Body is the result of the asynchronous body-fetch side channel.
type Body struct {
	Data          string `json:"body"`
	Base64Encoded bool   `json:"base64Encoded"`
}

// ConsoleEntry is emitted for Log.entryAdded and Runtime.consoleAPICalled.
type ConsoleEntry struct {
	Message ConsoleMessage
}

// RequestWillBeSent is emitted for Network.requestWillBeSent.
type RequestWillBeSent struct {
	ID      RequestID
	Request Request
}

// ResponseReceived is emitted for Network.responseReceived.
type ResponseReceived struct {
	ID       RequestID
	Response Response
}

func (ConsoleEntry) Kind() Kind      { return KindConsole }
func (RequestWillBeSent) Kind() Kind { return KindRequest }
func (ResponseReceived) Kind() Kind  { return KindResponse }

// DecodeEvent turns a raw protocol payload into a canonical event. Every method
// is decoded on its own; nothing falls through to another kind.
func DecodeEvent(method string, params []byte) (Event, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%s: %w: empty params", method, ErrMalformedEvent)
	}

	switch cdproto.MethodType(method) {
	case cdproto.EventLogEntryAdded:
		var ev cdplog.EventEntryAdded
		if err := easyjson.Unmarshal(params, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", method, err)
		}
		return decodeLogEntry(&ev)

	case cdproto.EventRuntimeConsoleAPICalled:
		var ev cdpruntime.EventConsoleAPICalled
		if err := easyjson.Unmarshal(params, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", method, err)
		}
		return decodeConsoleAPICall(&ev), nil

	case cdproto.EventNetworkRequestWillBeSent:
		var ev network.EventRequestWillBeSent
		if err := easyjson.Unmarshal(params, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", method, err)
		}
		return decodeRequestWillBeSent(&ev)

	case cdproto.EventNetworkResponseReceived:
		var ev network.EventResponseReceived
		if err := easyjson.Unmarshal(params, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", method, err)
		}
		return decodeResponseReceived(&ev)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, method)
	}
}

func decodeLogEntry(ev *cdplog.EventEntryAdded) (Event, error) {
	if ev.Entry == nil {
		return nil, fmt.Errorf("%w: log entry missing", ErrMalformedEvent)
	}

	source := ev.Entry.URL
	if source == "" {
		source = ev.Entry.Source.String()
	}

	return ConsoleEntry{Message: ConsoleMessage{
		Level:     ev.Entry.Level.String(),
		Text:      ev.Entry.Text,
		Source:    source,
		Timestamp: runtimeTime(ev.Entry.Timestamp),
	}}, nil
}

func decodeConsoleAPICall(ev *cdpruntime.EventConsoleAPICalled) Event {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		if arg == nil {
			continue
		}
		parts = append(parts, remoteObjectText(arg))
	}

	var source string
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 && ev.StackTrace.CallFrames[0] != nil {
		source = ev.StackTrace.CallFrames[0].URL
	}
	if source == "" {
		source = "console-api"
	}

	return ConsoleEntry{Message: ConsoleMessage{
		Level:     consoleAPILevel(ev.Type.String()),
		Text:      strings.Join(parts, " "),
		Source:    source,
		Timestamp: runtimeTime(ev.Timestamp),
	}}
}

// maps console API call types onto the Log domain levels
func consoleAPILevel(apiType string) string {
	switch apiType {
	case "error", "assert":
		return "error"
	case "warning":
		return "warning"
	case "debug", "trace":
		return "verbose"
	default:
		return "info"
	}
}

func remoteObjectText(obj *cdpruntime.RemoteObject) string {
	if len(obj.Value) > 0 {
		raw := string(obj.Value)
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
		return raw
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	return obj.Description
}

func decodeRequestWillBeSent(ev *network.EventRequestWillBeSent) (Event, error) {
	if ev.RequestID == "" {
		return nil, fmt.Errorf("%w: requestWillBeSent without requestId", ErrMalformedEvent)
	}
	if ev.Request == nil {
		return nil, fmt.Errorf("%w: requestWillBeSent %s without request", ErrMalformedEvent, ev.RequestID)
	}

	req := Request{
		Method:      ev.Request.Method,
		URL:         ev.Request.URL,
		Headers:     flattenHeaders(ev.Request.Headers),
		HasPostData: ev.Request.HasPostData,
		Timestamp:   monotonic(ev.Timestamp),
	}
	if ev.WallTime != nil {
		req.WallTime = ev.WallTime.Time()
	}

	if len(ev.Request.PostDataEntries) > 0 {
		var body strings.Builder
		for _, entry := range ev.Request.PostDataEntries {
			if entry == nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: request %s postData: %v", ErrMalformedEvent, ev.RequestID, err)
			}
			body.Write(decoded)
		}
		req.PostData = body.String()
		req.HasPostData = true
	}

	return RequestWillBeSent{ID: RequestID(ev.RequestID), Request: req}, nil
}

func decodeResponseReceived(ev *network.EventResponseReceived) (Event, error) {
	if ev.RequestID == "" {
		return nil, fmt.Errorf("%w: responseReceived without requestId", ErrMalformedEvent)
	}
	if ev.Response == nil {
		return nil, fmt.Errorf("%w: responseReceived %s without response", ErrMalformedEvent, ev.RequestID)
	}

	r := ev.Response
	resp := Response{
		URL:               r.URL,
		Status:            int(r.Status),
		StatusText:        r.StatusText,
		Protocol:          r.Protocol,
		Headers:           flattenHeaders(r.Headers),
		MimeType:          r.MimeType,
		EncodedDataLength: r.EncodedDataLength,
		RemoteIPAddress:   r.RemoteIPAddress,
		RemotePort:        int(r.RemotePort),
		Timestamp:         monotonic(ev.Timestamp),
	}
	if r.ConnectionID != 0 {
		resp.ConnectionID = strconv.FormatFloat(r.ConnectionID, 'f', -1, 64)
	}
	if r.Timing != nil {
		resp.Timing = &Timing{
			DNSStart:          r.Timing.DNSStart,
			DNSEnd:            r.Timing.DNSEnd,
			ConnectStart:      r.Timing.ConnectStart,
			ConnectEnd:        r.Timing.ConnectEnd,
			SSLStart:          r.Timing.SslStart,
			SSLEnd:            r.Timing.SslEnd,
			SendStart:         r.Timing.SendStart,
			SendEnd:           r.Timing.SendEnd,
			ReceiveHeadersEnd: r.Timing.ReceiveHeadersEnd,
		}
	}

	return ResponseReceived{ID: RequestID(ev.RequestID), Response: resp}, nil
}

// header values arrive as interface{}; non-strings are formatted rather than dropped
func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for name, v := range h {
		switch value := v.(type) {
		case string:
			out[name] = value
		case nil:
			out[name] = ""
		default:
			out[name] = fmt.Sprint(value)
		}
	}
	return out
}

func runtimeTime(ts *cdpruntime.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}

func monotonic(ts *cdp.MonotonicTime) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}
