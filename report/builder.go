package report

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pb33f/harhar"
	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/normalize"
)

const (
	HARVersion            = "1.2"
	DefaultCreatorName    = "logTracker"
	DefaultCreatorVersion = "0.1"
	DefaultPageID         = "page_1"

	// DefaultStatusThreshold admits every final status (>= 199).
	DefaultStatusThreshold = 199

	placeholderHeadersSize = 50
	unknownBodySize        = -1

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrNegativeDuration = errors.New("response precedes request")
	ErrEntryBuild       = errors.New("entry could not be built")
)

// EntryError reports a record that was skipped or flagged while building.
type EntryError struct {
	RequestID normalize.RequestID
	Err       error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("request %s: %v", e.RequestID, e.Err)
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// Policy decides which records make it into the network report.
type Policy struct {
	StatusThreshold int
	RequireBody     bool
}

func DefaultPolicy() Policy {
	return Policy{StatusThreshold: DefaultStatusThreshold}
}

// Admits reports whether a record is exported: it needs a response whose
// status is at least the threshold and, when required, a loaded body.
func (p Policy) Admits(rec motor.NetworkRecord) bool {
	if rec.Response == nil {
		return false
	}
	if rec.Response.Status < p.StatusThreshold {
		return false
	}
	return !p.RequireBody || rec.Response.BodyLoaded
}

type Options struct {
	Policy         Policy
	CreatorName    string
	CreatorVersion string
	Logger         *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Policy:         DefaultPolicy(),
		CreatorName:    DefaultCreatorName,
		CreatorVersion: DefaultCreatorVersion,
	}
}

// Builder turns session snapshots into reports. It holds no state between
// calls and is safe for concurrent use.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

func NewBuilder(opts Options) *Builder {
	if opts.CreatorName == "" {
		opts.CreatorName = DefaultCreatorName
	}
	if opts.CreatorVersion == "" {
		opts.CreatorVersion = DefaultCreatorVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{opts: opts, logger: logger}
}

// BuildNetworkReport produces a HAR 1.2 document from the admitted records, in
// first-seen order. A record that cannot be converted is skipped and reported;
// the document is always produced.
func (b *Builder) BuildNetworkReport(snap motor.Snapshot) (*harhar.HAR, []EntryError) {
	har := &harhar.HAR{
		Log: harhar.Log{
			Version: HARVersion,
			Creator: harhar.Creator{
				Name:    b.opts.CreatorName,
				Version: b.opts.CreatorVersion,
			},
			Pages: []harhar.Page{{
				Start: formatTime(snap.StartedAt),
				ID:    DefaultPageID,
			}},
			Entries: make([]harhar.Entry, 0, len(snap.Records)),
		},
	}

	var problems []EntryError
	for _, rec := range snap.Records {
		if !b.opts.Policy.Admits(rec) {
			continue
		}

		entry, flagged, err := b.buildEntry(snap, rec)
		if err != nil {
			b.logger.Warn("skipping entry", "session", snap.SessionID, "request", rec.ID, "error", err)
			problems = append(problems, EntryError{RequestID: rec.ID, Err: err})
			continue
		}
		if flagged != nil {
			problems = append(problems, EntryError{RequestID: rec.ID, Err: flagged})
		}
		har.Log.Entries = append(har.Log.Entries, entry)
	}

	return har, problems
}

func (b *Builder) buildEntry(snap motor.Snapshot, rec motor.NetworkRecord) (entry harhar.Entry, flagged error, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEntryBuild, r)
		}
	}()

	resp := rec.Response
	response, err := buildResponse(resp)
	if err != nil {
		return entry, nil, fmt.Errorf("%w: %v", ErrEntryBuild, err)
	}
	entry = harhar.Entry{
		PageRef:    DefaultPageID,
		Start:      formatTime(snap.StartedAt),
		Response:   response,
		Timings:    buildTimings(resp.Timing),
		ServerIP:   resp.RemoteIPAddress,
		Connection: resp.ConnectionID,
	}

	if rec.Request == nil {
		entry.Request = harhar.Request{
			URL:         resp.URL,
			HTTPVersion: resp.Protocol,
			Cookies:     []harhar.Cookie{},
			Headers:     []harhar.NameValuePair{},
			QueryParams: []harhar.NameValuePair{},
			HeadersSize: placeholderHeadersSize,
			BodySize:    unknownBodySize,
		}
		return entry, nil, nil
	}

	entry.Request = buildRequest(rec.Request, resp.Protocol)
	if !rec.Request.WallTime.IsZero() {
		entry.Start = formatTime(rec.Request.WallTime)
	}

	elapsed := resp.Timestamp.Sub(rec.Request.Timestamp)
	if elapsed < 0 {
		entry.Comment = fmt.Sprintf("negative duration %s clamped to 0", elapsed)
		return entry, ErrNegativeDuration, nil
	}
	entry.Time = millis(elapsed)
	return entry, nil, nil
}

func buildRequest(req *normalize.Request, protocol string) harhar.Request {
	out := harhar.Request{
		Method:      req.Method,
		URL:         req.URL,
		HTTPVersion: protocol,
		Cookies:     []harhar.Cookie{},
		Headers:     toNameValue(normalize.HeadersToPairs(req.Headers)),
		QueryParams: toNameValue(normalize.QueryString(req.URL)),
		HeadersSize: placeholderHeadersSize,
		BodySize:    unknownBodySize,
	}

	mimeType, _ := normalize.HeaderValue(req.Headers, "Content-Type")
	out.Body = harhar.BodyType{MIMEType: mimeType}
	if req.PostData != "" {
		out.Body.Content = req.PostData
		for _, p := range normalize.ParseQueryParameters(req.PostData) {
			out.Body.Params = append(out.Body.Params, harhar.PostNameValuePair{Name: p.Name, Value: p.Value})
		}
	}
	return out
}

// buildResponse fails when a body claims base64 encoding it does not have;
// such content would be unreadable to every HAR consumer.
func buildResponse(resp *normalize.Response) (harhar.Response, error) {
	size := int(resp.EncodedDataLength)
	out := harhar.Response{
		StatusCode:  resp.Status,
		StatusText:  resp.StatusText,
		HTTPVersion: resp.Protocol,
		Cookies:     []harhar.Cookie{},
		Headers:     toNameValue(normalize.HeadersToPairs(resp.Headers)),
		Body: harhar.BodyResponseType{
			Size:     size,
			MIMEType: resp.MimeType,
		},
		HeadersSize: placeholderHeadersSize,
		BodySize:    size,
	}
	if resp.BodyLoaded {
		out.Body.Content = resp.Body
		if resp.Base64Encoded {
			if _, err := base64.StdEncoding.DecodeString(resp.Body); err != nil {
				return out, fmt.Errorf("response body is not valid base64: %w", err)
			}
			out.Body.Encoding = "base64"
		}
	}
	return out, nil
}

// CDP boundaries are milliseconds relative to the request start; -1 marks a
// phase that did not happen.
func buildTimings(t *normalize.Timing) harhar.Timings {
	if t == nil {
		return harhar.Timings{}
	}
	return harhar.Timings{
		DNS:     phase(t.DNSStart, t.DNSEnd),
		Connect: phase(t.ConnectStart, t.ConnectEnd),
		SSL:     phase(t.SSLStart, t.SSLEnd),
		Send:    phase(t.SendStart, t.SendEnd),
		Wait:    phase(t.SendEnd, t.ReceiveHeadersEnd),
	}
}

func phase(start, end float64) float64 {
	if start < 0 || end < 0 || end < start {
		return 0
	}
	return end - start
}

func toNameValue(pairs []normalize.Pair) []harhar.NameValuePair {
	out := make([]harhar.NameValuePair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, harhar.NameValuePair{Name: p.Name, Value: p.Value})
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoMillis)
}

// WriteHAR writes the document as indented JSON.
func WriteHAR(w io.Writer, har *harhar.HAR) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(har); err != nil {
		return fmt.Errorf("failed to encode har: %w", err)
	}
	return nil
}
