package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pb33f/harhar"
)

const (
	keyLog     = "log"
	keyVersion = "version"
	keyCreator = "creator"
	keyBrowser = "browser"
	keyPages   = "pages"
	keyEntries = "entries"
)

// EntryMetadata is the lightweight view of one entry used for listing.
type EntryMetadata struct {
	Offset       int64
	Length       int64
	Method       string
	URL          string
	StatusCode   int
	StatusText   string
	MimeType     string
	Timestamp    time.Time
	Duration     float64
	ResponseSize int64
	PageRef      string
	ServerIP     string
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Summary is the result of scanning a HAR document once.
type Summary struct {
	Path               string
	Size               int64
	Digest             string
	Version            string
	Creator            *harhar.Creator
	Browser            *harhar.Creator
	Pages              []harhar.Page
	Entries            []*EntryMetadata
	TotalResponseBytes int64
	TimeRange          TimeRange
	UniqueURLs         int
	LoadTime           time.Duration

	content []byte
	strings map[string]string
}

// LoadHAR scans a HAR file token by token, collecting metadata per entry
// without keeping decoded entries around.
func LoadHAR(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open har file: %w", err)
	}
	defer f.Close()

	summary, err := ReadHAR(f)
	if err != nil {
		return nil, err
	}
	summary.Path = path
	return summary, nil
}

func ReadHAR(r io.Reader) (*Summary, error) {
	start := time.Now()
	hash := xxhash.New()

	content, err := io.ReadAll(io.TeeReader(r, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to read har file: %w", err)
	}

	s := &Summary{
		Entries: make([]*EntryMetadata, 0),
		content: content,
		strings: make(map[string]string),
	}

	if err := s.parseHAR(content); err != nil {
		return nil, fmt.Errorf("failed to parse har file: %w", err)
	}

	s.Digest = fmt.Sprintf("%x", hash.Sum64())
	s.Size = int64(len(content))
	s.LoadTime = time.Since(start)

	urls := make(map[string]struct{}, len(s.Entries))
	for _, entry := range s.Entries {
		urls[entry.URL] = struct{}{}
	}
	s.UniqueURLs = len(urls)

	return s, nil
}

// Digest returns the xxhash of a serialized document in the form LoadHAR
// reports it.
func Digest(data []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(data))
}

// Entry decodes the full entry at index i.
func (s *Summary) Entry(i int) (*harhar.Entry, error) {
	if i < 0 || i >= len(s.Entries) {
		return nil, fmt.Errorf("entry %d out of range [0,%d)", i, len(s.Entries))
	}
	meta := s.Entries[i]
	raw := bytes.TrimLeft(s.content[meta.Offset:meta.Offset+meta.Length], " \t\r\n,")

	var entry harhar.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
	}
	return &entry, nil
}

// repeated methods, mime types and hosts share one backing string
func (s *Summary) intern(v string) string {
	if v == "" {
		return ""
	}
	if interned, ok := s.strings[v]; ok {
		return interned
	}
	s.strings[v] = v
	return v
}

func (s *Summary) parseHAR(content []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()

	if _, err := decoder.Token(); err != nil {
		return err
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}

		key, ok := token.(string)
		if !ok {
			continue
		}

		if key == keyLog {
			if err := s.parseLog(decoder); err != nil {
				return err
			}
			continue
		}
		if err := skipValue(decoder); err != nil {
			return err
		}
	}

	return nil
}

func (s *Summary) parseLog(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != nil {
		return err
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}

		key, ok := token.(string)
		if !ok {
			continue
		}

		switch key {
		case keyVersion:
			if err := decoder.Decode(&s.Version); err != nil {
				return err
			}
		case keyCreator:
			var creator harhar.Creator
			if err := decoder.Decode(&creator); err != nil {
				return err
			}
			s.Creator = &creator
		case keyBrowser:
			var browser harhar.Creator
			if err := decoder.Decode(&browser); err != nil {
				return err
			}
			s.Browser = &browser
		case keyPages:
			if err := decoder.Decode(&s.Pages); err != nil {
				return err
			}
		case keyEntries:
			if err := s.parseEntries(decoder); err != nil {
				return err
			}
		default:
			if err := skipValue(decoder); err != nil {
				return err
			}
		}
	}

	// closing brace of log
	_, err := decoder.Token()
	return err
}

func (s *Summary) parseEntries(decoder *json.Decoder) error {
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if token != json.Delim('[') {
		return fmt.Errorf("expected array delimiter, got %v", token)
	}

	for i := 0; decoder.More(); i++ {
		startOffset := decoder.InputOffset()

		var entry harhar.Entry
		if err := decoder.Decode(&entry); err != nil {
			return fmt.Errorf("failed to parse entry %d: %w", i, err)
		}

		meta := s.metadata(&entry)
		meta.Offset = startOffset
		meta.Length = decoder.InputOffset() - startOffset

		s.Entries = append(s.Entries, meta)
		s.TotalResponseBytes += meta.ResponseSize

		if meta.Timestamp.IsZero() {
			continue
		}
		if s.TimeRange.Start.IsZero() || meta.Timestamp.Before(s.TimeRange.Start) {
			s.TimeRange.Start = meta.Timestamp
		}
		if meta.Timestamp.After(s.TimeRange.End) {
			s.TimeRange.End = meta.Timestamp
		}
	}

	_, err = decoder.Token()
	return err
}

func (s *Summary) metadata(entry *harhar.Entry) *EntryMetadata {
	meta := &EntryMetadata{
		Method:       s.intern(entry.Request.Method),
		URL:          entry.Request.URL,
		StatusCode:   entry.Response.StatusCode,
		StatusText:   s.intern(entry.Response.StatusText),
		MimeType:     s.intern(entry.Response.Body.MIMEType),
		Duration:     entry.Time,
		ResponseSize: int64(entry.Response.BodySize),
		PageRef:      s.intern(entry.PageRef),
		ServerIP:     s.intern(entry.ServerIP),
	}

	if entry.Start != "" {
		if t, err := time.Parse(time.RFC3339, entry.Start); err == nil {
			meta.Timestamp = t
		}
	}
	return meta
}

func skipValue(decoder *json.Decoder) error {
	token, err := decoder.Token()
	if err != nil {
		return err
	}

	switch token {
	case json.Delim('{'), json.Delim('['):
		for decoder.More() {
			if token == json.Delim('{') {
				if _, err := decoder.Token(); err != nil {
					return err
				}
			}
			if err := skipValue(decoder); err != nil {
				return err
			}
		}
		_, err = decoder.Token()
		return err
	}

	return nil
}
