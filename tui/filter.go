package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pb33f/logtracker/report"
)

// queries starting with this prefix are compiled as regular expressions
const regexPrefix = "re:"

// EntryFilter decides which captured entries the table lists. Plain queries
// match case-insensitively against method, URL and mime type.
type EntryFilter struct {
	query      string
	text       string
	pattern    *regexp.Regexp
	failedOnly bool
}

func NewEntryFilter(query string, failedOnly bool) (*EntryFilter, error) {
	query = strings.TrimSpace(query)
	f := &EntryFilter{query: query, failedOnly: failedOnly}

	if expr, ok := strings.CutPrefix(query, regexPrefix); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		f.pattern = re
		return f, nil
	}

	f.text = strings.ToLower(query)
	return f, nil
}

// IsActive reports whether the filter hides anything at all.
func (f *EntryFilter) IsActive() bool {
	return f != nil && (f.text != "" || f.pattern != nil || f.failedOnly)
}

// Matches reports whether one entry passes the filter. An entry without a
// status never got a response and counts as failed.
func (f *EntryFilter) Matches(e *report.EntryMetadata) bool {
	if f == nil || e == nil {
		return e != nil
	}
	if f.failedOnly && e.StatusCode > 0 && e.StatusCode < 400 {
		return false
	}

	haystack := e.Method + " " + e.URL + " " + e.MimeType
	switch {
	case f.pattern != nil:
		return f.pattern.MatchString(haystack)
	case f.text != "":
		return strings.Contains(strings.ToLower(haystack), f.text)
	default:
		return true
	}
}

// Apply returns the indexes of the entries that pass, in capture order.
func (f *EntryFilter) Apply(entries []*report.EntryMetadata) []int {
	visible := make([]int, 0, len(entries))
	for i, e := range entries {
		if f.Matches(e) {
			visible = append(visible, i)
		}
	}
	return visible
}

// Query is the text the filter was built from, without the failed-only toggle.
func (f *EntryFilter) Query() string {
	if f == nil {
		return ""
	}
	return f.query
}

func (f *EntryFilter) String() string {
	if !f.IsActive() {
		return ""
	}
	var parts []string
	if f.query != "" {
		parts = append(parts, fmt.Sprintf("filter %q", f.query))
	}
	if f.failedOnly {
		parts = append(parts, "failed only")
	}
	return strings.Join(parts, ", ")
}
