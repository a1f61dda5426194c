package normalize

import (
	"net/url"
	"sort"
	"strings"
)

// Pair is a name and value decoded from a query string, form body or header map.
type Pair struct {
	Name  string
	Value string

	// HasValue is false when the segment carried no '=' at all, which is
	// different from an explicitly empty value ("a=").
	HasValue bool
}

// ParseQueryParameters splits everything after the first '?' on '&' and then on
// the first '='. Empty segments are skipped. Both halves are percent-decoded;
// a component that fails to decode is kept verbatim. When the input has no '?'
// the whole input is treated as the query, which lets form-encoded bodies go
// through the same parser.
func ParseQueryParameters(raw string) []Pair {
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}

	pairs := make([]Pair, 0)
	if query == "" {
		return pairs
	}

	for _, segment := range strings.Split(query, "&") {
		if segment == "" {
			continue
		}

		name, value, found := strings.Cut(segment, "=")
		p := Pair{Name: decodeComponent(name)}
		if found {
			p.Value = decodeComponent(value)
			p.HasValue = true
		}
		pairs = append(pairs, p)
	}

	return pairs
}

// QueryString returns the query parameters of a url, or an empty sequence when
// the url has no '?'.
func QueryString(rawURL string) []Pair {
	if !strings.Contains(rawURL, "?") {
		return make([]Pair, 0)
	}
	return ParseQueryParameters(rawURL)
}

// PathUnescape leaves '+' alone, matching decodeURIComponent semantics
func decodeComponent(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// HeadersToPairs flattens a header mapping into pairs. Names keep the case they
// were received with and are never merged. Keys are emitted in sorted order so
// the same mapping always serializes the same way.
func HeadersToPairs(headers map[string]string) []Pair {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]Pair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, Pair{Name: name, Value: headers[name], HasValue: true})
	}
	return pairs
}

// HeaderValue does a case-insensitive lookup, preferring an exact match.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
