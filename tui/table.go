package tui

import (
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/pb33f/logtracker/report"
)

func (m *CaptureViewModel) buildTableRows() {
	var entries []*report.EntryMetadata
	if m.summary != nil {
		entries = m.summary.Entries
	}

	m.visible = m.filter.Apply(entries)
	rows := make([]table.Row, 0, len(m.visible))
	for _, i := range m.visible {
		rows = append(rows, formatEntryRow(entries[i], m.width))
	}
	m.rows = rows
}

func formatEntryRow(entry *report.EntryMetadata, terminalWidth int) table.Row {
	return table.Row{
		formatMethod(entry.Method),
		formatURL(entry.URL, urlColumnWidth(terminalWidth)),
		formatStatus(entry.StatusCode, entry.StatusText),
		formatDuration(entry.Duration),
	}
}

func urlColumnWidth(terminalWidth int) int {
	w := terminalWidth - methodColumnWidth - statusColumnWidth - durationColumnWidth - borderPadding
	return min(max(w, minURLColumnWidth), maxURLColumnWidth)
}

// response-only records carry no method; they are shown as GET
func formatMethod(method string) string {
	if method == "" {
		return "GET"
	}
	return truncateString(method, methodColumnWidth-1)
}

// host is dropped: a capture is normally one site and the path is what differs
func formatURL(raw string, width int) string {
	if raw == "" {
		return "/"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return truncateString(raw, width)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return truncateString(path, width)
}

// a zero status means the request never saw a response
func formatStatus(code int, text string) string {
	if code == 0 {
		return "---"
	}
	status := strconv.Itoa(code)
	if text == "" {
		return status
	}
	if withText := status + " " + text; len(withText) <= statusColumnWidth {
		return withText
	}
	return status
}

func formatDuration(ms float64) string {
	if ms <= 0 {
		return "---"
	}

	d := time.Duration(ms * float64(time.Millisecond))
	switch {
	case d < time.Millisecond:
		return strconv.FormatInt(d.Microseconds(), 10) + "μs"
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	case d < time.Minute:
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	default:
		return d.Truncate(time.Second).String()
	}
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
