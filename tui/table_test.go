package tui

import (
	"strings"
	"testing"

	"github.com/pb33f/logtracker/report"
	"github.com/stretchr/testify/assert"
)

func TestFormatMethod(t *testing.T) {
	assert.Equal(t, "GET", formatMethod(""))
	assert.Equal(t, "OPTIONS", formatMethod("OPTIONS"))
	assert.Equal(t, "PROP...", formatMethod("PROPFIND!"))
}

func TestFormatURL(t *testing.T) {
	assert.Equal(t, "/", formatURL("", 40))
	assert.Equal(t, "/", formatURL("https://example.com", 40))
	assert.Equal(t, "/api/users?page=2", formatURL("https://example.com/api/users?page=2", 40))
	assert.Equal(t, "/a/b/c/d/e...", formatURL("https://example.com/a/b/c/d/e/f/g/h", 13))

	long := "://" + strings.Repeat("x", 50)
	assert.Len(t, formatURL(long, 20), 20, "unparseable urls are still clamped")
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "---", formatStatus(0, ""))
	assert.Equal(t, "200", formatStatus(200, ""))
	assert.Equal(t, "200 OK", formatStatus(200, "OK"))
	assert.Equal(t, "503", formatStatus(503, "Service Unavailable"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{0, "---"},
		{-4, "---"},
		{0.25, "250μs"},
		{42.7, "42ms"},
		{1500, "1.5s"},
		{125000, "2m5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.ms), "%vms", tt.ms)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 3))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
	assert.Equal(t, "a...", truncateString("abcdef", 4))
	assert.Empty(t, truncateString("abc", 0))
}

func TestURLColumnWidth(t *testing.T) {
	assert.Equal(t, minURLColumnWidth, urlColumnWidth(10))
	assert.Equal(t, maxURLColumnWidth, urlColumnWidth(400))
	assert.Equal(t, 80-methodColumnWidth-statusColumnWidth-durationColumnWidth-borderPadding, urlColumnWidth(80))
}

func TestBuildTableRows_FollowsFilter(t *testing.T) {
	m := NewCaptureViewModel("capture.har")
	m.width = 120
	m.summary = &report.Summary{Entries: sampleMetadata()}

	m.buildTableRows()
	assert.Len(t, m.rows, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, m.visible)
	assert.Equal(t, "POST", m.rows[1][0])
	assert.Equal(t, "/api/login", m.rows[1][1])
	assert.Equal(t, "401", m.rows[1][2])
	assert.Equal(t, "---", m.rows[2][2])

	m.filter, _ = NewEntryFilter("", true)
	m.buildTableRows()
	assert.Equal(t, []int{1, 2, 3}, m.visible)
	assert.Len(t, m.rows, 3)
}
