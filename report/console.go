package report

import (
	"bytes"
	"strings"

	"github.com/pb33f/logtracker/motor"
)

var consoleHeader = []string{"LEVEL", "MESSAGE", "SOURCE"}

// BuildConsoleReport renders the console as CSV with every field quoted.
// No filtering is applied.
func (b *Builder) BuildConsoleReport(snap motor.Snapshot) []byte {
	var buf bytes.Buffer
	writeRow(&buf, consoleHeader...)
	for _, msg := range snap.Console {
		writeRow(&buf, msg.Level, msg.Text, msg.Source)
	}
	return buf.Bytes()
}

// encoding/csv only quotes fields that need it; this format quotes them all
func writeRow(buf *bytes.Buffer, fields ...string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}
