package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pb33f/logtracker/capture"
	"github.com/pb33f/logtracker/report"
)

// fileStamp is an ISO-8601 UTC timestamp without characters that are
// awkward in file names.
const fileStamp = "20060102T150405.000Z"

// Dir writes each result as network.<stamp>.har and console.<stamp>.csv.
type Dir struct {
	Path   string
	Logger *slog.Logger
}

var _ capture.Sink = (*Dir)(nil)

func NewDir(path string, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{Path: path, Logger: logger}
}

func (d *Dir) Write(_ context.Context, result *capture.Result) error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := FileNames(d.Path, string(result.SessionID), result.EndedAt)

	var har bytes.Buffer
	if err := report.WriteHAR(&har, result.HAR); err != nil {
		return err
	}
	if err := os.WriteFile(paths.HAR, har.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write network report: %w", err)
	}
	if err := os.WriteFile(paths.Console, result.Console, 0o644); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}

	d.Logger.Info("reports written", "session", result.SessionID,
		"har", paths.HAR, "console", paths.Console)
	return nil
}

type Paths struct {
	HAR     string
	Console string
}

// FileNames returns the report paths for a session. The session id is part
// of the name so concurrent sessions never collide.
func FileNames(dir, session string, at time.Time) Paths {
	stamp := at.UTC().Format(fileStamp)
	tag := sanitize(session)
	return Paths{
		HAR:     filepath.Join(dir, fmt.Sprintf("network.%s.%s.har", tag, stamp)),
		Console: filepath.Join(dir, fmt.Sprintf("console.%s.%s.csv", tag, stamp)),
	}
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "session"
	}
	return string(out)
}
