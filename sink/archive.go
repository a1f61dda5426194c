package sink

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pb33f/logtracker/capture"
	"github.com/pb33f/logtracker/report"
)

var ErrCaptureNotFound = errors.New("capture not found")

// Capture is one archived session.
type Capture struct {
	ID           string
	SessionID    string
	CreatedAt    time.Time
	Entries      int
	ConsoleLines int
	Digest       string
	HAR          []byte
	Console      []byte
}

// Archive keeps finished captures in a SQLite database.
type Archive struct {
	db *sql.DB
}

var _ capture.Sink = (*Archive)(nil)

func OpenArchive(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			entries INTEGER NOT NULL,
			console_lines INTEGER NOT NULL,
			digest TEXT NOT NULL,
			har TEXT NOT NULL,
			console TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_session ON captures(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_created ON captures(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (a *Archive) Write(ctx context.Context, result *capture.Result) error {
	_, err := a.Save(ctx, result)
	return err
}

// Save stores a result and returns its archive id.
func (a *Archive) Save(ctx context.Context, result *capture.Result) (string, error) {
	var har bytes.Buffer
	if err := report.WriteHAR(&har, result.HAR); err != nil {
		return "", err
	}

	id := uuid.New().String()
	query := `INSERT INTO captures (id, session_id, created_at, entries, console_lines, digest, har, console)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := a.db.ExecContext(ctx, query,
		id,
		string(result.SessionID),
		result.EndedAt.UTC(),
		len(result.HAR.Log.Entries),
		result.Messages,
		report.Digest(har.Bytes()),
		har.String(),
		string(result.Console),
	)
	if err != nil {
		return "", fmt.Errorf("failed to archive capture: %w", err)
	}
	return id, nil
}

// List returns archived captures, newest first, without their payloads.
func (a *Archive) List(ctx context.Context) ([]*Capture, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, session_id, created_at, entries, console_lines, digest
		FROM captures ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		if err := rows.Scan(&c.ID, &c.SessionID, &c.CreatedAt, &c.Entries, &c.ConsoleLines, &c.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

func (a *Archive) Get(ctx context.Context, id string) (*Capture, error) {
	c := &Capture{}
	var har, console string
	err := a.db.QueryRowContext(ctx, `SELECT id, session_id, created_at, entries, console_lines, digest, har, console
		FROM captures WHERE id = ?`, id).
		Scan(&c.ID, &c.SessionID, &c.CreatedAt, &c.Entries, &c.ConsoleLines, &c.Digest, &har, &console)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrCaptureNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	c.HAR = []byte(har)
	c.Console = []byte(console)
	return c, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
