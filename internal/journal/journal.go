package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sources of a journal entry.
const (
	SourceTrack  = "track"
	SourceManual = "manual"
)

// Entry is one issued flight command.
type Entry struct {
	ID        int64
	SessionID string
	Source    string
	// Action is the axis ("x", "y", "z") for tracking pulses and the action
	// name ("forward", "takeoff", ...) otherwise.
	Action   string
	Flags    int32
	Roll     float32
	Pitch    float32
	Gaz      float32
	Yaw      float32
	ErrX     float32
	ErrY     float32
	ErrZ     float32
	Duration time.Duration
	// Repeats is how many times the command was sent during the pulse.
	Repeats  int
	IssuedAt time.Time
}

// Query filters Recent.
type Query struct {
	SessionID string
	Source    string
	Limit     int
}

// SourceCount is a per-source total for a session.
type SourceCount struct {
	Source string
	Count  int
}

const entryColumns = "id, session_id, source, action, flags, roll, pitch, gaz, yaw, err_x, err_y, err_z, duration_ms, repeats, issued_at"

// Journal is a handle on the pulse database. It is safe for concurrent use.
type Journal struct {
	db   *sql.DB
	path string
}

// NewSessionID returns a fresh identifier for one station run.
func NewSessionID() string {
	return uuid.NewString()
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path is the database file location.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts e and returns its row id. A zero IssuedAt is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if j == nil {
		return 0, nil
	}
	if e.SessionID == "" {
		return 0, errors.New("journal entry requires a session id")
	}
	if e.Source != SourceTrack && e.Source != SourceManual {
		return 0, fmt.Errorf("journal entry source %q is not track or manual", e.Source)
	}
	if e.IssuedAt.IsZero() {
		e.IssuedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO pulses (
            session_id, source, action, flags, roll, pitch, gaz, yaw,
            err_x, err_y, err_z, duration_ms, repeats, issued_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Action, e.Flags,
		float64(e.Roll), float64(e.Pitch), float64(e.Gaz), float64(e.Yaw),
		float64(e.ErrX), float64(e.ErrY), float64(e.ErrZ),
		e.Duration.Milliseconds(), e.Repeats,
		e.IssuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert pulse: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns entries newest first. A zero Limit returns 50 rows.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		where []string
		args  []any
	)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	stmt := `SELECT ` + entryColumns + ` FROM pulses`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query pulses: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pulse: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts totals a session's entries by source.
func (j *Journal) Counts(ctx context.Context, sessionID string) ([]SourceCount, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT source, COUNT(1) FROM pulses WHERE session_id = ? GROUP BY source ORDER BY source`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("pulse counts: %w", err)
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Source, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Prune deletes entries issued before cutoff and reports how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM pulses WHERE issued_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune pulses: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e                     Entry
		roll, pitch, gaz, yaw float64
		errX, errY, errZ      float64
		durationMS            int64
		issuedRaw             string
	)
	if err := scanner.Scan(
		&e.ID, &e.SessionID, &e.Source, &e.Action, &e.Flags,
		&roll, &pitch, &gaz, &yaw,
		&errX, &errY, &errZ,
		&durationMS, &e.Repeats, &issuedRaw,
	); err != nil {
		return Entry{}, err
	}
	e.Roll, e.Pitch, e.Gaz, e.Yaw = float32(roll), float32(pitch), float32(gaz), float32(yaw)
	e.ErrX, e.ErrY, e.ErrZ = float32(errX), float32(errY), float32(errZ)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if ts, err := time.Parse(time.RFC3339Nano, issuedRaw); err == nil {
		e.IssuedAt = ts
	}
	return e, nil
}
