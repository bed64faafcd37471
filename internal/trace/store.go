package trace

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	_ "modernc.org/sqlite"             // registers "sqlite" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 100

// Store persists sessions, runs and spans to SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the trace database at dsn and applies pending migrations.
func Open(dsn string) (*Store, error) {
	d := dialectFor(dsn)
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	for _, p := range d.pragmas {
		if _, err = db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("trace %s: %w", p, err)
		}
	}

	s := &Store{db: db, dialect: d}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return s, nil
}

func (s *Store) exec(query string, args ...any) error {
	_, err := s.db.Exec(s.dialect.Rebind(query), args...)
	return err
}

func (s *Store) migrate() error {
	if err := s.exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := s.db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if execErr := s.exec(`INSERT INTO schema_version (version) VALUES (?)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a session and prunes all but the newest maxSessions.
func (s *Store) CreateSession(id string, startedAt time.Time) error {
	if err := s.exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, millis(startedAt)); err != nil {
		return err
	}

	keep := `SELECT id FROM sessions ORDER BY started_at DESC LIMIT ?`
	if err := s.exec(`DELETE FROM spans WHERE run_id IN (SELECT id FROM runs WHERE session_id NOT IN (`+keep+`))`, maxSessions); err != nil {
		return err
	}
	if err := s.exec(`DELETE FROM runs WHERE session_id NOT IN (`+keep+`)`, maxSessions); err != nil {
		return err
	}
	return s.exec(`DELETE FROM sessions WHERE id NOT IN (`+keep+`)`, maxSessions)
}

// EndSession records the end time, interaction count and session log path.
func (s *Store) EndSession(id string, endedAt time.Time, interactions int, logPath string) error {
	return s.exec(
		`UPDATE sessions SET ended_at = ?, interactions = ?, log_path = ? WHERE id = ?`,
		millis(endedAt), interactions, logPath, id,
	)
}

func (s *Store) CreateRun(id, sessionID string, iteration int, startedAt time.Time) error {
	return s.exec(
		`INSERT INTO runs (id, session_id, iteration, started_at, status) VALUES (?, ?, ?, ?, 'running')`,
		id, sessionID, iteration, millis(startedAt),
	)
}

// UpdateRun sets the run's final fields.
func (s *Store) UpdateRun(id string, durationMs float64, transcript, response, status string) error {
	return s.exec(
		`UPDATE runs SET duration_ms = ?, transcript = ?, response = ?, status = ? WHERE id = ?`,
		durationMs, transcript, response, status, id,
	)
}

func (s *Store) CreateSpan(sp Span) error {
	return s.exec(
		`INSERT INTO spans (id, run_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.RunID, sp.Name, millis(sp.StartedAt),
		sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
}

// ListSessions returns sessions newest first with run counts, plus the total.
func (s *Store) ListSessions(limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(s.dialect.Rebind(`
		SELECT s.id, s.started_at, s.ended_at, s.log_path, s.interactions, COUNT(r.id) AS run_count
		FROM sessions s
		LEFT JOIN runs r ON r.session_id = s.id
		GROUP BY s.id, s.started_at, s.ended_at, s.log_path, s.interactions
		ORDER BY s.started_at DESC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, scanErr := scanSession(rows, true)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, withCount bool) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	dest := []any{&sess.ID, &started, &ended, &sess.LogPath, &sess.Interactions}
	if withCount {
		dest = append(dest, &sess.RunCount)
	}
	if err := row.Scan(dest...); err != nil {
		return Session{}, err
	}
	sess.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetSession returns a session with its runs in order.
func (s *Store) GetSession(id string) (*Session, []Run, error) {
	sess, err := scanSession(s.db.QueryRow(s.dialect.Rebind(
		`SELECT id, started_at, ended_at, log_path, interactions FROM sessions WHERE id = ?`), id,
	), false)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(s.dialect.Rebind(`
		SELECT r.id, r.session_id, r.iteration, r.started_at, r.duration_ms, r.transcript, r.response, r.status,
		       COUNT(sp.id) AS span_count
		FROM runs r
		LEFT JOIN spans sp ON sp.run_id = r.id
		WHERE r.session_id = ?
		GROUP BY r.id, r.session_id, r.iteration, r.started_at, r.duration_ms, r.transcript, r.response, r.status
		ORDER BY r.started_at ASC, r.iteration ASC
	`), id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err = rows.Scan(&r.ID, &r.SessionID, &r.Iteration, &started, &r.DurationMs, &r.Transcript, &r.Response, &r.Status, &r.SpanCount); err != nil {
			return nil, nil, err
		}
		r.StartedAt = fromMillis(started)
		runs = append(runs, r)
	}
	return &sess, runs, rows.Err()
}

// GetRun returns a run of sessionID with its spans.
func (s *Store) GetRun(sessionID, runID string) (*Run, []Span, error) {
	var (
		r       Run
		started int64
	)
	err := s.db.QueryRow(s.dialect.Rebind(
		`SELECT id, session_id, iteration, started_at, duration_ms, transcript, response, status FROM runs WHERE id = ? AND session_id = ?`),
		runID, sessionID,
	).Scan(&r.ID, &r.SessionID, &r.Iteration, &started, &r.DurationMs, &r.Transcript, &r.Response, &r.Status)
	if err != nil {
		return nil, nil, err
	}
	r.StartedAt = fromMillis(started)

	rows, err := s.db.Query(s.dialect.Rebind(
		`SELECT id, run_id, name, started_at, duration_ms, input, output, status, error_msg FROM spans WHERE run_id = ? ORDER BY started_at ASC`),
		runID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.RunID, &sp.Name, &started, &sp.DurationMs, &sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, nil, err
		}
		sp.StartedAt = fromMillis(started)
		spans = append(spans, sp)
	}
	return &r, spans, rows.Err()
}
