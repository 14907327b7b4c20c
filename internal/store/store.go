package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/learnmate/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS browser_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		session_id TEXT PRIMARY KEY,
		generated_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES browser_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS schedule_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		subject TEXT NOT NULL,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES browser_sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_schedule_items_session ON schedule_items(session_id, position);

	CREATE TABLE IF NOT EXISTS quiz_states (
		session_id TEXT PRIMARY KEY,
		job_role TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		current_index INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'idle',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (session_id) REFERENCES browser_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS transcript_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES browser_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS resume_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		job_role TEXT NOT NULL,
		file_name TEXT NOT NULL,
		format TEXT NOT NULL,
		analysis TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES browser_sessions(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetSchedule returns the stored schedule for a session. A session that never
// planned anything gets an empty schedule.
func (s *Store) GetSchedule(sessionID string) (model.Schedule, error) {
	var sched model.Schedule
	err := s.db.QueryRow(
		`SELECT generated_at FROM schedules WHERE session_id = ?`, sessionID,
	).Scan(&sched.GeneratedAt)
	if err == sql.ErrNoRows {
		return sched, nil
	}
	if err != nil {
		return sched, err
	}

	rows, err := s.db.Query(
		`SELECT subject, title, type, duration_minutes, url, image_url
		 FROM schedule_items WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return sched, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.StudyItem
		if err := rows.Scan(&it.Subject, &it.Title, &it.Type, &it.DurationMinutes, &it.URL, &it.ImageURL); err != nil {
			return sched, err
		}
		sched.Items = append(sched.Items, it)
	}
	return sched, rows.Err()
}

// ReplaceSchedule swaps the session's schedule for sched in one transaction.
func (s *Store) ReplaceSchedule(sessionID string, sched model.Schedule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedule_items WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	generated := sched.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	if _, err := tx.Exec(
		`INSERT INTO schedules (session_id, generated_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET generated_at = excluded.generated_at`,
		sessionID, generated.UTC(),
	); err != nil {
		return err
	}
	for i, it := range sched.Items {
		if _, err := tx.Exec(
			`INSERT INTO schedule_items (session_id, position, subject, title, type, duration_minutes, url, image_url)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, it.Subject, it.Title, it.Type, it.DurationMinutes, it.URL, it.ImageURL,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
