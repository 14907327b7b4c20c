package store

import (
	"database/sql"
	"slices"
	"time"

	"github.com/pavelanni/learnmate/internal/model"
)

// EnsureSession creates the browser session row if it does not exist yet and
// marks it as seen.
func (s *Store) EnsureSession(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO browser_sessions (id, created_at, last_seen_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		id, now, now,
	)
	return err
}

// TouchSession updates last_seen_at for an existing session.
func (s *Store) TouchSession(id string) error {
	_, err := s.db.Exec(`UPDATE browser_sessions SET last_seen_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// GetSession returns the session with the given id, or nil if not found.
func (s *Store) GetSession(id string) (*model.BrowserSession, error) {
	var sess model.BrowserSession
	err := s.db.QueryRow(
		`SELECT id, created_at, last_seen_at FROM browser_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions, most recently seen first.
func (s *Store) ListSessions() ([]model.BrowserSession, error) {
	rows, err := s.db.Query(`SELECT id, created_at, last_seen_at FROM browser_sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.BrowserSession
	for rows.Next() {
		var sess model.BrowserSession
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastSeenAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(sessions, func(a, b model.BrowserSession) int {
		return b.LastSeenAt.Compare(a.LastSeenAt)
	})
	return sessions, nil
}

// CleanupSessionsBefore removes sessions last seen before cutoff together with
// everything stored for them. It returns the ids of the removed sessions.
func (s *Store) CleanupSessionsBefore(cutoff time.Time) ([]string, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var removed []string
	for _, sess := range sessions {
		if !sess.LastSeenAt.Before(cutoff) {
			continue
		}
		for _, q := range []string{
			`DELETE FROM schedule_items WHERE session_id = ?`,
			`DELETE FROM schedules WHERE session_id = ?`,
			`DELETE FROM transcript_entries WHERE session_id = ?`,
			`DELETE FROM quiz_states WHERE session_id = ?`,
			`DELETE FROM resume_analyses WHERE session_id = ?`,
			`DELETE FROM browser_sessions WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, sess.ID); err != nil {
				return nil, err
			}
		}
		removed = append(removed, sess.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}
