package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/learnmate/internal/model"
)

// GetQuizState returns the session's quiz, or nil if none was started.
func (s *Store) GetQuizState(sessionID string) (*model.QuizState, error) {
	var (
		st        model.QuizState
		questions string
	)
	err := s.db.QueryRow(
		`SELECT job_role, difficulty, questions, current_index, score, status, started_at, completed_at
		 FROM quiz_states WHERE session_id = ?`, sessionID,
	).Scan(&st.JobRole, &st.Difficulty, &questions, &st.CurrentIndex, &st.Score, &st.Status, &st.StartedAt, &st.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &st.Questions); err != nil {
		return nil, fmt.Errorf("decode quiz questions: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM transcript_entries WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	st.Transcript = []model.TranscriptEntry{}
	for rows.Next() {
		var e model.TranscriptEntry
		if err := rows.Scan(&e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		st.Transcript = append(st.Transcript, e)
	}
	return &st, rows.Err()
}

// SaveQuizState writes the quiz and its full transcript in one transaction.
func (s *Store) SaveQuizState(sessionID string, st *model.QuizState) error {
	questions, err := json.Marshal(st.Questions)
	if err != nil {
		return fmt.Errorf("encode quiz questions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var completedAt any
	if st.CompletedAt != nil {
		completedAt = st.CompletedAt.UTC()
	}
	_, err = tx.Exec(
		`INSERT INTO quiz_states (session_id, job_role, difficulty, questions, current_index, score, status, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   job_role = excluded.job_role,
		   difficulty = excluded.difficulty,
		   questions = excluded.questions,
		   current_index = excluded.current_index,
		   score = excluded.score,
		   status = excluded.status,
		   started_at = excluded.started_at,
		   completed_at = excluded.completed_at`,
		sessionID, st.JobRole, st.Difficulty, string(questions), st.CurrentIndex, st.Score, st.Status,
		st.StartedAt.UTC(), completedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for _, e := range st.Transcript {
		if _, err := tx.Exec(
			`INSERT INTO transcript_entries (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, e.Role, e.Content, e.CreatedAt.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteQuizState forgets the session's quiz.
func (s *Store) DeleteQuizState(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM quiz_states WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}
