package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/learnmate/internal/model"
)

// AddAnalysis stores a résumé analysis for the session.
func (s *Store) AddAnalysis(sessionID string, a model.ResumeAnalysis) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO resume_analyses (session_id, job_role, file_name, format, analysis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, a.JobRole, a.FileName, a.Format, a.Analysis, a.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestAnalysis returns the most recent analysis for the session, or nil.
func (s *Store) LatestAnalysis(sessionID string) (*model.ResumeAnalysis, error) {
	var a model.ResumeAnalysis
	err := s.db.QueryRow(
		`SELECT id, job_role, file_name, format, analysis, created_at
		 FROM resume_analyses WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&a.ID, &a.JobRole, &a.FileName, &a.Format, &a.Analysis, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses returns every analysis for the session, oldest first.
func (s *Store) ListAnalyses(sessionID string) ([]model.ResumeAnalysis, error) {
	rows, err := s.db.Query(
		`SELECT id, job_role, file_name, format, analysis, created_at
		 FROM resume_analyses WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ResumeAnalysis
	for rows.Next() {
		var a model.ResumeAnalysis
		if err := rows.Scan(&a.ID, &a.JobRole, &a.FileName, &a.Format, &a.Analysis, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
