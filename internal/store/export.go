package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/learnmate/internal/model"
)

// ExportAllSessions builds an export of everything stored for every session.
func (s *Store) ExportAllSessions() (model.Export, error) {
	out := model.Export{ExportedAt: time.Now().UTC(), Sessions: []model.SessionExport{}}

	sessions, err := s.ListSessions()
	if err != nil {
		return out, fmt.Errorf("list sessions: %w", err)
	}

	for _, sess := range sessions {
		sched, err := s.GetSchedule(sess.ID)
		if err != nil {
			return out, fmt.Errorf("get schedule for %s: %w", sess.ID, err)
		}
		analyses, err := s.ListAnalyses(sess.ID)
		if err != nil {
			return out, fmt.Errorf("list analyses for %s: %w", sess.ID, err)
		}
		st, err := s.GetQuizState(sess.ID)
		if err != nil {
			return out, fmt.Errorf("get quiz for %s: %w", sess.ID, err)
		}

		se := model.SessionExport{
			SessionID:  sess.ID,
			CreatedAt:  sess.CreatedAt,
			LastSeenAt: sess.LastSeenAt,
			Schedule:   sched.Items,
			Analyses:   analyses,
		}
		if se.Schedule == nil {
			se.Schedule = []model.StudyItem{}
		}
		if se.Analyses == nil {
			se.Analyses = []model.ResumeAnalysis{}
		}
		if st != nil {
			se.Quiz = &model.QuizResult{
				JobRole:      st.JobRole,
				Difficulty:   st.Difficulty,
				Status:       st.Status,
				Score:        st.Score,
				NumQuestions: len(st.Questions),
				Answered:     st.CurrentIndex,
				Transcript:   st.Transcript,
			}
		}
		out.Sessions = append(out.Sessions, se)
	}

	return out, nil
}
