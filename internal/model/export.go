package model

import "time"

// Export is the top-level JSON structure written by the export command.
type Export struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionExport `json:"sessions"`
}

// SessionExport holds everything stored for one browser session.
type SessionExport struct {
	SessionID  string           `json:"session_id"`
	CreatedAt  time.Time        `json:"created_at"`
	LastSeenAt time.Time        `json:"last_seen_at"`
	Schedule   []StudyItem      `json:"schedule"`
	Quiz       *QuizResult      `json:"quiz,omitempty"`
	Analyses   []ResumeAnalysis `json:"analyses"`
}

// QuizResult is the exported view of a quiz.
type QuizResult struct {
	JobRole      string            `json:"job_role"`
	Difficulty   Difficulty        `json:"difficulty"`
	Status       QuizStatus        `json:"status"`
	Score        int               `json:"score"`
	NumQuestions int               `json:"num_questions"`
	Answered     int               `json:"answered"`
	Transcript   []TranscriptEntry `json:"transcript"`
}
