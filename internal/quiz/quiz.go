// Package quiz runs the multiple-choice quiz state machine:
// idle → awaiting_questions → in_progress → completed.
package quiz

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/learnmate/internal/llm"
	"github.com/pavelanni/learnmate/internal/llm/prompts"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/parse"
)

// Service drives quizzes. The caller owns each *model.QuizState and passes it
// to every call.
type Service struct {
	llm       llm.Completer
	questions int
	now       func() time.Time
}

// New creates a quiz service that asks for numQuestions questions per quiz.
func New(c llm.Completer, numQuestions int) *Service {
	if numQuestions <= 0 {
		numQuestions = 10
	}
	return &Service{llm: c, questions: numQuestions, now: time.Now}
}

// Start generates a new quiz. On any failure st is reset to idle with no
// questions and the error is returned.
func (s *Service) Start(ctx context.Context, st *model.QuizState, jobRole string, difficulty model.Difficulty) error {
	if st.Status == model.QuizInProgress {
		return model.ErrQuizInProgress
	}
	jobRole = strings.TrimSpace(jobRole)
	if jobRole == "" {
		return &model.ValidationError{Field: "job_role", Reason: "job role is required"}
	}
	if !difficulty.Valid() {
		return &model.ValidationError{Field: "difficulty", Reason: "unknown difficulty"}
	}

	*st = model.QuizState{
		JobRole:    jobRole,
		Difficulty: difficulty,
		Status:     model.QuizAwaitingQuestions,
	}

	questions, err := s.fetchQuestions(ctx, jobRole, difficulty)
	if err != nil {
		slog.Warn("quiz generation failed", "job_role", jobRole, "difficulty", difficulty, "error", err)
		*st = model.QuizState{Status: model.QuizIdle}
		return err
	}

	st.Questions = questions
	st.CurrentIndex = 0
	st.Score = 0
	st.Transcript = []model.TranscriptEntry{}
	st.Status = model.QuizInProgress
	st.StartedAt = s.now()
	slog.Info("quiz started", "job_role", jobRole, "difficulty", difficulty, "questions", len(questions))
	return nil
}

func (s *Service) fetchQuestions(ctx context.Context, jobRole string, difficulty model.Difficulty) ([]model.QuizQuestion, error) {
	prompt, err := prompts.Quiz(prompts.QuizData{JobRole: jobRole, Difficulty: difficulty, Count: s.questions})
	if err != nil {
		return nil, err
	}
	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parse.Quiz(raw)
}

// CurrentQuestion returns the question awaiting an answer.
func CurrentQuestion(st *model.QuizState) (model.QuizQuestion, bool) {
	if !st.Active() || st.CurrentIndex >= len(st.Questions) {
		return model.QuizQuestion{}, false
	}
	return st.Questions[st.CurrentIndex], true
}

// Submit records an answer to the current question and advances the quiz.
// The commentary is fetched before st is touched, so a transport failure
// leaves the state unchanged.
func (s *Service) Submit(ctx context.Context, st *model.QuizState, answer string) (bool, error) {
	q, ok := CurrentQuestion(st)
	if !ok {
		return false, model.ErrQuizNotActive
	}
	if answer == "" {
		return false, &model.ValidationError{Field: "answer", Reason: "an option must be selected"}
	}
	if !slices.Contains(q.Options, answer) {
		return false, &model.ValidationError{Field: "answer", Reason: "answer is not one of the options"}
	}

	prompt, err := prompts.Followup(prompts.FollowupData{Question: q.Text, Answer: answer})
	if err != nil {
		return false, err
	}
	commentary, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}

	now := s.now()
	correct := answer == q.CorrectAnswer
	st.Transcript = append(st.Transcript, model.TranscriptEntry{Role: model.RoleUser, Content: answer, CreatedAt: now})
	if correct {
		st.Score++
	}
	st.Transcript = append(st.Transcript, model.TranscriptEntry{Role: model.RoleAI, Content: commentary, CreatedAt: now})
	st.CurrentIndex++

	if st.CurrentIndex >= len(st.Questions) {
		st.Status = model.QuizCompleted
		st.CompletedAt = &now
		slog.Info("quiz completed", "job_role", st.JobRole, "score", st.Score, "questions", len(st.Questions))
	}
	return correct, nil
}
