// Package planner builds a study schedule from per-subject LLM recommendations.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/learnmate/internal/llm"
	"github.com/pavelanni/learnmate/internal/llm/prompts"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/parse"
)

// SubjectFailure records a subject whose recommendations could not be obtained.
type SubjectFailure struct {
	Subject string
	Err     error
}

// Assembler requests recommendations subject by subject and concatenates them.
type Assembler struct {
	llm   llm.Completer
	count int
	now   func() time.Time
}

// New creates an Assembler asking for count resources per subject.
func New(c llm.Completer, count int) *Assembler {
	if count <= 0 {
		count = 3
	}
	return &Assembler{llm: c, count: count, now: time.Now}
}

// DaysLeft returns the number of calendar days from today until exam.
// It is zero or negative for exams today or in the past.
func DaysLeft(exam, today time.Time) int {
	e := time.Date(exam.Year(), exam.Month(), exam.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24)
}

// Validate checks the planner form: at least one and at most maxSubjects rows, every
// subject filled in, a known level, and an exam date after today.
func Validate(reqs []model.SubjectRequest, today time.Time, maxSubjects int) error {
	if len(reqs) == 0 {
		return &model.ValidationError{Field: "subjects", Reason: "at least one subject is required"}
	}
	if maxSubjects > 0 && len(reqs) > maxSubjects {
		return &model.ValidationError{Field: "subjects", Reason: fmt.Sprintf("at most %d subjects are allowed", maxSubjects)}
	}
	for i, r := range reqs {
		if strings.TrimSpace(r.Subject) == "" {
			return &model.ValidationError{Field: fmt.Sprintf("subject[%d]", i), Reason: "subject is required"}
		}
		if !r.Level.Valid() {
			return &model.ValidationError{Field: fmt.Sprintf("level[%d]", i), Reason: "unknown preparation level"}
		}
		if DaysLeft(r.ExamDate, today) <= 0 {
			return &model.ValidationError{Field: fmt.Sprintf("exam_date[%d]", i), Reason: "exam date must be in the future"}
		}
	}
	return nil
}

// Recommend asks the LLM for study resources for a single subject.
func (a *Assembler) Recommend(ctx context.Context, subject string, level model.PrepLevel, daysLeft int) ([]model.StudyItem, error) {
	prompt, err := prompts.Recommendations(prompts.RecommendationData{
		Subject:  subject,
		Level:    level,
		DaysLeft: daysLeft,
		Count:    a.count,
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	items, err := parse.Recommendations(raw)
	if err != nil {
		return nil, fmt.Errorf("parse recommendations for %q: %w", subject, err)
	}
	for i := range items {
		items[i].Subject = subject
	}
	return items, nil
}

// Assemble builds the combined schedule in input order. A subject whose call
// or reply fails contributes nothing and is reported in the failures; there
// are no retries.
func (a *Assembler) Assemble(ctx context.Context, reqs []model.SubjectRequest) (model.Schedule, []SubjectFailure) {
	today := a.now()
	sched := model.Schedule{GeneratedAt: today}
	var failures []SubjectFailure

	for _, r := range reqs {
		days := DaysLeft(r.ExamDate, today)
		start := time.Now()
		items, err := a.Recommend(ctx, r.Subject, r.Level, days)
		if err != nil {
			slog.Warn("recommendations failed",
				"subject", r.Subject, "days_left", days, "elapsed", time.Since(start), "error", err)
			failures = append(failures, SubjectFailure{Subject: r.Subject, Err: err})
			continue
		}
		slog.Info("recommendations received",
			"subject", r.Subject, "days_left", days, "items", len(items), "elapsed", time.Since(start))
		sched.Items = append(sched.Items, items...)
	}

	return sched, failures
}
