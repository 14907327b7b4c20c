package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"

	"github.com/pavelanni/learnmate/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// RecommendationData holds template data for study resource prompts.
type RecommendationData struct {
	Subject  string
	Level    model.PrepLevel
	DaysLeft int
	Count    int
}

// ResumeData holds template data for résumé analysis prompts.
type ResumeData struct {
	JobRole    string
	ResumeText string
}

// QuizData holds template data for quiz generation prompts.
type QuizData struct {
	JobRole    string
	Difficulty model.Difficulty
	Count      int
}

// FollowupData holds template data for the per-answer commentary prompt.
type FollowupData struct {
	Question string
	Answer   string
}

// load parses the embedded templates. It uses sync.Once to ensure templates are parsed only once.
func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.ParseFS(templateFS, "templates/*.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Recommendations builds the study resource prompt for one subject.
func Recommendations(d RecommendationData) (string, error) {
	return execute("recommendations.txt", d)
}

// ResumeAnalysis builds the skills-gap analysis prompt.
func ResumeAnalysis(d ResumeData) (string, error) {
	return execute("resume.txt", d)
}

// Quiz builds the quiz generation prompt.
func Quiz(d QuizData) (string, error) {
	return execute("quiz.txt", d)
}

// Followup builds the prompt asking for commentary on a submitted answer.
func Followup(d FollowupData) (string, error) {
	return execute("followup.txt", d)
}
