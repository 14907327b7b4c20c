package model

import (
	"context"
	"strings"
	"time"
)

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

type sessionCtxKey struct{}

// ContextWithSessionID stores the browser session ID in context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, id)
}

// SessionIDFromContext retrieves the browser session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

// ResourceType is the kind of a recommended study resource.
type ResourceType string

const (
	ResourceVideo   ResourceType = "video"
	ResourceArticle ResourceType = "article"
	ResourceCourse  ResourceType = "course"
	ResourceOther   ResourceType = "other"
)

// ParseResourceType maps the free-form type reported by the LLM
// ("YouTube video", "Online Course", ...) onto a ResourceType.
func ParseResourceType(s string) ResourceType {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "video"):
		return ResourceVideo
	case strings.Contains(s, "article"):
		return ResourceArticle
	case strings.Contains(s, "course"):
		return ResourceCourse
	default:
		return ResourceOther
	}
}

// PrepLevel is the student's self-assessed preparation level for a subject.
type PrepLevel string

const (
	LevelBeginner     PrepLevel = "beginner"
	LevelIntermediate PrepLevel = "intermediate"
	LevelAdvanced     PrepLevel = "advanced"
)

// PrepLevels lists the levels in the order they are offered in the UI.
var PrepLevels = []PrepLevel{LevelBeginner, LevelIntermediate, LevelAdvanced}

// Valid reports whether l is one of the known levels.
func (l PrepLevel) Valid() bool {
	for _, v := range PrepLevels {
		if l == v {
			return true
		}
	}
	return false
}

// Difficulty represents quiz difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the difficulties in the order they are offered in the UI.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	for _, v := range Difficulties {
		if d == v {
			return true
		}
	}
	return false
}

// StudyItem is one recommended study resource in a schedule.
type StudyItem struct {
	Subject         string       `json:"subject"`
	Title           string       `json:"title"`
	Type            ResourceType `json:"type"`
	DurationMinutes int          `json:"duration_minutes"`
	URL             string       `json:"url"`
	ImageURL        string       `json:"image_url"`
}

// Schedule is the combined list of study items for all requested subjects.
type Schedule struct {
	Items       []StudyItem `json:"items"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// TotalMinutes sums the duration of every item.
func (s Schedule) TotalMinutes() int {
	total := 0
	for _, it := range s.Items {
		total += it.DurationMinutes
	}
	return total
}

// SubjectRequest is one row of the study planner form.
type SubjectRequest struct {
	Subject  string
	Level    PrepLevel
	ExamDate time.Time
}

// QuizQuestion is a multiple-choice question generated by the LLM.
type QuizQuestion struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// TranscriptRole identifies who produced a transcript entry.
type TranscriptRole string

const (
	RoleUser TranscriptRole = "user"
	RoleAI   TranscriptRole = "ai"
)

// TranscriptEntry is a single turn in the quiz conversation.
type TranscriptEntry struct {
	Role      TranscriptRole `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// QuizStatus represents the state of a quiz session.
type QuizStatus string

const (
	QuizIdle              QuizStatus = "idle"
	QuizAwaitingQuestions QuizStatus = "awaiting_questions"
	QuizInProgress        QuizStatus = "in_progress"
	QuizCompleted         QuizStatus = "completed"
)

// QuizState is the progress of one quiz within a browser session.
type QuizState struct {
	JobRole      string            `json:"job_role"`
	Difficulty   Difficulty        `json:"difficulty"`
	Questions    []QuizQuestion    `json:"questions"`
	CurrentIndex int               `json:"current_index"`
	Score        int               `json:"score"`
	Transcript   []TranscriptEntry `json:"transcript"`
	Status       QuizStatus        `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// NewQuizState returns an idle quiz state.
func NewQuizState() *QuizState {
	return &QuizState{Status: QuizIdle}
}

// Active reports whether the quiz is accepting answers.
func (q *QuizState) Active() bool {
	return q.Status == QuizInProgress
}

// DocumentFormat is the résumé file format, resolved once at upload time.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatWord DocumentFormat = "docx"
)

// ResumeAnalysis is a stored résumé analysis result.
type ResumeAnalysis struct {
	ID        int64          `json:"id"`
	JobRole   string         `json:"job_role"`
	FileName  string         `json:"file_name"`
	Format    DocumentFormat `json:"format"`
	Analysis  string         `json:"analysis"`
	CreatedAt time.Time      `json:"created_at"`
}

// BrowserSession identifies an anonymous visitor.
type BrowserSession struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath           string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies      bool   // Set Secure flag on cookies (disable for local dev)
	MaxSubjects        int
	MaxUploadBytes     int64
	QuizQuestions      int
	RecommendationsPer int           // resources requested per subject
	SessionTTL         time.Duration // browser session cookie lifetime; 0 means a session cookie
}
