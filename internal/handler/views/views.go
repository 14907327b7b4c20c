// Package views renders the HTML pages as templ components.
package views

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	appI18n "github.com/pavelanni/learnmate/internal/i18n"
	"github.com/pavelanni/learnmate/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Linkify))

var funcs = template.FuncMap{
	"markdown": renderMarkdown,
	"icon":     resourceIcon,
	"inc":      func(i int) int { return i + 1 },
	"date":     func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}

var (
	pagesOnce sync.Once
	pages     map[string]*template.Template
	pagesErr  error
)

func loadPages() (map[string]*template.Template, error) {
	pagesOnce.Do(func() {
		pages = make(map[string]*template.Template)
		entries, err := templateFS.ReadDir("templates")
		if err != nil {
			pagesErr = err
			return
		}
		for _, e := range entries {
			name := e.Name()
			if name == "layout.html" {
				continue
			}
			t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
			if err != nil {
				pagesErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			pages[strings.TrimSuffix(name, ".html")] = t
		}
	})
	return pages, pagesErr
}

// Translator exposes the request's localizer to templates.
type Translator struct {
	ctx context.Context
}

func (l Translator) T(id string) string { return appI18n.T(l.ctx, id) }

func (l Translator) Tp(id string, n int) string { return appI18n.Tp(l.ctx, id, n) }

// Td takes template data as alternating key/value arguments.
func (l Translator) Td(id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(l.ctx, id, data)
}

// view is the root value every page template executes against.
type view struct {
	L        Translator
	BasePath string
	CSRF     string
	Active   string
	Data     any
}

// Path prefixes p with the deployment base path.
func (v view) Path(p string) string {
	return v.BasePath + p
}

func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		set, err := loadPages()
		if err != nil {
			return err
		}
		t, ok := set[name]
		if !ok {
			return fmt.Errorf("unknown page %q", name)
		}
		return t.Execute(w, view{
			L:        Translator{ctx: ctx},
			BasePath: model.BasePathFromContext(ctx),
			CSRF:     model.CSRFTokenFromContext(ctx),
			Active:   name,
			Data:     data,
		})
	})
}

func renderMarkdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		slog.Warn("markdown render failed", "error", err)
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

func resourceIcon(t model.ResourceType) string {
	switch t {
	case model.ResourceVideo:
		return "📺"
	case model.ResourceArticle:
		return "📄"
	default:
		return "🎓"
	}
}

// HomePage renders the landing page.
func HomePage() templ.Component { return page("home", nil) }

// AboutPage renders the about page.
func AboutPage() templ.Component { return page("about", nil) }

// PlannerRow is one subject row of the planner form, as submitted.
type PlannerRow struct {
	Subject  string
	Level    model.PrepLevel
	ExamDate string
}

// SubjectFailure is a subject that produced no recommendations, with a translated reason.
type SubjectFailure struct {
	Subject string
	Reason  string
}

// PlannerData feeds the planner page.
type PlannerData struct {
	Rows        []PlannerRow
	Levels      []model.PrepLevel
	MinDate     string
	MaxSubjects int
	Schedule    model.Schedule
	Failures    []SubjectFailure
	Error       string
}

// PlannerPage renders the planner form and the current schedule.
func PlannerPage(d PlannerData) templ.Component { return page("planner", d) }

// ResumeData feeds the résumé page.
type ResumeData struct {
	JobRole     string
	MaxUploadMB int64
	Analysis    *model.ResumeAnalysis
	Error       string
}

// ResumePage renders the upload form and the latest analysis.
func ResumePage(d ResumeData) templ.Component { return page("resume", d) }

// QuizData feeds the quiz page.
type QuizData struct {
	State        *model.QuizState
	Question     *model.QuizQuestion
	Difficulties []model.Difficulty
	NumQuestions int
	JobRole      string
	Difficulty   model.Difficulty
	Error        string
}

// QuizPage renders the start form, the current question or the result.
func QuizPage(d QuizData) templ.Component { return page("quiz", d) }
