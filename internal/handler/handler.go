package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/learnmate/internal/handler/views"
	appI18n "github.com/pavelanni/learnmate/internal/i18n"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/planner"
	"github.com/pavelanni/learnmate/internal/quiz"
	"github.com/pavelanni/learnmate/internal/resume"
	"github.com/pavelanni/learnmate/internal/store"
)

const examDateLayout = "2006-01-02"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	planner  *planner.Assembler
	analyzer *resume.Analyzer
	quiz     *quiz.Service
	config   model.AppConfig

	// quizLocks serializes quiz mutations per browser session.
	quizLocks sync.Map
}

// New creates a new Handler.
func New(s *store.Store, p *planner.Assembler, a *resume.Analyzer, q *quiz.Service, cfg model.AppConfig) (*Handler, error) {
	if s == nil || p == nil || a == nil || q == nil {
		return nil, errors.New("handler: store, planner, analyzer and quiz service are required")
	}
	return &Handler{store: s, planner: p, analyzer: a, quiz: q, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleHome)
		r.Get("/about", h.handleAbout)
		r.Get("/planner", h.handlePlannerPage)
		r.Post("/planner", h.handlePlan)
		r.Get("/resume", h.handleResumePage)
		r.Post("/resume", h.handleAnalyzeResume)
		r.Get("/quiz", h.handleQuizPage)
		r.Post("/quiz/start", h.handleStartQuiz)
		r.Post("/quiz/answer", h.handleAnswer)
		r.Post("/quiz/reset", h.handleResetQuiz)
	})
}

// BasePathMiddleware makes the deployment base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute application path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.HomePage())
}

func (h *Handler) handleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.AboutPage())
}

// --- Study planner ---

func (h *Handler) plannerData(sessionID string) (views.PlannerData, error) {
	sched, err := h.store.GetSchedule(sessionID)
	if err != nil {
		return views.PlannerData{}, err
	}
	return views.PlannerData{
		Rows:        []views.PlannerRow{{Level: model.LevelBeginner}},
		Levels:      model.PrepLevels,
		MinDate:     time.Now().AddDate(0, 0, 1).Format(examDateLayout),
		MaxSubjects: h.config.MaxSubjects,
		Schedule:    sched,
	}, nil
}

func (h *Handler) handlePlannerPage(w http.ResponseWriter, r *http.Request) {
	data, err := h.plannerData(model.SessionIDFromContext(r.Context()))
	if err != nil {
		slog.Error("failed to load schedule", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, views.PlannerPage(data))
}

// parsePlannerForm reads the repeated subject/level/exam_date fields. Rows
// are returned even when invalid so the form can be redisplayed.
func parsePlannerForm(r *http.Request) ([]views.PlannerRow, []model.SubjectRequest, error) {
	subjects := r.PostForm["subject"]
	levels := r.PostForm["level"]
	dates := r.PostForm["exam_date"]

	n := max(len(subjects), len(levels), len(dates))
	rows := make([]views.PlannerRow, n)
	reqs := make([]model.SubjectRequest, 0, n)
	var firstErr error
	for i := range n {
		row := views.PlannerRow{
			Subject:  strings.TrimSpace(at(subjects, i)),
			Level:    model.PrepLevel(at(levels, i)),
			ExamDate: at(dates, i),
		}
		rows[i] = row

		exam, err := time.ParseInLocation(examDateLayout, row.ExamDate, time.UTC)
		if err != nil && firstErr == nil {
			firstErr = &model.ValidationError{Field: "exam_date[" + strconv.Itoa(i) + "]", Reason: "exam date must be YYYY-MM-DD"}
		}
		reqs = append(reqs, model.SubjectRequest{Subject: row.Subject, Level: row.Level, ExamDate: exam})
	}
	return rows, reqs, firstErr
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return vals[i]
	}
	return ""
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := model.SessionIDFromContext(ctx)

	data, err := h.plannerData(sessionID)
	if err != nil {
		slog.Error("failed to load schedule", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows, reqs, err := parsePlannerForm(r)
	if len(rows) > 0 {
		data.Rows = rows
	}
	if err == nil {
		err = planner.Validate(reqs, time.Now(), h.config.MaxSubjects)
	}
	if err != nil {
		data.Error = errorMessage(ctx, err)
		h.render(w, r, errorStatus(err), views.PlannerPage(data))
		return
	}

	sched, failures := h.planner.Assemble(ctx, reqs)
	for _, f := range failures {
		data.Failures = append(data.Failures, views.SubjectFailure{Subject: f.Subject, Reason: errorMessage(ctx, f.Err)})
	}

	// A run where every subject failed keeps the previous schedule.
	if len(failures) < len(reqs) {
		if err := h.store.ReplaceSchedule(sessionID, sched); err != nil {
			slog.Error("failed to store schedule", "session", sessionID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		data.Schedule = sched
	}

	status := http.StatusOK
	if len(failures) == len(reqs) {
		status = errorStatus(failures[0].Err)
	}
	h.render(w, r, status, views.PlannerPage(data))
}

// --- Résumé analyzer ---

func (h *Handler) resumeData(sessionID string) (views.ResumeData, error) {
	latest, err := h.store.LatestAnalysis(sessionID)
	if err != nil {
		return views.ResumeData{}, err
	}
	d := views.ResumeData{MaxUploadMB: h.config.MaxUploadBytes >> 20, Analysis: latest}
	if latest != nil {
		d.JobRole = latest.JobRole
	}
	return d, nil
}

func (h *Handler) handleResumePage(w http.ResponseWriter, r *http.Request) {
	data, err := h.resumeData(model.SessionIDFromContext(r.Context()))
	if err != nil {
		slog.Error("failed to load analysis", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, views.ResumePage(data))
}

func (h *Handler) handleAnalyzeResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := model.SessionIDFromContext(ctx)

	data, err := h.resumeData(sessionID)
	if err != nil {
		slog.Error("failed to load analysis", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	jobRole := strings.TrimSpace(r.FormValue("job_role"))
	data.JobRole = jobRole

	fail := func(status int, msg string) {
		data.Error = msg
		h.render(w, r, status, views.ResumePage(data))
	}

	file, header, err := r.FormFile("resume")
	if err != nil {
		fail(http.StatusBadRequest, appI18n.T(ctx, "ErrNoFile"))
		return
	}
	defer file.Close()
	if h.config.MaxUploadBytes > 0 && header.Size > h.config.MaxUploadBytes {
		fail(http.StatusRequestEntityTooLarge, appI18n.T(ctx, "ErrFileTooLarge"))
		return
	}

	format, err := resume.DetectFormat(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		fail(errorStatus(err), errorMessage(ctx, err))
		return
	}
	extractor, err := resume.ExtractorFor(format)
	if err != nil {
		fail(errorStatus(err), errorMessage(ctx, err))
		return
	}
	text, err := extractor.Extract(file, header.Size)
	if err != nil {
		slog.Warn("resume extraction failed", "file", header.Filename, "format", format, "error", err)
		fail(errorStatus(err), errorMessage(ctx, err))
		return
	}

	analysis, err := h.analyzer.Analyze(ctx, text, jobRole)
	if err != nil {
		slog.Warn("resume analysis failed", "session", sessionID, "error", err)
		fail(errorStatus(err), errorMessage(ctx, err))
		return
	}

	stored := model.ResumeAnalysis{
		JobRole:   jobRole,
		FileName:  header.Filename,
		Format:    format,
		Analysis:  analysis,
		CreatedAt: time.Now(),
	}
	if stored.ID, err = h.store.AddAnalysis(sessionID, stored); err != nil {
		slog.Error("failed to store analysis", "session", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data.Analysis = &stored
	h.render(w, r, http.StatusOK, views.ResumePage(data))
}

// --- Quiz ---

// CleanupSessions deletes sessions idle since before cutoff and forgets their
// quiz locks. It returns the number of sessions removed.
func (h *Handler) CleanupSessions(cutoff time.Time) (int, error) {
	ids, err := h.store.CleanupSessionsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		h.quizLocks.Delete(id)
	}
	return len(ids), nil
}

func (h *Handler) lockQuiz(sessionID string) func() {
	v, _ := h.quizLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (h *Handler) loadQuiz(sessionID string) (*model.QuizState, error) {
	st, err := h.store.GetQuizState(sessionID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = model.NewQuizState()
	}
	return st, nil
}

func (h *Handler) quizData(st *model.QuizState) views.QuizData {
	d := views.QuizData{
		State:        st,
		Difficulties: model.Difficulties,
		NumQuestions: h.config.QuizQuestions,
		JobRole:      st.JobRole,
		Difficulty:   st.Difficulty,
	}
	if d.Difficulty == "" {
		d.Difficulty = model.DifficultyMedium
	}
	if q, ok := quiz.CurrentQuestion(st); ok {
		d.Question = &q
	}
	return d
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadQuiz(model.SessionIDFromContext(r.Context()))
	if err != nil {
		slog.Error("failed to load quiz", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, views.QuizPage(h.quizData(st)))
}

func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := model.SessionIDFromContext(ctx)
	defer h.lockQuiz(sessionID)()

	st, err := h.loadQuiz(sessionID)
	if err != nil {
		slog.Error("failed to load quiz", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	jobRole := r.FormValue("job_role")
	difficulty := model.Difficulty(r.FormValue("difficulty"))
	err = h.quiz.Start(ctx, st, jobRole, difficulty)

	var ve *model.ValidationError
	if err != nil && (errors.As(err, &ve) || errors.Is(err, model.ErrQuizInProgress)) {
		// The state was not touched.
		d := h.quizData(st)
		if !st.Active() {
			d.JobRole, d.Difficulty = jobRole, difficulty
		}
		d.Error = errorMessage(ctx, err)
		h.render(w, r, errorStatus(err), views.QuizPage(d))
		return
	}

	if saveErr := h.store.SaveQuizState(sessionID, st); saveErr != nil {
		slog.Error("failed to save quiz", "session", sessionID, "error", saveErr)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err != nil {
		d := h.quizData(st)
		d.JobRole, d.Difficulty = jobRole, difficulty
		d.Error = errorMessage(ctx, err)
		h.render(w, r, errorStatus(err), views.QuizPage(d))
		return
	}
	http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := model.SessionIDFromContext(ctx)
	defer h.lockQuiz(sessionID)()

	st, err := h.loadQuiz(sessionID)
	if err != nil {
		slog.Error("failed to load quiz", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// A resubmitted or outdated form must not answer a different question.
	if idx, err := strconv.Atoi(r.FormValue("index")); err == nil && idx != st.CurrentIndex {
		slog.Info("ignoring stale quiz answer", "session", sessionID, "form_index", idx, "current_index", st.CurrentIndex)
		http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
		return
	}

	correct, err := h.quiz.Submit(ctx, st, r.FormValue("answer"))
	if err != nil {
		d := h.quizData(st)
		d.Error = errorMessage(ctx, err)
		h.render(w, r, errorStatus(err), views.QuizPage(d))
		return
	}
	if err := h.store.SaveQuizState(sessionID, st); err != nil {
		slog.Error("failed to save quiz", "session", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Debug("quiz answer recorded", "session", sessionID, "correct", correct, "index", st.CurrentIndex)
	http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
}

func (h *Handler) handleResetQuiz(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionIDFromContext(r.Context())
	defer h.lockQuiz(sessionID)()

	if err := h.store.DeleteQuizState(sessionID); err != nil {
		slog.Error("failed to reset quiz", "session", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
}

// --- Errors ---

// errorMessage turns a domain error into a localized message for the user.
func errorMessage(ctx context.Context, err error) string {
	var (
		ve *model.ValidationError
		te *model.TransportError
		me *model.MalformedJSONError
		ie *model.InvalidFieldError
	)
	switch {
	case errors.As(err, &ve):
		return appI18n.Td(ctx, "ErrValidation", map[string]any{"Field": ve.Field, "Reason": ve.Reason})
	case errors.As(err, &te):
		return appI18n.T(ctx, "ErrLLMUnavailable")
	case errors.Is(err, model.ErrNoQuestions):
		return appI18n.T(ctx, "ErrNoQuestions")
	case errors.As(err, &me), errors.As(err, &ie),
		errors.Is(err, model.ErrNoJSONFound), errors.Is(err, model.ErrMissingField):
		return appI18n.T(ctx, "ErrBadLLMReply")
	case errors.Is(err, model.ErrUnsupportedFormat):
		return appI18n.T(ctx, "ErrUnsupportedFormat")
	case errors.Is(err, model.ErrExtractFailed):
		return appI18n.T(ctx, "ErrExtractFailed")
	case errors.Is(err, model.ErrQuizInProgress):
		return appI18n.T(ctx, "ErrQuizInProgress")
	case errors.Is(err, model.ErrQuizNotActive):
		return appI18n.T(ctx, "ErrQuizNotActive")
	}
	slog.Error("unexpected error", "error", err)
	return appI18n.T(ctx, "ErrInternal")
}

func errorStatus(err error) int {
	var (
		ve *model.ValidationError
		te *model.TransportError
		me *model.MalformedJSONError
		ie *model.InvalidFieldError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrExtractFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrQuizInProgress), errors.Is(err, model.ErrQuizNotActive):
		return http.StatusConflict
	case errors.As(err, &te), errors.As(err, &me), errors.As(err, &ie),
		errors.Is(err, model.ErrNoJSONFound), errors.Is(err, model.ErrMissingField), errors.Is(err, model.ErrNoQuestions):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
