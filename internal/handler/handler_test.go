package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/learnmate/internal/i18n"
	"github.com/pavelanni/learnmate/internal/llm"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/planner"
	"github.com/pavelanni/learnmate/internal/quiz"
	"github.com/pavelanni/learnmate/internal/resume"
	"github.com/pavelanni/learnmate/internal/store"
)

const (
	quizReply = `[
		{"question": "What does CPU stand for?", "options": ["Central Processing Unit", "Core Power Unit", "Compute Process Utility", "Central Program Unit"], "correct_answer": "Central Processing Unit"},
		{"question": "Which is a NoSQL database?", "options": ["PostgreSQL", "MongoDB", "SQLite", "MySQL"], "correct_answer": "MongoDB"}
	]`
	recReply = `Here you go:
	[
		{"title": "Intro video", "type": "YouTube video", "duration": "20 minutes", "url": "https://example.com/v", "image_url": "https://example.com/v.png"},
		{"title": "Deep article", "type": "article", "duration": "45", "url": "https://example.com/a", "image_url": "https://example.com/a.png"},
		{"title": "Full course", "type": "course", "duration": "about 3 hours", "url": "https://example.com/c", "image_url": "https://example.com/c.png"}
	]`
)

// fakeLLM answers each kind of prompt with a canned reply.
type fakeLLM struct{}

func (fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Generate a quiz"):
		return quizReply, nil
	case strings.Contains(prompt, "- Subject:"):
		return recReply, nil
	case strings.Contains(prompt, "has applied for the job role"):
		return "**Missing skills:** Terraform", nil
	default:
		return "Good answer.", nil
	}
}

type testApp struct {
	srv    *httptest.Server
	client *http.Client
	store  *store.Store
	h      *Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWith(t, fakeLLM{})
}

func newTestAppWith(t *testing.T, c llm.Completer) *testApp {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h, err := New(s, planner.New(c, 3), resume.NewAnalyzer(c), quiz.New(c, 2), model.AppConfig{
		MaxSubjects:    3,
		MaxUploadBytes: 1 << 20,
		QuizQuestions:  2,
		SessionTTL:     time.Hour,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testApp{srv: srv, client: &http.Client{Jar: jar}, store: s, h: h}
}

func (a *testApp) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return readBody(t, resp)
}

func (a *testApp) csrfToken(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(a.srv.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie; GET a page first")
	return ""
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	form.Set("csrf_token", a.csrfToken(t))
	resp, err := a.client.PostForm(a.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestPages(t *testing.T) {
	app := newTestApp(t)
	for _, p := range []string{"/", "/about", "/planner", "/resume", "/quiz"} {
		code, body := app.get(t, p)
		if code != http.StatusOK {
			t.Errorf("GET %s = %d", p, code)
		}
		if !strings.Contains(body, "LearnMate.ai") {
			t.Errorf("GET %s: missing title", p)
		}
	}
	sessions, err := app.store.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected one browser session across requests, got %d", len(sessions))
	}
}

func TestSessionCookieSurvivesCleanup(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/")
	sessions, err := app.store.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions = %v, %v", sessions, err)
	}
	id := sessions[0].ID

	if n, err := app.h.CleanupSessions(time.Now().Add(time.Minute)); err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}

	app.get(t, "/")
	sess, err := app.store.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil {
		t.Fatal("session row not recreated for existing cookie")
	}
}

func TestCleanupForgetsQuizLocks(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/quiz")
	app.post(t, "/quiz/start", url.Values{"job_role": {"SRE"}, "difficulty": {"easy"}})

	sessions, err := app.store.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions = %v, %v", sessions, err)
	}
	id := sessions[0].ID
	if _, ok := app.h.quizLocks.Load(id); !ok {
		t.Fatal("quiz start should register a lock for the session")
	}

	// Nothing is idle yet.
	if n, err := app.h.CleanupSessions(time.Now().Add(-time.Hour)); err != nil || n != 0 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if _, ok := app.h.quizLocks.Load(id); !ok {
		t.Error("lock of a live session was dropped")
	}

	if n, err := app.h.CleanupSessions(time.Now().Add(time.Minute)); err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if _, ok := app.h.quizLocks.Load(id); ok {
		t.Error("lock of a removed session is still held")
	}
}

func TestCSRFRequired(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/planner")
	resp, err := app.client.PostForm(app.srv.URL+"/planner", url.Values{"subject": {"Math"}})
	if err != nil {
		t.Fatal(err)
	}
	code, _ := readBody(t, resp)
	if code != http.StatusForbidden {
		t.Errorf("POST without token = %d, want 403", code)
	}
}

func TestPlanner(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/planner")

	exam := time.Now().AddDate(0, 0, 30).Format(examDateLayout)
	code, body := app.post(t, "/planner", url.Values{
		"subject":   {"Calculus", "History"},
		"level":     {"beginner", "advanced"},
		"exam_date": {exam, exam},
	})
	if code != http.StatusOK {
		t.Fatalf("POST /planner = %d\n%s", code, body)
	}
	for _, want := range []string{"Intro video", "📺", "📄", "🎓", "20 minutes | video", "More info", "Total study time: 136 minutes"} {
		if !strings.Contains(body, want) {
			t.Errorf("planner page missing %q", want)
		}
	}

	// The schedule survives a reload.
	_, body = app.get(t, "/planner")
	if strings.Count(body, "Deep article") != 2 {
		t.Errorf("expected 2 stored article cards after reload")
	}
}

// flakyLLM fails recommendation prompts for one subject.
type flakyLLM struct {
	fakeLLM
	failSubject string
}

func (f flakyLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "- Subject: "+f.failSubject+"\n") {
		return "", &model.TransportError{Status: http.StatusServiceUnavailable, Message: "overloaded"}
	}
	return f.fakeLLM.Complete(ctx, prompt)
}

func TestPlannerPartialAndTotalFailure(t *testing.T) {
	app := newTestAppWith(t, flakyLLM{failSubject: "Physics"})
	app.get(t, "/planner")
	exam := time.Now().AddDate(0, 0, 10).Format(examDateLayout)

	code, body := app.post(t, "/planner", url.Values{
		"subject":   {"Math", "Physics"},
		"level":     {"beginner", "beginner"},
		"exam_date": {exam, exam},
	})
	if code != http.StatusOK {
		t.Fatalf("partial failure = %d, want 200", code)
	}
	if !strings.Contains(body, "No recommendations for Physics") {
		t.Error("missing warning for the failed subject")
	}
	sessions, err := app.store.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions = %v, %v", sessions, err)
	}
	id := sessions[0].ID
	sched, err := app.store.GetSchedule(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sched.Items) != 3 {
		t.Fatalf("stored %d items, want 3", len(sched.Items))
	}
	for _, it := range sched.Items {
		if it.Subject != "Math" {
			t.Errorf("stored item for %q, want only Math", it.Subject)
		}
	}

	// Every subject fails: the Math schedule stays.
	code, body = app.post(t, "/planner", url.Values{
		"subject":   {"Physics"},
		"level":     {"advanced"},
		"exam_date": {exam},
	})
	if code != http.StatusBadGateway {
		t.Errorf("total failure = %d, want 502", code)
	}
	if !strings.Contains(body, "No recommendations for Physics") || !strings.Contains(body, "Deep article") {
		t.Error("total failure should show the warning and the previous schedule")
	}
	sched, err = app.store.GetSchedule(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sched.Items) != 3 || sched.Items[0].Subject != "Math" {
		t.Errorf("previous schedule replaced: %+v", sched.Items)
	}
}

func TestPlannerValidation(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/planner")

	tests := []struct {
		name string
		form url.Values
	}{
		{"past exam", url.Values{"subject": {"Art"}, "level": {"beginner"}, "exam_date": {"2000-01-01"}}},
		{"bad date", url.Values{"subject": {"Art"}, "level": {"beginner"}, "exam_date": {"soon"}}},
		{"too many", url.Values{
			"subject":   {"A", "B", "C", "D"},
			"level":     {"beginner", "beginner", "beginner", "beginner"},
			"exam_date": {"2099-01-01", "2099-01-01", "2099-01-01", "2099-01-01"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := app.post(t, "/planner", tt.form)
			if code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", code)
			}
			if !strings.Contains(body, "Please check your input") {
				t.Error("missing validation message")
			}
		})
	}
}

func TestQuizFlow(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/quiz")

	code, body := app.post(t, "/quiz/start", url.Values{"job_role": {"Backend Engineer"}, "difficulty": {"easy"}})
	if code != http.StatusOK {
		t.Fatalf("start = %d\n%s", code, body)
	}
	if !strings.Contains(body, "Question 1 of 2") || !strings.Contains(body, "What does CPU stand for?") {
		t.Fatalf("first question not shown:\n%s", body)
	}

	_, body = app.post(t, "/quiz/answer", url.Values{"index": {"0"}, "answer": {"Central Processing Unit"}})
	if !strings.Contains(body, "Question 2 of 2") || !strings.Contains(body, "Good answer.") {
		t.Fatalf("second question not shown:\n%s", body)
	}

	// Replaying the first form is ignored.
	_, body = app.post(t, "/quiz/answer", url.Values{"index": {"0"}, "answer": {"MongoDB"}})
	if !strings.Contains(body, "Question 2 of 2") {
		t.Fatalf("stale answer moved the quiz:\n%s", body)
	}

	_, body = app.post(t, "/quiz/answer", url.Values{"index": {"1"}, "answer": {"PostgreSQL"}})
	if !strings.Contains(body, "Quiz completed!") || !strings.Contains(body, "You scored 1 out of 2.") {
		t.Fatalf("completion not shown:\n%s", body)
	}

	code, _ = app.post(t, "/quiz/answer", url.Values{"index": {"2"}, "answer": {"MongoDB"}})
	if code != http.StatusConflict {
		t.Errorf("answer after completion = %d, want 409", code)
	}

	_, body = app.post(t, "/quiz/reset", url.Values{})
	if strings.Contains(body, "Quiz completed!") || !strings.Contains(body, "Start quiz") {
		t.Errorf("reset did not clear the quiz")
	}
}

func TestQuizStartValidation(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/quiz")
	code, body := app.post(t, "/quiz/start", url.Values{"job_role": {""}, "difficulty": {"medium"}})
	if code != http.StatusBadRequest || !strings.Contains(body, "Please check your input") {
		t.Errorf("code = %d", code)
	}
}

func docx(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`},
		{"word/document.xml", `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
			text + `</w:t></w:r></w:p></w:body></w:document>`},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(p.body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (a *testApp) upload(t *testing.T, filename string, content []byte, jobRole string) (int, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("csrf_token", a.csrfToken(t))
	_ = mw.WriteField("job_role", jobRole)
	fw, err := mw.CreateFormFile("resume", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := a.client.Post(a.srv.URL+"/resume", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /resume: %v", err)
	}
	return readBody(t, resp)
}

func TestResumeUpload(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/resume")

	code, body := app.upload(t, "cv.docx", docx(t, "Jane Doe, Go developer"), "Platform Engineer")
	if code != http.StatusOK {
		t.Fatalf("upload = %d\n%s", code, body)
	}
	if !strings.Contains(body, "<strong>Missing skills:</strong>") {
		t.Errorf("analysis not rendered as markdown:\n%s", body)
	}
	if !strings.Contains(body, "Analysis for Platform Engineer (cv.docx)") {
		t.Error("analysis heading missing")
	}

	// The latest analysis is shown on the next visit.
	_, body = app.get(t, "/resume")
	if !strings.Contains(body, "Missing skills:") {
		t.Error("stored analysis not shown")
	}
}

func TestResumeUploadErrors(t *testing.T) {
	app := newTestApp(t)
	app.get(t, "/resume")

	code, body := app.upload(t, "cv.txt", []byte("plain text"), "SRE")
	if code != http.StatusUnsupportedMediaType || !strings.Contains(body, "Unsupported file format") {
		t.Errorf("txt upload = %d", code)
	}

	code, body = app.upload(t, "cv.pdf", []byte("%PDF-1.4 truncated"), "SRE")
	if code != http.StatusUnprocessableEntity || !strings.Contains(body, "Could not read text from this file") {
		t.Errorf("corrupt pdf upload = %d", code)
	}
	if strings.Contains(body, "Unsupported file format") {
		t.Error("corrupt pdf reported as unsupported format")
	}

	code, _ = app.upload(t, "huge.pdf", bytes.Repeat([]byte("x"), 3<<19), "SRE")
	if code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload = %d, want 413", code)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&model.ValidationError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{&model.TransportError{Status: 503}, http.StatusBadGateway},
		{model.ErrNoJSONFound, http.StatusBadGateway},
		{&model.MissingFieldError{Field: "url"}, http.StatusBadGateway},
		{model.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{fmt.Errorf("%w: open pdf: %w", model.ErrExtractFailed, errors.New("eof")), http.StatusUnprocessableEntity},
		{model.ErrQuizInProgress, http.StatusConflict},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
