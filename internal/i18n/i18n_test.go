package i18n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "LearnMate.ai" {
		t.Errorf("T(AppTitle) = %q, want 'LearnMate.ai'", got)
	}

	got = T(ctx, "StartQuiz")
	if got != "Start quiz" {
		t.Errorf("T(StartQuiz) = %q, want 'Start quiz'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "StartQuiz")
	if got != "Начать тест" {
		t.Errorf("T(StartQuiz) = %q, want 'Начать тест'", got)
	}

	got = T(ctx, "Level_advanced")
	if got != "Продвинутый" {
		t.Errorf("T(Level_advanced) = %q, want 'Продвинутый'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuizLength", 1)
	if got1 != "The quiz has 1 question." {
		t.Errorf("Tp(QuizLength, 1) = %q", got1)
	}

	got10 := Tp(ctx, "QuizLength", 10)
	if got10 != "The quiz has 10 questions." {
		t.Errorf("Tp(QuizLength, 10) = %q", got10)
	}

	ruCtx := initLang(t, "ru")
	if got := Tp(ruCtx, "QuizLength", 5); got != "В тесте 5 вопросов." {
		t.Errorf("Tp(QuizLength, 5) ru = %q", got)
	}
	if got := Tp(ruCtx, "QuizLength", 3); got != "В тесте 3 вопроса." {
		t.Errorf("Tp(QuizLength, 3) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MinutesType", map[string]any{"Minutes": 45, "Type": "video"})
	if got != "45 minutes | video" {
		t.Errorf("Td(MinutesType) = %q, want '45 minutes | video'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestSupported(t *testing.T) {
	initLang(t, "en")
	if n := len(Supported()); n != 2 {
		t.Errorf("expected 2 supported languages, got %d", n)
	}
}

func TestAutoMiddleware(t *testing.T) {
	if err := Init(AutoLang); err != nil {
		t.Fatalf("Init(auto): %v", err)
	}
	var got string
	h := Middleware(AutoLang)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NavAbout")
	}))

	tests := []struct {
		accept string
		want   string
	}{
		{"ru-RU,ru;q=0.9,en;q=0.8", "О проекте"},
		{"de-DE", "About"},
		{"", "About"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestDefaultLanguageWithoutMiddleware(t *testing.T) {
	if err := Init("ru"); err != nil {
		t.Fatalf("Init(ru): %v", err)
	}
	if got := T(context.Background(), "NavHome"); got != "Главная" {
		t.Errorf("T(NavHome) = %q, want the bundle default 'Главная'", got)
	}
	if got := T(context.Background(), "NoSuchKey"); got != "NoSuchKey" {
		t.Errorf("missing key = %q, want the ID back", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	keys := func(name string) map[string]bool {
		data, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			t.Fatal(err)
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		out := make(map[string]bool, len(m))
		for k := range m {
			out[k] = true
		}
		return out
	}
	en, ru := keys("en.json"), keys("ru.json")
	for k := range en {
		if !ru[k] {
			t.Errorf("ru.json lacks %q", k)
		}
	}
	for k := range ru {
		if !en[k] {
			t.Errorf("en.json lacks %q", k)
		}
	}
}
