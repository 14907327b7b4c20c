// Package parse turns raw LLM replies into typed values.
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/learnmate/internal/model"
)

// DefaultDurationMinutes is used when a duration contains no digits.
const DefaultDurationMinutes = 60

var digitRun = regexp.MustCompile(`\d+`)

var recommendationFields = []string{"title", "type", "duration", "url", "image_url"}

var quizFields = []string{"question", "options", "correct_answer"}

// DurationMinutes returns the first run of digits in s, or DefaultDurationMinutes.
func DurationMinutes(s string) int {
	m := digitRun.FindString(s)
	if m == "" {
		return DefaultDurationMinutes
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return DefaultDurationMinutes
	}
	return n
}

// Recommendations decodes the JSON array that starts at the first '[' of raw.
// Any element missing a field fails the whole batch.
func Recommendations(raw string) ([]model.StudyItem, error) {
	start := strings.IndexByte(raw, '[')
	if start < 0 {
		return nil, model.ErrNoJSONFound
	}

	var elems []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:]), &elems); err != nil {
		return nil, &model.MalformedJSONError{Err: err}
	}

	items := make([]model.StudyItem, 0, len(elems))
	for i, e := range elems {
		if err := requireFields(i, e, recommendationFields); err != nil {
			return nil, err
		}

		var it model.StudyItem
		var typ string
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"title", &it.Title},
			{"type", &typ},
			{"url", &it.URL},
			{"image_url", &it.ImageURL},
		} {
			s, err := stringField(i, f.name, e[f.name])
			if err != nil {
				return nil, err
			}
			*f.dst = s
		}
		it.Type = model.ParseResourceType(typ)
		it.DurationMinutes = DurationMinutes(scalarText(e["duration"]))
		items = append(items, it)
	}
	return items, nil
}

// Quiz decodes a reply that is expected to be nothing but a JSON array of questions.
func Quiz(raw string) ([]model.QuizQuestion, error) {
	var elems []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, &model.MalformedJSONError{Err: err}
	}
	if len(elems) == 0 {
		return nil, model.ErrNoQuestions
	}

	questions := make([]model.QuizQuestion, 0, len(elems))
	for i, e := range elems {
		if err := requireFields(i, e, quizFields); err != nil {
			return nil, err
		}

		var q model.QuizQuestion
		var err error
		if q.Text, err = stringField(i, "question", e["question"]); err != nil {
			return nil, err
		}
		if q.CorrectAnswer, err = stringField(i, "correct_answer", e["correct_answer"]); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(e["options"], &q.Options); err != nil {
			return nil, &model.InvalidFieldError{Index: i, Field: "options", Reason: "not a list of strings"}
		}
		if len(q.Options) != 4 {
			return nil, &model.InvalidFieldError{
				Index:  i,
				Field:  "options",
				Reason: fmt.Sprintf("want 4 options, got %d", len(q.Options)),
			}
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Analysis normalizes a free-text report: markdown heading markers become bold markers.
func Analysis(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "###", "**")
	return strings.ReplaceAll(s, "##", "**")
}

func requireFields(i int, e map[string]json.RawMessage, fields []string) error {
	for _, f := range fields {
		v, ok := e[f]
		if !ok || isNull(v) {
			return &model.MissingFieldError{Index: i, Field: f}
		}
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func stringField(i int, name string, v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &model.InvalidFieldError{Index: i, Field: name, Reason: "not a string"}
	}
	return s, nil
}

// scalarText returns a JSON string's contents, or the literal text of any other value.
func scalarText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}
