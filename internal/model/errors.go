package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNoJSONFound is returned when a structured reply contains no JSON array.
	ErrNoJSONFound = errors.New("no JSON array found in response")
	// ErrMissingField matches any *MissingFieldError.
	ErrMissingField = errors.New("missing field")
	// ErrNoQuestions is returned when the quiz reply holds no questions.
	ErrNoQuestions = errors.New("no quiz questions in response")
	// ErrUnsupportedFormat is returned for résumé files that are neither PDF nor DOCX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractFailed wraps errors from reading text out of a supported document.
	ErrExtractFailed = errors.New("could not read document text")
	// ErrQuizNotActive is returned when an answer is submitted outside a running quiz.
	ErrQuizNotActive = errors.New("quiz is not active")
	// ErrQuizInProgress is returned when a quiz is started while another one runs.
	ErrQuizInProgress = errors.New("quiz already in progress")
)

// TransportError reports a failed call to an LLM backend.
type TransportError struct {
	Status  int // HTTP status, 0 when unknown
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm transport error (status %d): %s", e.Status, e.Message)
	}
	return "llm transport error: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedJSONError carries the decoder error for a reply that is not valid JSON.
type MalformedJSONError struct {
	Err error
}

func (e *MalformedJSONError) Error() string {
	return "malformed JSON in response: " + e.Err.Error()
}

func (e *MalformedJSONError) Unwrap() error { return e.Err }

// MissingFieldError reports a required field absent from element Index.
type MissingFieldError struct {
	Index int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("element %d: missing field %q", e.Index, e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// InvalidFieldError reports a field that is present but has the wrong shape.
type InvalidFieldError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("element %d: invalid field %q: %s", e.Index, e.Field, e.Reason)
}

// ValidationError reports bad user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}
