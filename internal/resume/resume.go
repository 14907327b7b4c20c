// Package resume extracts text from uploaded résumés and asks an LLM to review them.
package resume

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pavelanni/learnmate/internal/llm"
	"github.com/pavelanni/learnmate/internal/llm/prompts"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/parse"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DetectFormat resolves the document format from the upload's MIME type,
// falling back to the file extension.
func DetectFormat(contentType, filename string) (model.DocumentFormat, error) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case mimePDF:
			return model.FormatPDF, nil
		case mimeDOCX:
			return model.FormatWord, nil
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return model.FormatPDF, nil
	case ".docx":
		return model.FormatWord, nil
	}
	return "", model.ErrUnsupportedFormat
}

// ExtractorFor returns the text extractor for format.
func ExtractorFor(format model.DocumentFormat) (Extractor, error) {
	switch format {
	case model.FormatPDF:
		return PDFExtractor{}, nil
	case model.FormatWord:
		return WordExtractor{}, nil
	}
	return nil, model.ErrUnsupportedFormat
}

// Analyzer produces a written review of a résumé for a target job role.
type Analyzer struct {
	llm llm.Completer
}

// NewAnalyzer creates an Analyzer backed by c.
func NewAnalyzer(c llm.Completer) *Analyzer {
	return &Analyzer{llm: c}
}

// Analyze sends the résumé text and job role to the LLM and returns the
// normalized report.
func (a *Analyzer) Analyze(ctx context.Context, resumeText, jobRole string) (string, error) {
	jobRole = strings.TrimSpace(jobRole)
	if jobRole == "" {
		return "", &model.ValidationError{Field: "job_role", Reason: "job role is required"}
	}
	if strings.TrimSpace(resumeText) == "" {
		return "", &model.ValidationError{Field: "resume", Reason: "no text could be extracted from the file"}
	}

	prompt, err := prompts.ResumeAnalysis(prompts.ResumeData{JobRole: jobRole, ResumeText: resumeText})
	if err != nil {
		return "", fmt.Errorf("build resume prompt: %w", err)
	}
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	slog.Info("resume analyzed", "job_role", jobRole, "resume_chars", len(resumeText), "reply_chars", len(raw))
	return parse.Analysis(raw), nil
}
