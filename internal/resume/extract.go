package resume

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/learnmate/internal/model"
)

// Extractor pulls plain text out of a document. Failures match
// model.ErrExtractFailed.
type Extractor interface {
	Extract(r io.ReaderAt, size int64) (string, error)
}

// PDFExtractor concatenates the plain text of every page.
type PDFExtractor struct{}

func (PDFExtractor) Extract(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", model.ErrExtractFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: read pdf page %d: %w", model.ErrExtractFailed, i, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// WordExtractor reads the body text of a .docx file with docconv.
type WordExtractor struct{}

// Parts docconv needs to find the document body.
var wordParts = []string{"[Content_Types].xml", "word/document.xml"}

func (WordExtractor) Extract(r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %w", model.ErrExtractFailed, err)
	}
	for _, part := range wordParts {
		f, err := zr.Open(part)
		if err != nil {
			return "", fmt.Errorf("%w: docx part %s: %w", model.ErrExtractFailed, part, err)
		}
		f.Close()
	}

	text, _, err := docconv.ConvertDocx(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", fmt.Errorf("%w: convert docx: %w", model.ErrExtractFailed, err)
	}
	return strings.TrimSpace(text), nil
}
