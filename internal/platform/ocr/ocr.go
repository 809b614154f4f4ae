// Package ocr turns uploaded lab-report documents into plain text. PDFs are
// read for embedded text first and rasterized for optical recognition only
// when no text layer exists; images go straight to recognition after a
// grayscale pass. The package also detects a report date in the extracted
// text.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/healthvault/healthvault/internal/apperr"
)

// DefaultLanguage is the recognition language used when the upload does not
// specify one.
const DefaultLanguage = "eng"

// Engine performs optical character recognition on a single raster image.
type Engine interface {
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}

// Result is the outcome of extracting one document.
type Result struct {
	Text       string
	ReportDate *time.Time
}

// Extractor converts uploaded documents to text. A zero timeout disables the
// deadline on extraction work.
type Extractor struct {
	engine  Engine
	timeout time.Duration
}

// NewExtractor returns an Extractor backed by the given recognition engine.
func NewExtractor(engine Engine, timeout time.Duration) *Extractor {
	return &Extractor{engine: engine, timeout: timeout}
}

// Extract dispatches on content type and returns the concatenated document
// text plus the first recognizable report date, if any. Failures return an
// extraction-failed error so callers can apply their own fatality policy.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType, lang string) (*Result, error) {
	if lang == "" {
		lang = DefaultLanguage
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		var text string
		var err error
		switch {
		case contentType == "application/pdf":
			text, err = e.extractPDF(ctx, data, lang)
		case strings.HasPrefix(contentType, "image/"):
			text, err = e.extractImage(ctx, data, lang)
		default:
			err = fmt.Errorf("unsupported content type %q", contentType)
		}
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.ExtractionFailed, ctx.Err(), "text extraction timed out")
	case out := <-done:
		if out.err != nil {
			return nil, apperr.Wrap(apperr.ExtractionFailed, out.err, "text extraction failed")
		}
		res := &Result{Text: out.text}
		if dt, ok := ParseReportDate(out.text); ok {
			res.ReportDate = &dt
		}
		return res, nil
	}
}

// joinPages concatenates per-page text with numbered page-boundary markers.
func joinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for i, p := range pages {
		parts = append(parts, fmt.Sprintf("--- PAGE %d ---\n%s", i+1, p))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
