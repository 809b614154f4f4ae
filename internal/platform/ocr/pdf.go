package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// extractPDF reads embedded text from each page. When the document carries no
// text layer at all it rasterizes every page and runs recognition instead.
func (e *Extractor) extractPDF(ctx context.Context, data []byte, lang string) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]string, 0, n)
	hasText := false
	for i := 0; i < n; i++ {
		txt, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("reading page %d text: %w", i+1, err)
		}
		if strings.TrimSpace(txt) != "" {
			hasText = true
		}
		pages = append(pages, txt)
	}

	if hasText {
		return joinPages(pages), nil
	}

	// Scanned document: no text layer anywhere, fall back to per-page OCR.
	pages = pages[:0]
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := doc.Image(i)
		if err != nil {
			return "", fmt.Errorf("rasterizing page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("encoding page %d: %w", i+1, err)
		}

		txt, err := e.recognize(ctx, buf.Bytes(), lang)
		if err != nil {
			return "", fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		pages = append(pages, txt)
	}
	return joinPages(pages), nil
}
