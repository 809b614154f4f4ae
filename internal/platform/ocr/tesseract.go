package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes text with a locally installed Tesseract. Each
// call uses its own client; gosseract clients are not safe for concurrent
// reuse.
type TesseractEngine struct{}

// NewTesseractEngine returns a Tesseract-backed Engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{}
}

// Recognize runs Tesseract over the image bytes in the given language.
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if lang == "" {
		lang = DefaultLanguage
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("setting language %q: %w", lang, err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}
