package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/jpeg"
)

// extractImage recognizes a single uploaded image. The image is converted to
// grayscale first, which measurably improves recognition on phone photos of
// printed reports. Formats the standard decoders cannot read are handed to
// the engine unchanged.
func (e *Extractor) extractImage(ctx context.Context, data []byte, lang string) (string, error) {
	if gray, err := grayscalePNG(data); err == nil {
		data = gray
	}
	return e.recognize(ctx, data, lang)
}

func (e *Extractor) recognize(ctx context.Context, img []byte, lang string) (string, error) {
	if e.engine == nil {
		return "", fmt.Errorf("no recognition engine configured")
	}
	return e.engine.Recognize(ctx, img, lang)
}

// grayscalePNG decodes an image and re-encodes it as a grayscale PNG.
func grayscalePNG(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encoding grayscale image: %w", err)
	}
	return buf.Bytes(), nil
}
