//go:build tesseract

package ocr

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs Tesseract in-process. A gosseract client is not safe
// for concurrent use, so each call gets its own.
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine returns an engine for the given traineddata languages,
// e.g. "eng", "fra", "swa".
func NewTesseractEngine(languages ...string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{languages: languages}
}

// Recognize implements Engine.
func (e *TesseractEngine) Recognize(ctx context.Context, imageBytes []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(imageBytes); err != nil {
		return "", err
	}
	return client.Text()
}
