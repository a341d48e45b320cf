//go:build tesseract

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/propertyafrica/kyc-api/internal/config"
	"github.com/propertyafrica/kyc-api/internal/ocr"
)

func newTextProvider(cfg config.Config, logger *zap.Logger) *ocr.Lazy {
	return ocr.NewLazy(func(ctx context.Context) (ocr.Engine, error) {
		logger.Info("using in-process tesseract", zap.Strings("languages", cfg.OCRLanguages))
		return ocr.NewTesseractEngine(cfg.OCRLanguages...), nil
	})
}
