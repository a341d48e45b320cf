//go:build dlib

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/propertyafrica/kyc-api/internal/config"
	"github.com/propertyafrica/kyc-api/internal/facedetect"
)

func newFaceProvider(cfg config.Config, logger *zap.Logger) *facedetect.Lazy {
	return facedetect.NewLazy(func(ctx context.Context) (facedetect.Detector, error) {
		d, err := facedetect.NewDlibDetector(cfg.FaceModelDir)
		if err != nil {
			logger.Error("failed to load face models", zap.Error(err), zap.String("dir", cfg.FaceModelDir))
			return nil, err
		}
		logger.Info("loaded in-process face detector", zap.String("dir", cfg.FaceModelDir))
		return d, nil
	})
}
