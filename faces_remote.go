//go:build !dlib

package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/propertyafrica/kyc-api/internal/config"
	"github.com/propertyafrica/kyc-api/internal/facedetect"
	"github.com/propertyafrica/kyc-api/internal/grpcclient"
)

// remoteFaceDetector owns the connection its client runs over.
type remoteFaceDetector struct {
	*grpcclient.FaceDetector
	conn *grpc.ClientConn
}

func (d *remoteFaceDetector) Close() error {
	return d.conn.Close()
}

func newFaceProvider(cfg config.Config, logger *zap.Logger) *facedetect.Lazy {
	return facedetect.NewLazy(func(ctx context.Context) (facedetect.Detector, error) {
		conn, err := grpcclient.Dial(ctx, cfg.InferenceAddr, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to face detection service", zap.String("addr", cfg.InferenceAddr))
		return &remoteFaceDetector{FaceDetector: grpcclient.NewFaceDetector(conn, logger), conn: conn}, nil
	})
}
