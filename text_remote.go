//go:build !tesseract

package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/propertyafrica/kyc-api/internal/config"
	"github.com/propertyafrica/kyc-api/internal/grpcclient"
	"github.com/propertyafrica/kyc-api/internal/ocr"
)

type remoteTextEngine struct {
	*grpcclient.TextRecognizer
	conn *grpc.ClientConn
}

func (e *remoteTextEngine) Close() error {
	return e.conn.Close()
}

func newTextProvider(cfg config.Config, logger *zap.Logger) *ocr.Lazy {
	return ocr.NewLazy(func(ctx context.Context) (ocr.Engine, error) {
		conn, err := grpcclient.Dial(ctx, cfg.OCRAddr, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to text recognition service", zap.String("addr", cfg.OCRAddr))
		return &remoteTextEngine{TextRecognizer: grpcclient.NewTextRecognizer(conn, logger), conn: conn}, nil
	})
}
