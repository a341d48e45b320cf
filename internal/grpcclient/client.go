package grpcclient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/propertyafrica/kyc-api/internal/logging"
)

// Full method names exposed by the vision inference service.
const (
	MethodDetectFaces   = "/propertyafrica.inference.v1.Vision/DetectFaces"
	MethodRecognizeText = "/propertyafrica.inference.v1.Vision/RecognizeText"
)

// Dial returns a ready-to-use connection to an inference service.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial", "", err)
		logger.Error("failed to dial inference service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return conn, nil
}

// backendError maps a gRPC status to the error the verdict should carry:
// deadlines and cancellations become their context equivalents, anything
// else keeps only the backend's own message.
func backendError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	}
	return errors.New(st.Message())
}
