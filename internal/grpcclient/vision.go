package grpcclient

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/propertyafrica/kyc-api/internal/facedetect"
	"github.com/propertyafrica/kyc-api/internal/imagedecode"
	"github.com/propertyafrica/kyc-api/internal/logging"
	"github.com/propertyafrica/kyc-api/internal/ocr"
)

// FaceDetector calls the remote vision service. The bitmap is sent as PNG
// inside a BytesValue; the reply is a Struct of the form
// {"faces": [{"x0":..,"y0":..,"x1":..,"y1":..,"confidence":..}]}.
type FaceDetector struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewFaceDetector binds a detector to an existing connection.
func NewFaceDetector(conn grpc.ClientConnInterface, logger *zap.Logger) *FaceDetector {
	return &FaceDetector{conn: conn, logger: logger.Named("grpc_face_detector")}
}

// Detect implements facedetect.Detector.
func (d *FaceDetector) Detect(ctx context.Context, img *imagedecode.Image) ([]facedetect.Face, error) {
	var buf bytes.Buffer
	if err := img.EncodePNG(&buf); err != nil {
		return nil, err
	}

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, MethodDetectFaces, wrapperspb.Bytes(buf.Bytes()), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.detect_faces", "", backendError(err))
		d.logger.Error("face detection call failed", zap.Error(err))
		return nil, wrapped
	}
	return parseFaces(resp)
}

func parseFaces(resp *structpb.Struct) ([]facedetect.Face, error) {
	raw, ok := resp.GetFields()["faces"]
	if !ok {
		return nil, fmt.Errorf("malformed face detection response: missing faces")
	}
	list := raw.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("malformed face detection response: faces is not a list")
	}

	faces := make([]facedetect.Face, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("malformed face detection response: face %d is not an object", i)
		}
		f := s.GetFields()
		faces = append(faces, facedetect.Face{
			Box: image.Rect(
				int(f["x0"].GetNumberValue()),
				int(f["y0"].GetNumberValue()),
				int(f["x1"].GetNumberValue()),
				int(f["y1"].GetNumberValue()),
			),
			Confidence: float32(f["confidence"].GetNumberValue()),
		})
	}
	return faces, nil
}

// TextRecognizer calls the remote OCR service with the original upload
// bytes and reads {"text": "..."} back.
type TextRecognizer struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewTextRecognizer binds a recognizer to an existing connection.
func NewTextRecognizer(conn grpc.ClientConnInterface, logger *zap.Logger) *TextRecognizer {
	return &TextRecognizer{conn: conn, logger: logger.Named("grpc_text_recognizer")}
}

// Recognize implements ocr.Engine.
func (r *TextRecognizer) Recognize(ctx context.Context, imageBytes []byte) (string, error) {
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, MethodRecognizeText, wrapperspb.Bytes(imageBytes), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.recognize_text", "", backendError(err))
		r.logger.Error("text recognition call failed", zap.Error(err))
		return "", wrapped
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("malformed text recognition response: missing text")
	}
	return text.GetStringValue(), nil
}

var (
	_ facedetect.Detector = (*FaceDetector)(nil)
	_ ocr.Engine          = (*TextRecognizer)(nil)
)
