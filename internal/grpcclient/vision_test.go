package grpcclient

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/propertyafrica/kyc-api/internal/imagedecode"
	"github.com/propertyafrica/kyc-api/internal/logging"
)

type fakeConn struct {
	method  string
	payload []byte
	reply   map[string]any
	err     error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.payload = args.(*wrapperspb.BytesValue).GetValue()
	if f.err != nil {
		return f.err
	}
	s, err := structpb.NewStruct(f.reply)
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), s)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}

func testImage() *imagedecode.Image {
	return imagedecode.NewImage(image.NewRGBA(image.Rect(0, 0, 4, 4)), "png", nil)
}

func TestFaceDetectorParsesFaces(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{
		"faces": []any{
			map[string]any{"x0": 1, "y0": 2, "x1": 30, "y1": 40, "confidence": 0.97},
		},
	}}
	d := NewFaceDetector(conn, zap.NewNop())

	faces, err := d.Detect(context.Background(), testImage())
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, image.Rect(1, 2, 30, 40), faces[0].Box)
	assert.InDelta(t, 0.97, faces[0].Confidence, 0.0001)
	assert.Equal(t, MethodDetectFaces, conn.method)
	assert.Equal(t, "image/png", imagedecode.Sniff(conn.payload))
}

func TestFaceDetectorEmptyList(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"faces": []any{}}}
	faces, err := NewFaceDetector(conn, zap.NewNop()).Detect(context.Background(), testImage())
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestFaceDetectorMalformedResponse(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"faces": "none"}}
	_, err := NewFaceDetector(conn, zap.NewNop()).Detect(context.Background(), testImage())
	assert.ErrorContains(t, err, "faces is not a list")
}

func TestFaceDetectorKeepsBackendMessage(t *testing.T) {
	conn := &fakeConn{err: status.Error(codes.Internal, "Face detection failed")}
	_, err := NewFaceDetector(conn, zap.NewNop()).Detect(context.Background(), testImage())
	require.Error(t, err)

	var opErr *logging.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "grpcclient.detect_faces", opErr.Operation)
	assert.Equal(t, "Face detection failed", logging.Message(err))
}

func TestFaceDetectorRejectsReleasedImage(t *testing.T) {
	img := testImage()
	img.Release()
	_, err := NewFaceDetector(&fakeConn{}, zap.NewNop()).Detect(context.Background(), img)
	assert.ErrorIs(t, err, imagedecode.ErrReleased)
}

func TestTextRecognizerReturnsVerbatimText(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"text": "  TITLE DEED\nPlot 42  \n"}}
	r := NewTextRecognizer(conn, zap.NewNop())

	text, err := r.Recognize(context.Background(), []byte("raw-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "  TITLE DEED\nPlot 42  \n", text)
	assert.Equal(t, MethodRecognizeText, conn.method)
	assert.Equal(t, []byte("raw-bytes"), conn.payload)
}

func TestTextRecognizerMapsDeadline(t *testing.T) {
	conn := &fakeConn{err: status.Error(codes.DeadlineExceeded, "deadline")}
	_, err := NewTextRecognizer(conn, zap.NewNop()).Recognize(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
