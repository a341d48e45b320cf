//go:build dlib

package facedetect

import (
	"bytes"
	"context"
	"errors"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/propertyafrica/kyc-api/internal/imagedecode"
)

// DlibDetector runs dlib's face detector in-process through go-face. It needs
// the dlib model files (shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat).
type DlibDetector struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlibDetector loads the models from modelDir.
func NewDlibDetector(modelDir string) (*DlibDetector, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, err
	}
	return &DlibDetector{rec: rec}, nil
}

// Detect implements Detector. The recognizer is not safe for concurrent use,
// so calls are serialised.
func (d *DlibDetector) Detect(ctx context.Context, img *imagedecode.Image) ([]Face, error) {
	var buf bytes.Buffer
	if err := img.EncodeJPEG(&buf, 95); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec == nil {
		return nil, errors.New("face detector closed")
	}

	found, err := d.rec.Recognize(buf.Bytes())
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(found))
	for _, f := range found {
		faces = append(faces, Face{Box: f.Rectangle, Confidence: 1})
	}
	return faces, nil
}

// Close frees the native recognizer.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
