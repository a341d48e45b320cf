// Package facedetect defines the face detection capability used by document
// verification and the providers that hand out detector instances.
package facedetect

import (
	"context"
	"image"

	"github.com/propertyafrica/kyc-api/internal/imagedecode"
	"github.com/propertyafrica/kyc-api/internal/lazy"
)

// Face describes one detected face.
type Face struct {
	Box        image.Rectangle `json:"box"`
	Confidence float32         `json:"confidence"`
}

// Detector finds faces in a decoded image. It must not retain img after
// returning.
type Detector interface {
	Detect(ctx context.Context, img *imagedecode.Image) ([]Face, error)
}

// Provider hands out the detector to use for a call.
type Provider interface {
	Detector(ctx context.Context) (Detector, error)
}

// Static returns a Provider that always yields d.
func Static(d Detector) Provider {
	return staticProvider{d: d}
}

type staticProvider struct{ d Detector }

func (p staticProvider) Detector(context.Context) (Detector, error) { return p.d, nil }

// Lazy builds the detector on first use and shares it across calls.
type Lazy struct {
	value *lazy.Value[Detector]
}

// NewLazy wraps a detector constructor, typically one that loads model files.
func NewLazy(build func(ctx context.Context) (Detector, error)) *Lazy {
	return &Lazy{value: lazy.New(build)}
}

// Detector implements Provider.
func (l *Lazy) Detector(ctx context.Context) (Detector, error) {
	return l.value.Get(ctx)
}

// Close releases the shared detector if it holds native resources.
func (l *Lazy) Close() error {
	return l.value.Close()
}
