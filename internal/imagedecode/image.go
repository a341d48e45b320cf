package imagedecode

import (
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
)

// ErrReleased is returned when an Image is used after Release.
var ErrReleased = errors.New("decoded image already released")

// Image is an in-memory bitmap owned by a single verification call. The
// pixel buffer may be pooled, so callers must call Release exactly when they
// are done with it and must not touch Pixels afterwards.
type Image struct {
	Format string
	Width  int
	Height int

	mu       sync.Mutex
	pixels   image.Image
	release  func()
	released bool
}

// NewImage wraps a decoded bitmap. release runs once, on the first call to
// Release, and may be nil.
func NewImage(img image.Image, format string, release func()) *Image {
	b := img.Bounds()
	return &Image{
		Format:  format,
		Width:   b.Dx(),
		Height:  b.Dy(),
		pixels:  img,
		release: release,
	}
}

// Pixels returns the bitmap, or nil once the image has been released.
func (i *Image) Pixels() image.Image {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pixels
}

// Release hands the pixel buffer back. Safe to call more than once and on nil.
func (i *Image) Release() {
	if i == nil {
		return
	}
	i.mu.Lock()
	if i.released {
		i.mu.Unlock()
		return
	}
	i.released = true
	i.pixels = nil
	release := i.release
	i.release = nil
	i.mu.Unlock()

	if release != nil {
		release()
	}
}

// Released reports whether Release has run.
func (i *Image) Released() bool {
	if i == nil {
		return true
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.released
}

// EncodePNG writes the bitmap as PNG. Used by backends that need a portable
// lossless payload.
func (i *Image) EncodePNG(w io.Writer) error {
	px := i.Pixels()
	if px == nil {
		return ErrReleased
	}
	return png.Encode(w, px)
}

// EncodeJPEG writes the bitmap as JPEG at the given quality.
func (i *Image) EncodeJPEG(w io.Writer, quality int) error {
	px := i.Pixels()
	if px == nil {
		return ErrReleased
	}
	return jpeg.Encode(w, px, &jpeg.Options{Quality: quality})
}
