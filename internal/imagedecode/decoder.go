// Package imagedecode turns uploaded document bytes into pooled RGBA bitmaps
// that vision backends can consume.
package imagedecode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds width*height before any pixel memory is allocated.
const DefaultMaxPixels = 40_000_000

// ErrEmptyImage is returned for zero-length payloads.
var ErrEmptyImage = errors.New("empty image")

var supportedMIME = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
	"image/tiff": {},
}

// Decoder decodes raw image bytes. The returned Image must be released by
// the caller.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Image, error)
}

// StandardDecoder decodes the common raster formats into RGBA bitmaps whose
// pixel buffers are recycled through a pool.
type StandardDecoder struct {
	maxPixels int
	pool      sync.Pool
}

// Option configures a StandardDecoder.
type Option func(*StandardDecoder)

// WithMaxPixels overrides DefaultMaxPixels.
func WithMaxPixels(n int) Option {
	return func(d *StandardDecoder) {
		if n > 0 {
			d.maxPixels = n
		}
	}
}

// NewStandardDecoder constructs a decoder.
func NewStandardDecoder(opts ...Option) *StandardDecoder {
	d := &StandardDecoder{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsSupported reports whether the sniffed MIME type is a decodable image.
func IsSupported(mime string) bool {
	_, ok := supportedMIME[mime]
	return ok
}

// Sniff returns the MIME type detected from the payload's magic bytes.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// Decode implements Decoder.
func (d *StandardDecoder) Decode(ctx context.Context, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mime := mimetype.Detect(data)
	if !IsSupported(mime.String()) {
		return nil, fmt.Errorf("invalid image format: %s", mime.String())
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid image format: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	buf := d.acquire(4 * bounds.Dx() * bounds.Dy())
	rgba := &image.RGBA{
		Pix:    buf,
		Stride: 4 * bounds.Dx(),
		Rect:   image.Rect(0, 0, bounds.Dx(), bounds.Dy()),
	}
	draw.Draw(rgba, rgba.Rect, src, bounds.Min, draw.Src)

	return NewImage(rgba, format, func() { d.pool.Put(&buf) }), nil
}

func (d *StandardDecoder) acquire(size int) []byte {
	if v, ok := d.pool.Get().(*[]byte); ok && cap(*v) >= size {
		return (*v)[:size]
	}
	return make([]byte, size)
}
