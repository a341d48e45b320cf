// Package ocr defines the text recognition capability used by document
// verification.
package ocr

import (
	"context"

	"github.com/propertyafrica/kyc-api/internal/lazy"
)

// Engine extracts text from raw image bytes. Output is returned verbatim,
// including whatever whitespace the engine produces.
type Engine interface {
	Recognize(ctx context.Context, imageBytes []byte) (string, error)
}

// Provider hands out the engine to use for a call.
type Provider interface {
	Engine(ctx context.Context) (Engine, error)
}

// Static returns a Provider that always yields e.
func Static(e Engine) Provider {
	return staticProvider{e: e}
}

type staticProvider struct{ e Engine }

func (p staticProvider) Engine(context.Context) (Engine, error) { return p.e, nil }

// Lazy builds the engine on first use and shares it across calls.
type Lazy struct {
	value *lazy.Value[Engine]
}

// NewLazy wraps an engine constructor.
func NewLazy(build func(ctx context.Context) (Engine, error)) *Lazy {
	return &Lazy{value: lazy.New(build)}
}

// Engine implements Provider.
func (l *Lazy) Engine(ctx context.Context) (Engine, error) {
	return l.value.Get(ctx)
}

// Close releases the shared engine if it holds resources.
func (l *Lazy) Close() error {
	return l.value.Close()
}
