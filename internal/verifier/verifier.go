// Package verifier decides whether an uploaded KYC document image is usable:
// it decodes the image, looks for a face and extracts the printed text, and
// folds both signals into a single Result.
//
// Verify never fails. Every collaborator error, timeout or panic becomes an
// entry in Result.Errors so the upload flow always has a verdict to store and
// show to the user.
package verifier

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propertyafrica/kyc-api/internal/facedetect"
	"github.com/propertyafrica/kyc-api/internal/imagedecode"
	"github.com/propertyafrica/kyc-api/internal/ocr"
)

// Timeout errors surfaced in Result.Errors.
var (
	ErrDecodeTimeout = errors.New("image decode timed out")
	ErrFaceTimeout   = errors.New("face detection timed out")
	ErrOCRTimeout    = errors.New("text recognition timed out")
)

const (
	DefaultDecodeTimeout = 5 * time.Second
	DefaultFaceTimeout   = 10 * time.Second
	DefaultOCRTimeout    = 20 * time.Second
)

// Verifier runs document verification. It holds no per-call state and is
// safe for concurrent use.
type Verifier struct {
	decoder imagedecode.Decoder
	faces   facedetect.Provider
	texts   ocr.Provider
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics

	requireFace   bool
	sequential    bool
	decodeTimeout time.Duration
	faceTimeout   time.Duration
	ocrTimeout    time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRequireFace controls whether a clean detection with zero faces is an
// error. Enabled by default; disable it for documents without a portrait.
func WithRequireFace(require bool) Option {
	return func(v *Verifier) { v.requireFace = require }
}

// WithSequential runs face detection and OCR one after the other instead of
// concurrently. Results are identical either way.
func WithSequential() Option {
	return func(v *Verifier) { v.sequential = true }
}

// WithTimeouts overrides the per-stage deadlines. Non-positive values keep
// the current setting.
func WithTimeouts(decode, face, text time.Duration) Option {
	return func(v *Verifier) {
		if decode > 0 {
			v.decodeTimeout = decode
		}
		if face > 0 {
			v.faceTimeout = face
		}
		if text > 0 {
			v.ocrTimeout = text
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(v *Verifier) { v.tracer = t }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New constructs a Verifier.
func New(decoder imagedecode.Decoder, faces facedetect.Provider, texts ocr.Provider, logger *zap.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		decoder:       decoder,
		faces:         faces,
		texts:         texts,
		logger:        logger.Named("document_verifier"),
		requireFace:   true,
		decodeTimeout: DefaultDecodeTimeout,
		faceTimeout:   DefaultFaceTimeout,
		ocrTimeout:    DefaultOCRTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.tracer == nil {
		v.tracer = otel.Tracer("github.com/propertyafrica/kyc-api/internal/verifier")
	}
	return v
}

// RequireFace returns a copy of v with the face requirement set.
func (v *Verifier) RequireFace(require bool) *Verifier {
	clone := *v
	clone.requireFace = require
	return &clone
}

type faceOutcome struct {
	count  int
	errors []string
}

type textOutcome struct {
	text   string
	errors []string
}

// Verify inspects imageBytes. The slice is only read, never retained.
func (v *Verifier) Verify(ctx context.Context, imageBytes []byte) Result {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "kyc.verify_document",
		trace.WithAttributes(attribute.Int("image.bytes", len(imageBytes))))
	defer span.End()

	var (
		face faceOutcome
		text textOutcome
	)
	if v.sequential {
		face = v.detectFaces(ctx, imageBytes)
		text = v.recognizeText(ctx, imageBytes)
	} else {
		var g errgroup.Group
		g.Go(func() error {
			face = v.detectFaces(ctx, imageBytes)
			return nil
		})
		g.Go(func() error {
			text = v.recognizeText(ctx, imageBytes)
			return nil
		})
		_ = g.Wait()
	}

	// Face-branch entries always precede OCR entries, whichever finished first.
	errs := make([]string, 0, len(face.errors)+len(text.errors))
	errs = append(errs, face.errors...)
	errs = append(errs, text.errors...)

	result := Result{
		IsValid:       len(errs) == 0,
		FaceMatched:   face.count > 0,
		FaceCount:     face.count,
		ExtractedText: text.text,
		Errors:        errs,
	}

	span.SetAttributes(
		attribute.Bool("kyc.is_valid", result.IsValid),
		attribute.Bool("kyc.face_matched", result.FaceMatched),
		attribute.Int("kyc.error_count", len(errs)),
	)
	if !result.IsValid {
		span.SetStatus(codes.Error, "document rejected")
	}
	v.metrics.verified(result.IsValid, time.Since(start))
	v.logger.Debug("document verified",
		zap.Bool("is_valid", result.IsValid),
		zap.Bool("face_matched", result.FaceMatched),
		zap.Int("text_length", len(result.ExtractedText)),
		zap.Strings("errors", errs),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

// detectFaces decodes the image, runs the detector and releases the bitmap.
func (v *Verifier) detectFaces(ctx context.Context, data []byte) (out faceOutcome) {
	img, err := v.decode(ctx, data)
	if err != nil {
		out.errors = append(out.errors, errorEntry(err))
		return out
	}

	owned := true
	defer func() {
		if owned {
			img.Release()
		}
	}()

	ctx, span := v.tracer.Start(ctx, "kyc.face_detect",
		trace.WithAttributes(attribute.Int("image.width", img.Width), attribute.Int("image.height", img.Height)))
	defer span.End()

	start := time.Now()
	faces, abandoned, err := await(ctx, v.faceTimeout, ErrFaceTimeout,
		func(ctx context.Context) ([]facedetect.Face, error) {
			detector, err := v.faces.Detector(ctx)
			if err != nil {
				return nil, err
			}
			return detector.Detect(ctx, img)
		},
		func([]facedetect.Face, error) { img.Release() },
	)
	if abandoned {
		// The detector may still be reading the bitmap; the late hook frees it.
		owned = false
	}
	v.metrics.observeStage(StageFaceDetect, time.Since(start))

	if err != nil {
		v.fail(span, StageFaceDetect, err)
		out.errors = append(out.errors, errorEntry(err))
		return out
	}

	out.count = len(faces)
	span.SetAttributes(attribute.Int("kyc.face_count", out.count))
	if out.count == 0 {
		v.metrics.stageFailed(StageFaceDetect, ReasonNoFace)
		if v.requireFace {
			out.errors = append(out.errors, NoFaceDetected)
		}
	}
	return out
}

func (v *Verifier) decode(ctx context.Context, data []byte) (*imagedecode.Image, error) {
	ctx, span := v.tracer.Start(ctx, "kyc.decode")
	defer span.End()

	start := time.Now()
	img, _, err := await(ctx, v.decodeTimeout, ErrDecodeTimeout,
		func(ctx context.Context) (*imagedecode.Image, error) {
			return v.decoder.Decode(ctx, data)
		},
		func(img *imagedecode.Image, _ error) { img.Release() },
	)
	v.metrics.observeStage(StageDecode, time.Since(start))
	if err != nil {
		// A decoder may hand back a bitmap alongside an error; never leak it.
		img.Release()
		v.fail(span, StageDecode, err)
		return nil, err
	}
	if img == nil {
		err = errors.New("decoder returned no image")
		v.fail(span, StageDecode, err)
		return nil, err
	}
	return img, nil
}

// recognizeText runs OCR against the original bytes.
func (v *Verifier) recognizeText(ctx context.Context, data []byte) (out textOutcome) {
	ctx, span := v.tracer.Start(ctx, "kyc.ocr")
	defer span.End()

	start := time.Now()
	text, _, err := await(ctx, v.ocrTimeout, ErrOCRTimeout,
		func(ctx context.Context) (string, error) {
			engine, err := v.texts.Engine(ctx)
			if err != nil {
				return "", err
			}
			return engine.Recognize(ctx, data)
		},
		nil,
	)
	v.metrics.observeStage(StageOCR, time.Since(start))

	if err != nil {
		v.fail(span, StageOCR, err)
		out.errors = append(out.errors, errorEntry(err))
		return out
	}
	out.text = text
	span.SetAttributes(attribute.Int("kyc.text_length", len(text)))
	return out
}

func (v *Verifier) fail(span trace.Span, stage string, err error) {
	reason := ReasonError
	if errors.Is(err, ErrDecodeTimeout) || errors.Is(err, ErrFaceTimeout) || errors.Is(err, ErrOCRTimeout) {
		reason = ReasonTimeout
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	v.metrics.stageFailed(stage, reason)
	v.logger.Debug("verification stage failed", zap.String("stage", stage), zap.String("reason", reason), zap.Error(err))
}
