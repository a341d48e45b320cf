// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything main needs to wire the service.
type Config struct {
	HTTPAddr        string
	DatabaseDSN     string
	RedisAddr       string
	InferenceAddr   string
	OCRAddr         string
	FaceModelDir    string
	OCRLanguages    []string
	JWTSecret       string
	JWTAudience     string
	CORSOrigins     []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	LogLevel        string
	Verification    Verification
}

// Verification tunes the document verifier.
type Verification struct {
	RequireFace   bool
	Sequential    bool
	DecodeTimeout time.Duration
	FaceTimeout   time.Duration
	OCRTimeout    time.Duration
}

const (
	DefaultHTTPAddr        = ":8080"
	DefaultMaxUploadBytes  = 10 << 20
	DefaultShutdownTimeout = 15 * time.Second
	DefaultDecodeTimeout   = 5 * time.Second
	DefaultFaceTimeout     = 10 * time.Second
	DefaultOCRTimeout      = 20 * time.Second
)

// FromEnv builds a Config from environment variables, falling back to
// development defaults. Malformed durations, booleans and sizes are errors.
func FromEnv() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg := Config{
		HTTPAddr:      env("HTTP_ADDR", DefaultHTTPAddr),
		DatabaseDSN:   env("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=propertyafrica port=5432 sslmode=disable"),
		RedisAddr:     env("REDIS_ADDR", "redis:6379"),
		InferenceAddr: env("INFERENCE_ADDR", "inference:50051"),
		JWTSecret:     env("JWT_SECRET", "dev-secret"),
		JWTAudience:   getenv("JWT_AUDIENCE"),
		LogLevel:      env("LOG_LEVEL", "info"),
	}
	cfg.OCRAddr = env("OCR_ADDR", cfg.InferenceAddr)
	cfg.CORSOrigins = splitList(env("CORS_ORIGINS", "*"))
	cfg.FaceModelDir = env("FACE_MODEL_DIR", "/usr/share/dlib/models")
	cfg.OCRLanguages = splitList(env("OCR_LANGUAGES", "eng"))

	var err error
	if cfg.MaxUploadBytes, err = parseInt(env("MAX_UPLOAD_BYTES", ""), DefaultMaxUploadBytes); err != nil {
		return Config{}, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.ShutdownTimeout, err = parseDuration(env("SHUTDOWN_TIMEOUT", ""), DefaultShutdownTimeout); err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	v := &cfg.Verification
	if v.RequireFace, err = parseBool(env("KYC_REQUIRE_FACE", ""), true); err != nil {
		return Config{}, fmt.Errorf("KYC_REQUIRE_FACE: %w", err)
	}
	if v.Sequential, err = parseBool(env("KYC_SEQUENTIAL", ""), false); err != nil {
		return Config{}, fmt.Errorf("KYC_SEQUENTIAL: %w", err)
	}
	if v.DecodeTimeout, err = parseDuration(env("KYC_DECODE_TIMEOUT", ""), DefaultDecodeTimeout); err != nil {
		return Config{}, fmt.Errorf("KYC_DECODE_TIMEOUT: %w", err)
	}
	if v.FaceTimeout, err = parseDuration(env("KYC_FACE_TIMEOUT", ""), DefaultFaceTimeout); err != nil {
		return Config{}, fmt.Errorf("KYC_FACE_TIMEOUT: %w", err)
	}
	if v.OCRTimeout, err = parseDuration(env("KYC_OCR_TIMEOUT", ""), DefaultOCRTimeout); err != nil {
		return Config{}, fmt.Errorf("KYC_OCR_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}

func parseBool(raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}

func parseInt(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
