package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propertyafrica/kyc-api/internal/logging"
	"github.com/propertyafrica/kyc-api/internal/repository"
	"github.com/propertyafrica/kyc-api/internal/retry"
	"github.com/propertyafrica/kyc-api/internal/verifier"
)

const (
	processingTTL = time.Minute
	resultTTL     = 5 * time.Minute
)

// VerificationRepository defines the persistence operations needed by the use case.
type VerificationRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.VerificationLog, error)
	FindDuplicatesByHash(ctx context.Context, hash, excludeRequestID string) ([]*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DocumentVerifier produces a verdict for a document image.
type DocumentVerifier interface {
	Verify(ctx context.Context, imageBytes []byte) verifier.Result
}

// VerifyRequest is one KYC document upload.
type VerifyRequest struct {
	UserID       string
	DocumentType DocumentType
	ClientDevice string
	Image        []byte
}

// DuplicateReport represents duplicate verification entries for a request.
type DuplicateReport struct {
	Request    *repository.VerificationLog   `json:"request"`
	Duplicates []*repository.VerificationLog `json:"duplicates"`
}

// VerificationUseCase encapsulates business logic for the KYC document flow.
type VerificationUseCase struct {
	repo        VerificationRepository
	cache       Cache
	portrait    DocumentVerifier
	nonPortrait DocumentVerifier
	logger      *zap.Logger
	retryPolicy retry.Policy
	now         func() time.Time
}

// NewVerificationUseCase constructs a new use case instance. portrait is used
// for identity documents that must show a face, nonPortrait for documents
// such as title deeds that carry none.
func NewVerificationUseCase(repo VerificationRepository, cache Cache, portrait, nonPortrait DocumentVerifier, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		repo:        repo,
		cache:       cache,
		portrait:    portrait,
		nonPortrait: nonPortrait,
		logger:      logger.Named("verification_usecase"),
		retryPolicy: retry.DefaultPolicy,
		now:         time.Now,
	}
}

// VerifyDocument verifies an uploaded document, persists the verdict and
// caches it. A rejected document is not an error; only infrastructure
// failures are.
func (uc *VerificationUseCase) VerifyDocument(ctx context.Context, req VerifyRequest) (string, verifier.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_document", requestID)

	cacheKey := resultKey(requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", verifier.Result{}, err
	}

	v := uc.portrait
	if !req.DocumentType.HasPortrait() {
		v = uc.nonPortrait
	}

	started := uc.now()
	result := v.Verify(ctx, req.Image)
	elapsed := uc.now().Sub(started)

	hash := sha1.Sum(req.Image)
	log := &repository.VerificationLog{
		RequestID:     requestID,
		UserID:        req.UserID,
		DocumentType:  string(req.DocumentType),
		IsValid:       result.IsValid,
		FaceMatched:   result.FaceMatched,
		FaceCount:     result.FaceCount,
		ExtractedText: result.ExtractedText,
		Errors:        result.Errors,
		SHA1Hash:      hex.EncodeToString(hash[:]),
		ClientDevice:  req.ClientDevice,
		ProcessingMs:  elapsed.Milliseconds(),
		CreatedAt:     started.UTC(),
	}
	if log.Errors == nil {
		log.Errors = []string{}
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist verification log", zap.Error(wrapped))
		return "", verifier.Result{}, wrapped
	}

	serialized, err := json.Marshal(log)
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return "", verifier.Result{}, err
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache verification result", zap.Error(err))
		return "", verifier.Result{}, err
	}

	opLogger.Info("document verified",
		zap.String("document_type", log.DocumentType),
		zap.Bool("is_valid", log.IsValid),
		zap.Bool("face_matched", log.FaceMatched),
		zap.Int("error_count", len(log.Errors)),
		zap.Int64("processing_ms", log.ProcessingMs),
	)
	return requestID, result, nil
}

// GetResult retrieves a cached verification outcome or loads from persistence.
func (uc *VerificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.VerificationLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultKey(requestID))
	switch {
	case err == nil:
		var log repository.VerificationLog
		if err := json.Unmarshal([]byte(cached), &log); err != nil {
			// Still "processing", or a stale format; the database is authoritative.
			opLogger.Debug("cached entry is not a verdict", zap.Error(err))
		} else if log.UserID == userID {
			return &log, nil
		}
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// GetDuplicateReport lists every other upload of the same document bytes.
func (uc *VerificationUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}
	if duplicates == nil {
		duplicates = []*repository.VerificationLog{}
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return retry.Do(ctx, uc.logger, uc.retryPolicy, operation, requestID, fn)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	policy := uc.retryPolicy
	policy.Expected = isCacheMiss

	var result string
	err := retry.Do(ctx, uc.logger, policy, operation, requestID, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isCacheMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

func resultKey(requestID string) string {
	return fmt.Sprintf("verification:%s", requestID)
}
