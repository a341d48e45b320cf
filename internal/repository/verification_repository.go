package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/propertyafrica/kyc-api/internal/retry"
)

// ErrNotFound is returned when no verification matches the lookup.
var ErrNotFound = errors.New("verification not found")

// VerificationLog represents a persisted KYC document verification.
type VerificationLog struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64" json:"request_id"`
	UserID        string    `gorm:"column:user_id;index;size:64" json:"user_id"`
	DocumentType  string    `gorm:"column:document_type;size:32" json:"document_type"`
	IsValid       bool      `gorm:"column:is_valid" json:"isValid"`
	FaceMatched   bool      `gorm:"column:face_matched" json:"faceMatched"`
	FaceCount     int       `gorm:"column:face_count" json:"face_count"`
	ExtractedText string    `gorm:"column:extracted_text;type:text" json:"extractedText"`
	Errors        []string  `gorm:"column:errors;type:text;serializer:json" json:"errors"`
	SHA1Hash      string    `gorm:"column:sha1_hash;index;size:40" json:"sha1_hash"`
	ClientDevice  string    `gorm:"column:client_device;size:128" json:"client_device,omitempty"`
	ProcessingMs  int64     `gorm:"column:processing_ms" json:"processing_ms"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "kyc_verification_logs"
}

// MetricsAggregation is the raw aggregate over all verification logs.
type MetricsAggregation struct {
	TotalCount          int64
	ValidCount          int64
	FaceMatchedCount    int64
	AverageProcessingMs float64
}

// VerificationRepository provides persistence APIs for verification logs.
type VerificationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:     db,
		logger: logger.Named("verification_repository"),
		policy: retry.DefaultPolicy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&VerificationLog{})
	})
}

// SaveLog persists a verification log entry.
func (r *VerificationRepository) SaveLog(ctx context.Context, log *VerificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves a verification log matching the request and owner.
func (r *VerificationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*VerificationLog, error) {
	var log VerificationLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		return notFound(r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error)
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash lists other verifications of the same document bytes,
// across all users, newest first.
func (r *VerificationRepository) FindDuplicatesByHash(ctx context.Context, hash, excludeRequestID string) ([]*VerificationLog, error) {
	var logs []*VerificationLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("sha1_hash = ? AND request_id <> ?", hash, excludeRequestID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics summarises every stored verification.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&VerificationLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN is_valid THEN 1 ELSE 0 END), 0) AS valid_count,
				COALESCE(SUM(CASE WHEN face_matched THEN 1 ELSE 0 END), 0) AS face_matched_count,
				COALESCE(AVG(processing_ms), 0) AS average_processing_ms`).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := r.policy
	policy.Expected = isNotFound
	return retry.Do(ctx, r.logger, policy, operation, requestID, fn)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
