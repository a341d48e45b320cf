package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/propertyafrica/kyc-api/internal/logging"
	"github.com/propertyafrica/kyc-api/internal/retry"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func testRepository(attempts int) *VerificationRepository {
	return &VerificationRepository{
		logger: zap.NewNop(),
		policy: retry.Policy{
			Attempts:       attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	}
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	repo := testRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "req-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := testRepository(2)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "req-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.RequestID != "req-2" {
		t.Fatalf("unexpected request id: %s", opErr.RequestID)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	repo := testRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "repository.find_by_request", "req-3", func() error {
		attempts++
		return notFound(fmt.Errorf("query: %w", gorm.ErrRecordNotFound))
	})

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestNotFoundIsNotLoggedAsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	repo := testRepository(3)
	repo.logger = zap.New(core)

	err := repo.executeWithRetry(context.Background(), "repository.find_by_request", "req-4", func() error {
		return notFound(gorm.ErrRecordNotFound)
	})

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Fatalf("expected no error logs, got %d", n)
	}
}

func TestTableName(t *testing.T) {
	if got := (VerificationLog{}).TableName(); got != "kyc_verification_logs" {
		t.Fatalf("unexpected table name: %s", got)
	}
}
