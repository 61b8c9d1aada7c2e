package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestRetryWaitWithJitterStaysWithinBackoff(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxBackoff:     40 * time.Millisecond,
		RetryMultiplier:     2,
		RetryJitter:         true,
	})

	for i := 0; i < 200; i++ {
		wait := exec.retryWait(80 * time.Millisecond)
		if wait < 0 || wait > 40*time.Millisecond {
			t.Fatalf("wait %s outside [0, max backoff]", wait)
		}
	}
}

func TestExecuteStopsWhenContextCancelled(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     50 * time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last error after cancel, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetrierStopsOnFatalTaskError(t *testing.T) {
	retrier := NewRetrier(NewExecutor(Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryJitter:         true,
	}), ClassifyTaskError)

	attempts := 0
	err := retrier.Retry(context.Background(), "task", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("disk hiccup")
		}
		return domain.WrapError(domain.ErrUnsupportedFormat, "route", errors.New(".xyz"))
	})
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("Retry() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestClassifyTaskError(t *testing.T) {
	if c := ClassifyTaskError(domain.WrapError(domain.ErrGenerationFailed, "summarize", errors.New("too_short"))); c.Retryable {
		t.Fatalf("generation failure must not be retried")
	}
	if c := ClassifyTaskError(context.Canceled); c.Retryable {
		t.Fatalf("cancellation must not be retried")
	}
	if c := ClassifyTaskError(domain.WrapError(domain.ErrPersistence, "save", errors.New("disk full"))); !c.Retryable {
		t.Fatalf("persistence failure should be retried")
	}
}

func TestTaskRetryConfigRunsOnePlusRetries(t *testing.T) {
	cfg := TaskRetryConfig(3, time.Millisecond)
	if cfg.BreakerEnabled || !cfg.RetryJitter || cfg.RetryMaxAttempts != 4 {
		t.Fatalf("unexpected task policy: %+v", cfg)
	}
	if got := TaskRetryConfig(-1, time.Millisecond).RetryMaxAttempts; got != 1 {
		t.Fatalf("negative retries: attempts = %d, want 1", got)
	}

	retrier := NewRetrier(NewExecutor(cfg), ClassifyTaskError)
	calls := 0
	err := retrier.Retry(context.Background(), "task.process", func(context.Context) error {
		calls++
		return domain.WrapError(domain.ErrPersistence, "persist", errors.New("disk full"))
	})
	if !domain.IsKind(err, domain.ErrPersistence) {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}
