package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// Retrier binds an executor to a single classifier.
type Retrier struct {
	executor   *Executor
	classifier ErrorClassifier
}

func NewRetrier(executor *Executor, classifier ErrorClassifier) *Retrier {
	return &Retrier{executor: executor, classifier: classifier}
}

func (r *Retrier) Retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	return r.executor.Execute(ctx, operation, fn, r.classifier)
}

// ClassifyTaskError retries whole tasks on anything but fatal kinds and caller cancellation.
func ClassifyTaskError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || domain.IsFatal(err) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return ErrorClassification{Retryable: true, RecordFailure: true}
}
