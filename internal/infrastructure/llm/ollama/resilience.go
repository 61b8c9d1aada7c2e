package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the generation service.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// transient reports whether the service may answer differently on a later call.
func (e *HTTPStatusError) transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

var (
	retryAndRecord = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	giveUp         = resilience.ErrorClassification{}
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return giveUp
	}
	if resilience.IsCircuitOpen(err) {
		return retryAndRecord
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.transient() {
			return retryAndRecord
		}
		return giveUp
	}

	// A model that is still loading can cut the response short.
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return retryAndRecord
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryAndRecord
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapCallError marks failures worth another attempt as temporary.
func wrapCallError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
