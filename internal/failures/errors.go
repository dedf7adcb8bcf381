package failures

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for stage failure classification. Stages wrap errors with
// one of these via Wrap; the orchestrator classifies with errors.Is and never
// inspects message text.
var (
	// ErrRecoverable marks transient conditions (network hiccup, lock
	// contention, rate limit) that are safe to retry.
	ErrRecoverable = errors.New("recoverable failure")
	// ErrCritical marks failures that must stop the whole run. Never retried,
	// never degraded.
	ErrCritical = errors.New("critical failure")
	// ErrValidation marks structural or content validation failures.
	ErrValidation = errors.New("validation failure")
	// ErrTransformation marks document transformation failures.
	ErrTransformation = errors.New("transformation failure")
	// ErrGeneration marks artifact generation failures.
	ErrGeneration = errors.New("generation failure")
	// ErrCheckpoint marks checkpoint persistence or restoration failures.
	ErrCheckpoint = errors.New("checkpoint failure")
	// ErrCancelled marks a run interrupted by cancellation.
	ErrCancelled = errors.New("run cancelled")
)

// retryable is the fixed set of markers eligible for retry. Domain-flavored
// markers default to retryable; raising them together with ErrCritical
// removes eligibility.
var retryable = []error{
	ErrRecoverable,
	ErrValidation,
	ErrTransformation,
	ErrGeneration,
	ErrCheckpoint,
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrRecoverable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the error is eligible for retry. Critical and
// cancellation markers always win over retryable markers.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCritical) || errors.Is(err, ErrCancelled) {
		return false
	}
	for _, marker := range retryable {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Kind returns a short classification label for reporting.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrCritical):
		return "critical"
	case errors.Is(err, ErrCheckpoint):
		return "checkpoint"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransformation):
		return "transformation"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrRecoverable):
		return "recoverable"
	default:
		return "unclassified"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
