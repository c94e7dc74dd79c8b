// Package hpoerrors provides the error taxonomy shared by every HPO
// package: search-space configuration mistakes, trial failures and skips,
// and remote scheduler failures.
package hpoerrors

import (
	"fmt"
	"time"
)

// Kind categorizes an HPOError.
type Kind string

const (
	KindConfig             Kind = "config"
	KindRunFailed          Kind = "run_failed"
	KindRunSkipped         Kind = "run_skipped"
	KindRemoteTrialFailure Kind = "remote_trial_failure"
	KindUnboundedContinuous Kind = "unbounded_continuous"
	KindPoolBusy           Kind = "pool_busy"
	KindPoolClosed         Kind = "pool_closed"
	KindInternal           Kind = "internal"
)

// Severity classifies how much of the search an error takes down.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HPOError is the error type returned across pkg/space, pkg/hypervalue,
// pkg/algorithm, pkg/poolservice, pkg/runner and pkg/scheduler.
type HPOError struct {
	Code      string
	Message   string
	Kind      Kind
	Severity  Severity
	Operation string
	Cause     error
	Metadata  map[string]interface{}
	Retryable bool
	Timestamp time.Time
}

func (e *HPOError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HPOError) Unwrap() error { return e.Cause }

func (e *HPOError) Is(target error) bool {
	t, ok := target.(*HPOError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// Builder is a fluent constructor for HPOError.
type Builder struct {
	err *HPOError
}

// New starts building an error with the given code and message.
func New(code, message string) *Builder {
	return &Builder{
		err: &HPOError{
			Code:      code,
			Message:   message,
			Timestamp: time.Now(),
			Metadata:  make(map[string]interface{}),
		},
	}
}

func (b *Builder) WithKind(k Kind) *Builder {
	b.err.Kind = k
	return b
}

func (b *Builder) WithSeverity(s Severity) *Builder {
	b.err.Severity = s
	return b
}

func (b *Builder) WithOperation(op string) *Builder {
	b.err.Operation = op
	return b
}

func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

func (b *Builder) WithMetadata(key string, value interface{}) *Builder {
	b.err.Metadata[key] = value
	return b
}

func (b *Builder) WithRetry(retryable bool) *Builder {
	b.err.Retryable = retryable
	return b
}

// Build finalizes the error, filling unset fields with defaults.
func (b *Builder) Build() *HPOError {
	if b.err.Kind == "" {
		b.err.Kind = KindInternal
	}
	if b.err.Severity == "" {
		b.err.Severity = SeverityMedium
	}
	return b.err
}

// ConfigError reports an invalid search-space or runner configuration.
func ConfigError(operation, message string) *HPOError {
	return New("CONFIG_ERROR", message).
		WithKind(KindConfig).
		WithSeverity(SeverityLow).
		WithOperation(operation).
		Build()
}

// UnboundedContinuousError reports a continuous dimension used where the
// algorithm requires a bounded sample count (e.g. grid search with no
// max steps).
func UnboundedContinuousError(operation string) *HPOError {
	return New("UNBOUNDED_CONTINUOUS", "continuous space is not supported when max steps is not assigned").
		WithKind(KindUnboundedContinuous).
		WithSeverity(SeverityMedium).
		WithOperation(operation).
		Build()
}

// RunFailed wraps the last error and metrics from an exhausted retry
// budget.
func RunFailed(cause error, metrics map[string]interface{}) *HPOError {
	b := New("RUN_FAILED", "trial exhausted its retry budget").
		WithKind(KindRunFailed).
		WithSeverity(SeverityMedium).
		WithCause(cause)
	for k, v := range metrics {
		b.WithMetadata(k, v)
	}
	return b.Build()
}

// RunSkipped reports a trial that voluntarily opted out via Skip.
func RunSkipped(metrics map[string]interface{}) *HPOError {
	b := New("RUN_SKIPPED", "trial was skipped").
		WithKind(KindRunSkipped).
		WithSeverity(SeverityLow)
	for k, v := range metrics {
		b.WithMetadata(k, v)
	}
	return b.Build()
}

// RemoteTrialFailure reports a scheduler-side trial failure (subprocess
// non-zero exit, missing result file, k8s pod failure).
func RemoteTrialFailure(taskName, message string) *HPOError {
	return New("REMOTE_TRIAL_FAILURE", message).
		WithKind(KindRemoteTrialFailure).
		WithSeverity(SeverityHigh).
		WithMetadata("task_name", taskName).
		Build()
}

// PoolBusy reports a Send call rejected because every worker slot is
// occupied and the caller declined to wait.
func PoolBusy(operation string) *HPOError {
	return New("POOL_BUSY", "worker pool has no free capacity").
		WithKind(KindPoolBusy).
		WithSeverity(SeverityLow).
		WithOperation(operation).
		WithRetry(true).
		Build()
}

// PoolClosed reports a Send call rejected because the pool is closing or
// dead.
func PoolClosed(operation string) *HPOError {
	return New("POOL_CLOSED", "worker pool is no longer accepting tasks").
		WithKind(KindPoolClosed).
		WithSeverity(SeverityMedium).
		WithOperation(operation).
		Build()
}

// Internal wraps an unexpected error.
func Internal(operation string, cause error) *HPOError {
	return New("INTERNAL_ERROR", "internal error").
		WithKind(KindInternal).
		WithSeverity(SeverityHigh).
		WithOperation(operation).
		WithCause(cause).
		Build()
}
