package jobcontext

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyRunID        KeyContext = "run_id"
	keyStage        KeyContext = "stage"
	keyRetryAttempt KeyContext = "retry_attempt"
	keyRunStartTime KeyContext = "run_start_time"
)

// RunMetadata holds metadata for one pipeline run
type RunMetadata struct {
	JobID        uuid.UUID
	RunID        string
	Stage        string
	RetryAttempt int
	StartTime    time.Time
}

// RunBegin attaches run metadata to ctx. Runs are long-lived (remote jobs may take an
// hour) so no deadline is set here; callers bound individual calls instead.
func RunBegin(parentCtx context.Context, jobID uuid.UUID, runID string) context.Context {
	ctx := context.WithValue(parentCtx, keyJobID, jobID)
	ctx = context.WithValue(ctx, keyRunID, runID)
	ctx = context.WithValue(ctx, keyRunStartTime, time.Now())
	return ctx
}

// WithStage records the active stage on ctx
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, keyStage, stage)
}

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetRunID extracts run ID from context
func GetRunID(ctx context.Context) string {
	runID, _ := ctx.Value(keyRunID).(string)
	return runID
}

// GetStage extracts the active stage from context
func GetStage(ctx context.Context) string {
	stage, _ := ctx.Value(keyStage).(string)
	return stage
}

// GetRetryAttempt extracts current attempt (1-based) from context
func GetRetryAttempt(ctx context.Context) int {
	attempt, ok := ctx.Value(keyRetryAttempt).(int)
	if !ok {
		return 0
	}
	return attempt
}

// GetRunMetadata extracts all run metadata from context
func GetRunMetadata(ctx context.Context) *RunMetadata {
	jobID, _ := GetJobID(ctx)
	startTime, _ := ctx.Value(keyRunStartTime).(time.Time)

	return &RunMetadata{
		JobID:        jobID,
		RunID:        GetRunID(ctx),
		Stage:        GetStage(ctx),
		RetryAttempt: GetRetryAttempt(ctx),
		StartTime:    startTime,
	}
}

// Fields returns the run metadata as zap fields
func Fields(ctx context.Context) []zap.Field {
	md := GetRunMetadata(ctx)
	fields := make([]zap.Field, 0, 4)
	if md.JobID != uuid.Nil {
		fields = append(fields, zap.String("job_id", md.JobID.String()))
	}
	if md.RunID != "" {
		fields = append(fields, zap.String("run_id", md.RunID))
	}
	if md.Stage != "" {
		fields = append(fields, zap.String("stage", md.Stage))
	}
	if md.RetryAttempt > 0 {
		fields = append(fields, zap.Int("attempt", md.RetryAttempt))
	}
	return fields
}

// RetryPolicy bounds retries of one external call
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is 3 attempts with 2s..30s exponential backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0

	var b backoff.BackOff = bo
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the policy is
// exhausted. Panics inside fn are recovered into errors. notify (optional) is called
// before each backoff sleep.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error, notify func(err error, attempt int, next time.Duration)) error {
	attempt := 0

	op := func() error {
		attempt++
		actx := context.WithValue(ctx, keyRetryAttempt, attempt)

		if err := actx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic recovered: %v", p)
				}
			}()
			err = fn(actx)
		}()

		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(op, policy.backOff(ctx), func(err error, next time.Duration) {
		if notify != nil {
			notify(err, attempt, next)
		}
	})
}

// IsRetryableError checks if an error should trigger a retry.
// Classified pipeline errors decide for themselves; unclassified errors are retried
// only when they look like network or database contention failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Kind(err) != "internal" {
		return apperrors.IsRetryable(err)
	}

	errStr := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") {
		return true
	}

	// Database deadlock/lock errors (Postgres)
	if strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "40001") || // serialization_failure
		strings.Contains(errStr, "40p01") { // deadlock_detected
		return true
	}

	return false
}
