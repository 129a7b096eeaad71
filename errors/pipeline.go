package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"time"
)

// maxReasonLength bounds the failure reason exposed to API clients
const maxReasonLength = 500

// SubmissionError: an external service rejected the request (bad input, auth, unknown endpoint).
type SubmissionError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s rejected request (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s rejected request: %s", e.Service, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientError: network failure, timeout or 5xx. Retryable with backoff.
type TransientError struct {
	Service string
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s temporarily unavailable: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s temporarily unavailable: %s", e.Service, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FailureError: the external service reported that the task itself failed.
type FailureError struct {
	Service string
	JobID   string
	Message string
}

func (e *FailureError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s job %s failed: %s", e.Service, e.JobID, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Service, e.Message)
}

// AssemblyError: an internal invariant was violated while combining results.
type AssemblyError struct {
	Message string
}

func (e *AssemblyError) Error() string {
	return "assembly error: " + e.Message
}

// TimeoutError: a remote job did not reach a terminal status within the wait budget.
// The job may still be running remotely.
type TimeoutError struct {
	Service string
	JobID   string
	Waited  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s job %s not finished after %s", e.Service, e.JobID, e.Waited.Round(time.Second))
}

// NewAssemblyError builds an AssemblyError with a formatted message
func NewAssemblyError(format string, args ...interface{}) error {
	return &AssemblyError{Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is worth retrying with backoff
func IsRetryable(err error) bool {
	var transient *TransientError
	return stdErrors.As(err, &transient)
}

// IsTimeout reports whether err is a wait-budget timeout of a remote job
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return stdErrors.As(err, &timeout)
}

// Kind returns the taxonomy name of err, or "internal" for unclassified errors
func Kind(err error) string {
	var (
		submission *SubmissionError
		transient  *TransientError
		failure    *FailureError
		assembly   *AssemblyError
		timeout    *TimeoutError
	)
	switch {
	case stdErrors.As(err, &submission):
		return "submission"
	case stdErrors.As(err, &transient):
		return "transient"
	case stdErrors.As(err, &failure):
		return "failure"
	case stdErrors.As(err, &assembly):
		return "assembly"
	case stdErrors.As(err, &timeout):
		return "timeout"
	default:
		return "internal"
	}
}

// Reason renders a bounded, human-readable failure reason for err.
// Unclassified errors are reported generically.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var (
		submission *SubmissionError
		transient  *TransientError
		failure    *FailureError
		assembly   *AssemblyError
		timeout    *TimeoutError
		reason     string
	)
	switch {
	case stdErrors.As(err, &submission):
		reason = fmt.Sprintf("%s rejected the request: %s", submission.Service, submission.Message)
	case stdErrors.As(err, &transient):
		reason = fmt.Sprintf("%s unavailable after retries: %s", transient.Service, transient.Message)
	case stdErrors.As(err, &failure):
		reason = fmt.Sprintf("%s reported failure: %s", failure.Service, failure.Message)
	case stdErrors.As(err, &assembly):
		reason = "result assembly failed: " + assembly.Message
	case stdErrors.As(err, &timeout):
		reason = fmt.Sprintf("%s did not finish in time", timeout.Service)
	default:
		reason = "internal processing error"
	}

	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength] + "..."
	}
	return reason
}
