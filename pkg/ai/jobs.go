package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
)

// JobStatus is the lifecycle status reported by an asynchronous job service
type JobStatus string

const (
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
	JobStatusTimedOut   JobStatus = "TIMED_OUT"
)

// IsTerminal reports whether the job will not change status anymore
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	}
	return false
}

// JobState is one status observation of a remote job
type JobState struct {
	ID     string          `json:"id"`
	Status JobStatus       `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobBackend is an asynchronous compute service
type JobBackend interface {
	Name() string
	Submit(ctx context.Context, input interface{}) (string, error)
	Status(ctx context.Context, jobID string) (*JobState, error)
}

// JobClient submits work to a JobBackend and waits for it to finish
type JobClient struct {
	backend      JobBackend
	pollInterval time.Duration
	maxBackoff   time.Duration
	logger       *zap.Logger
}

// NewJobClient creates a polling client. pollInterval is the steady-state poll period;
// after transient poll errors the wait grows exponentially up to maxBackoff.
func NewJobClient(backend JobBackend, pollInterval, maxBackoff time.Duration, logger *zap.Logger) *JobClient {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if maxBackoff < pollInterval {
		maxBackoff = 12 * pollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobClient{
		backend:      backend,
		pollInterval: pollInterval,
		maxBackoff:   maxBackoff,
		logger:       logger,
	}
}

// Service returns the backend name
func (c *JobClient) Service() string {
	return c.backend.Name()
}

// Submit sends input to the backend and returns the remote job id
func (c *JobClient) Submit(ctx context.Context, input interface{}) (string, error) {
	jobID, err := c.backend.Submit(ctx, input)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(jobID) == "" {
		return "", &apperrors.SubmissionError{Service: c.backend.Name(), Message: "service returned no job id"}
	}

	c.logger.Info("remote job submitted",
		zap.String("service", c.backend.Name()),
		zap.String("remote_job_id", jobID),
	)
	return jobID, nil
}

// AwaitResult polls jobID until it reaches a terminal status or maxWait elapses.
// COMPLETED returns the output payload; FAILED, CANCELLED and TIMED_OUT return a
// FailureError; exhausting maxWait returns a TimeoutError. Transient poll errors
// back off exponentially; other errors are returned as is.
func (c *JobClient) AwaitResult(ctx context.Context, jobID string, maxWait time.Duration) (json.RawMessage, error) {
	service := c.backend.Name()
	start := time.Now()
	deadline := start.Add(maxWait)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInterval
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	polls := 0
	for {
		polls++
		state, err := c.backend.Status(ctx, jobID)

		var wait time.Duration
		switch {
		case err == nil:
			bo.Reset()
			switch state.Status {
			case JobStatusCompleted:
				c.logger.Info("remote job completed",
					zap.String("service", service),
					zap.String("remote_job_id", jobID),
					zap.Int("polls", polls),
					zap.Duration("elapsed", time.Since(start)),
				)
				return state.Output, nil
			case JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
				msg := strings.TrimSpace(state.Error)
				if msg == "" {
					msg = "job ended with status " + string(state.Status)
				}
				return nil, &apperrors.FailureError{Service: service, JobID: jobID, Message: msg}
			}
			wait = c.pollInterval

		case apperrors.IsRetryable(err):
			wait = bo.NextBackOff()
			c.logger.Warn("remote job poll failed, backing off",
				zap.String("service", service),
				zap.String("remote_job_id", jobID),
				zap.Duration("next_poll", wait),
				zap.Error(err),
			)

		default:
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &apperrors.TimeoutError{Service: service, JobID: jobID, Waited: time.Since(start)}
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
