package services

import (
	"context"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state reported by an external generation
// service for one submitted job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusExpired   JobStatus = "expired"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusExpired, JobStatusCancelled:
		return true
	}
	return false
}

// PollResult is one observation of a generation job.
type PollResult struct {
	Status       JobStatus
	ResultURL    string
	ErrorMessage string
}

// PollFunc fetches the current state of a job from the external service.
type PollFunc func(ctx context.Context, jobID string) (PollResult, error)

// Poller drives submit-and-poll generation jobs to a terminal status on a
// fixed interval with a bounded attempt count. The external services expose
// no callbacks, so polling is the only completion signal.
type Poller struct {
	Interval      time.Duration
	MaxAttempts   int
	RetryAttempts int
	RetryDelay    time.Duration
}

func NewPoller(interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	return &Poller{
		Interval:      interval,
		MaxAttempts:   maxAttempts,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// Await polls jobID until a terminal status or the attempt ceiling.
// Network failures on an individual poll are retried RetryAttempts times
// before that poll counts as failed; polling itself continues. Quota,
// validation, and policy errors from a poll end the wait at once and are
// surfaced unwrapped. Reaching the
// ceiling yields a TimeoutError, distinct from a service-reported failure.
// Cancellation is honored at poll boundaries only.
func (p *Poller) Await(ctx context.Context, jobID string, poll PollFunc) (PollResult, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := p.pollOnce(ctx, jobID, poll)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{}, ctx.Err()
			}
			// Quota, validation, and policy errors are final for the
			// job; only network-level failures keep it waiting.
			if !IsTransient(err) {
				return PollResult{}, err
			}
			// A poll that failed even after retries is not a failure of
			// the job itself. Keep waiting unless attempts run out.
		} else if result.Status.Terminal() {
			return result, nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return PollResult{}, ctx.Err()
		case <-time.After(p.Interval):
		}
	}

	return PollResult{}, &TimeoutError{
		Message: fmt.Sprintf("generation job %s timed out after %d polls (%s interval)", jobID, p.MaxAttempts, p.Interval),
	}
}

func (p *Poller) pollOnce(ctx context.Context, jobID string, poll PollFunc) (PollResult, error) {
	var lastErr error
	for i := 0; i < p.RetryAttempts; i++ {
		result, err := poll(ctx, jobID)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return PollResult{}, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return PollResult{}, ctx.Err()
		}
		if i < p.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return PollResult{}, ctx.Err()
			case <-time.After(p.RetryDelay):
			}
		}
	}
	return PollResult{}, &TransientError{Message: fmt.Sprintf("polling job %s", jobID), Err: lastErr}
}
