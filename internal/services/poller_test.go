package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPoller(maxAttempts int) *Poller {
	return &Poller{
		Interval:      time.Millisecond,
		MaxAttempts:   maxAttempts,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestAwaitStopsOnTerminalStatus(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
	}{
		{"succeeded", JobStatusSucceeded},
		{"failed", JobStatusFailed},
		{"expired", JobStatusExpired},
		{"cancelled", JobStatusCancelled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			poll := func(ctx context.Context, jobID string) (PollResult, error) {
				calls++
				if calls < 3 {
					return PollResult{Status: JobStatusRunning}, nil
				}
				return PollResult{Status: tc.status, ResultURL: "https://cdn.example/out.mp4"}, nil
			}

			result, err := fastPoller(10).Await(context.Background(), "job-1", poll)
			if err != nil {
				t.Fatalf("Await returned error: %v", err)
			}
			if result.Status != tc.status {
				t.Errorf("Expected status %s, got %s", tc.status, result.Status)
			}
			if calls != 3 {
				t.Errorf("Expected 3 polls, got %d", calls)
			}
		})
	}
}

func TestAwaitCeilingYieldsTimeoutError(t *testing.T) {
	calls := 0
	poll := func(ctx context.Context, jobID string) (PollResult, error) {
		calls++
		return PollResult{Status: JobStatusRunning}, nil
	}

	_, err := fastPoller(5).Await(context.Background(), "job-2", poll)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if calls != 5 {
		t.Errorf("Expected exactly 5 polls, got %d", calls)
	}
}

func TestAwaitRetriesNetworkFailuresWithinOnePoll(t *testing.T) {
	calls := 0
	poll := func(ctx context.Context, jobID string) (PollResult, error) {
		calls++
		if calls <= 2 {
			return PollResult{}, errors.New("connection reset")
		}
		return PollResult{Status: JobStatusSucceeded}, nil
	}

	result, err := fastPoller(10).Await(context.Background(), "job-3", poll)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if result.Status != JobStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}
	if calls != 3 {
		t.Errorf("Expected 3 poll calls (2 network retries), got %d", calls)
	}
}

func TestAwaitContinuesAfterExhaustedPollRetries(t *testing.T) {
	calls := 0
	poll := func(ctx context.Context, jobID string) (PollResult, error) {
		calls++
		// First poll attempt fails all its retries; the next poll attempt
		// succeeds. The job is not failed by one bad poll.
		if calls <= 3 {
			return PollResult{}, errors.New("gateway unreachable")
		}
		return PollResult{Status: JobStatusSucceeded}, nil
	}

	result, err := fastPoller(10).Await(context.Background(), "job-4", poll)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if result.Status != JobStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}
}

func TestAwaitSurfacesNonRetryableErrorsAtOnce(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		match func(error) bool
	}{
		{
			"quota exhaustion",
			&QuotaError{Service: "videogen", Message: "allowance spent"},
			func(err error) bool { var qe *QuotaError; return errors.As(err, &qe) },
		},
		{
			"validation rejection",
			&ValidationError{Message: "prompt too long"},
			func(err error) bool { var ve *ValidationError; return errors.As(err, &ve) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			poll := func(ctx context.Context, jobID string) (PollResult, error) {
				calls++
				return PollResult{}, tc.err
			}

			_, err := fastPoller(5).Await(context.Background(), "job-q", poll)
			if !tc.match(err) {
				t.Fatalf("Expected the poll error surfaced unwrapped, got %v", err)
			}
			var te *TimeoutError
			if errors.As(err, &te) {
				t.Errorf("Final error must not degrade to a timeout: %v", err)
			}
			if calls != 1 {
				t.Errorf("Expected a single poll call, got %d", calls)
			}
		})
	}
}

func TestAwaitHonorsCancellationAtPollBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	poll := func(ctx context.Context, jobID string) (PollResult, error) {
		cancel()
		return PollResult{Status: JobStatusRunning}, nil
	}

	p := &Poller{Interval: time.Hour, MaxAttempts: 10, RetryAttempts: 3, RetryDelay: time.Millisecond}
	_, err := p.Await(ctx, "job-5", poll)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	if JobStatusRunning.Terminal() || JobStatusPending.Terminal() {
		t.Error("running/pending must not be terminal")
	}
	for _, s := range []JobStatus{JobStatusSucceeded, JobStatusFailed, JobStatusExpired, JobStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
