package services

import "errors"

// Error classes for pipeline failures. Handlers map these to HTTP codes and
// the worker pool uses them to decide whether a failed job is re-queued.

// ValidationError covers input problems: missing prerequisite artifacts,
// empty narration text, invalid language. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// QuotaError reports external service allowance exhaustion. Surfaced with
// remediation guidance, never retried automatically.
type QuotaError struct {
	Service string
	Message string
}

func (e *QuotaError) Error() string {
	return e.Service + " quota exhausted: " + e.Message + " (check the provider account allowance before retrying)"
}

// ContentPolicyError marks a generation rejected by the provider's content
// safety filter. Only the clip generator handles it specially.
type ContentPolicyError struct {
	Message string
}

func (e *ContentPolicyError) Error() string { return e.Message }

// TransientError wraps network-level failures that survived the bounded
// per-call retry.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError reports that a generation job never reached a terminal
// status within the polling attempt ceiling. Distinct from a
// service-reported failure.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError rejects a duplicate in-flight generation for the same
// (segment, language).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsContentPolicy(err error) bool {
	var ce *ContentPolicyError
	return errors.As(err, &ce)
}
