package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// retryFixed runs fn up to attempts times with a fixed delay between
// tries. Validation, quota, and content-policy errors are never retried;
// everything else is treated as transient.
func retryFixed(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &TransientError{Message: fmt.Sprintf("giving up after %d attempts", attempts), Err: lastErr}
}

func retryable(err error) bool {
	var ve *ValidationError
	var qe *QuotaError
	var ce *ContentPolicyError
	if errors.As(err, &ve) || errors.As(err, &qe) || errors.As(err, &ce) {
		return false
	}
	return true
}

// checkProviderStatus maps a provider HTTP response to the error taxonomy.
// The body is only consumed on error statuses.
func checkProviderStatus(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Message: service + " rejected request: " + msg}
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
		return &QuotaError{Service: service, Message: msg}
	default:
		return fmt.Errorf("%s returned %d: %s", service, resp.StatusCode, msg)
	}
}
