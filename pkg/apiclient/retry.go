package apiclient

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy configures exponential backoff retry behaviour.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches §4.6: retry only 408/429/500/502/503/504,
// honouring Retry-After when present.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Retry runs fn up to policy.MaxAttempts times, retrying only on
// transport errors or a retryable status code, backing off exponentially
// (and honouring a Retry-After response header when present) between
// attempts.
func Retry(ctx context.Context, policy RetryPolicy, fn func() (*Response, error)) (*Response, error) {
	var lastResp *Response
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		resp, err := fn()
		lastResp, lastErr = resp, err

		if err == nil && (resp == nil || !retryableStatus[resp.StatusCode]) {
			return resp, nil
		}
		if err != nil && !isRetryableErr(err) {
			return resp, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := retryDelay(policy, attempt, lastResp)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastResp, ctx.Err()
		}
	}

	return lastResp, lastErr
}

func retryDelay(policy RetryPolicy, attempt int, resp *Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	d := policy.BaseDelay << attempt
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}

func isRetryableErr(err error) bool {
	return isOffline(err) // KindUpstream transport errors are retryable
}
