package gmail

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

const (
	maxRetries   = 3
	initialDelay = time.Second
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// isRetryable reports whether err is a transient Gmail API failure:
// 429, 500, 502, 503, or a 403 whose reason is a rate limit.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if rateLimitReasons[item.Reason] {
				return true
			}
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs fn, retrying transient failures with a doubling delay.
func withRetry[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	delay := initialDelay
	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil || attempt >= maxRetries || !isRetryable(err) {
			return res, err
		}
		c.logger.Warn("Gmail request failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
		delay *= 2
	}
}
