package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/satwatch/satwatch-go/internal/errors"
)

// failureClass buckets request outcomes for the retry policy.
type failureClass int

const (
	classOK          failureClass = iota
	classTransient                // timeouts, resets, 5xx: retry with backoff
	classRateLimited              // 429: retry honoring Retry-After
	classAuth                     // 401: one token refresh, then retry once
	classPermanent                // other 4xx: fail the cycle for this zone
)

// RetryPolicy is the unified retry/backoff configuration applied by both the
// catalog searcher and the image fetcher.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRetryPolicy returns the default policy with the configured attempt cap.
// maxRetries counts retries, so the total number of attempts is maxRetries+1.
func NewRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     maxRetries + 1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// classifyStatus maps an HTTP status code to a failure class.
func classifyStatus(status int) failureClass {
	switch {
	case status >= 200 && status < 300:
		return classOK
	case status == http.StatusUnauthorized:
		return classAuth
	case status == http.StatusTooManyRequests:
		return classRateLimited
	case status >= 500:
		return classTransient
	default:
		return classPermanent
	}
}

// retryAfter extracts a Retry-After delay from a 429 response. Only the
// delta-seconds form is parsed; the HTTP-date form falls back to the
// computed backoff delay.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// doWithRetry executes an authenticated request built by build, applying the
// retry policy. build is called once per attempt so request bodies can be
// re-created. On success the response body is open and owned by the caller.
func (c *Client) doWithRetry(ctx context.Context, operation string, build func(token string) (*http.Request, error)) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval
	bo.Reset()

	authRetried := false
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component("provider").
				Category(errors.CategoryTimeout).
				Context("operation", operation).
				Build()
		}

		token, err := c.auth.Token(ctx)
		if err != nil {
			// Credential rejection is not retryable here; transient token
			// exchange failures consume a regular attempt.
			if errors.Is(err, ErrAuthRejected) {
				return nil, err
			}
			lastErr = err
			if attempt == c.retry.MaxAttempts || !c.sleep(ctx, bo.NextBackOff()) {
				return nil, lastErr
			}
			continue
		}

		req, err := build(token)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errors.New(err).
				Component("provider").
				Category(errors.CategoryNetwork).
				Context("operation", operation).
				Build()
			c.logger.Warn("Provider request failed", "operation", operation,
				"attempt", attempt, "error", err)
			if attempt == c.retry.MaxAttempts || !c.sleep(ctx, bo.NextBackOff()) {
				return nil, lastErr
			}
			continue
		}

		switch classifyStatus(resp.StatusCode) {
		case classOK:
			return resp, nil

		case classAuth:
			resp.Body.Close()
			if authRetried {
				return nil, errors.New(fmt.Errorf("request unauthorized after token refresh: %w", ErrAuthRejected)).
					Component("provider").
					Category(errors.CategoryAuth).
					Context("operation", operation).
					Build()
			}
			// The cached token was rejected even though it looked valid.
			// Refresh once and retry immediately without consuming backoff.
			authRetried = true
			c.auth.Invalidate()
			c.logger.Info("Provider answered 401, refreshing token", "operation", operation)
			attempt--
			continue

		case classRateLimited:
			delay := bo.NextBackOff()
			if after, ok := retryAfter(resp); ok {
				delay = after
			}
			resp.Body.Close()
			lastErr = errors.New(ErrRateLimited).
				Component("provider").
				Category(errors.CategoryRateLimit).
				Context("operation", operation).
				Build()
			c.logger.Warn("Provider rate limited", "operation", operation,
				"attempt", attempt, "delay", delay)
			if attempt == c.retry.MaxAttempts || !c.sleep(ctx, delay) {
				return nil, lastErr
			}
			continue

		case classTransient:
			status := resp.StatusCode
			resp.Body.Close()
			lastErr = errors.Newf("provider answered %d", status).
				Component("provider").
				Category(errors.CategoryNetwork).
				Context("operation", operation).
				Context("status", status).
				Build()
			c.logger.Warn("Provider server error", "operation", operation,
				"attempt", attempt, "status", status)
			if attempt == c.retry.MaxAttempts || !c.sleep(ctx, bo.NextBackOff()) {
				return nil, lastErr
			}
			continue

		default: // classPermanent
			status := resp.StatusCode
			resp.Body.Close()
			return nil, errors.Newf("provider rejected request with status %d", status).
				Component("provider").
				Category(errors.CategoryNetwork).
				Context("operation", operation).
				Context("status", status).
				Build()
		}
	}

	if lastErr == nil {
		lastErr = errors.Newf("retries exhausted for %s", operation).
			Component("provider").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil, lastErr
}

// sleep waits for the given delay or until the context is done. Returns false
// when the context was cancelled.
func (c *Client) sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
