package spclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// RequestDoer executes a single HTTP request. *gosip.SPClient satisfies it,
// so the executor layers retry semantics over the authenticated transport.
type RequestDoer interface {
	Execute(req *http.Request) (*http.Response, error)
}

// RetryPolicy controls how throttled calls are retried. MaxRetries is the
// number of waits performed before giving up; the schedule is consulted when
// the service does not say how long to wait, reusing its last entry once
// exhausted.
type RetryPolicy struct {
	Schedule   []time.Duration
	MaxRetries int
}

// DefaultRetrySchedule grows geometrically and caps at 32 seconds.
var DefaultRetrySchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// DefaultRetryPolicy returns a policy with the standard backoff schedule.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{Schedule: DefaultRetrySchedule, MaxRetries: maxRetries}
}

// ThrottleExecutor executes requests against a RequestDoer, honoring
// SharePoint throttling signals (429 and 503 with Retry-After) and pacing
// outgoing calls with an optional client-side rate limiter.
//
// Budget exhaustion is not an error at this layer: the last throttled
// response is handed back to the caller, which knows whether a degraded
// answer is usable.
type ThrottleExecutor struct {
	transport RequestDoer
	policy    RetryPolicy
	limiter   *rate.Limiter
	logger    *logging.Logger

	retries atomic.Int64
}

// NewThrottleExecutor creates an executor. requestsPerSecond of 0 disables
// client-side pacing.
func NewThrottleExecutor(transport RequestDoer, policy RetryPolicy, requestsPerSecond float64, logger *logging.Logger) *ThrottleExecutor {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ThrottleExecutor{
		transport: transport,
		policy:    policy,
		limiter:   limiter,
		logger:    logger.WithComponent("throttle_executor"),
	}
}

// RetryCount returns the number of throttle waits performed so far.
func (e *ThrottleExecutor) RetryCount() int64 {
	return e.retries.Load()
}

// Do executes the request produced by build, retrying on throttled responses.
// The request is rebuilt for every attempt so body readers are fresh. The
// context interrupts both pacing and backoff waits.
func (e *ThrottleExecutor) Do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := e.transport.Execute(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if !isThrottled(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= e.policy.MaxRetries {
			// Budget spent. Callers see the throttled response itself.
			e.logger.Warn("Throttle retry budget exhausted",
				"status", resp.StatusCode,
				"attempts", attempt+1,
				"url", req.URL.String())
			return resp, nil
		}

		delay := e.retryDelay(resp, attempt)
		discardBody(resp)
		e.retries.Add(1)
		e.logger.Throttle("Throttled by service, backing off",
			"status", resp.StatusCode,
			"delay", delay.String(),
			"attempt", attempt+1)

		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func isThrottled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryDelay prefers the service-provided Retry-After header, which may be
// either delta-seconds or an HTTP date, then falls back to the schedule.
func (e *ThrottleExecutor) retryDelay(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if when, err := http.ParseTime(v); err == nil {
			if d := time.Until(when); d > 0 {
				return d
			}
			return 0
		}
	}
	if len(e.policy.Schedule) == 0 {
		return time.Second
	}
	if attempt >= len(e.policy.Schedule) {
		attempt = len(e.policy.Schedule) - 1
	}
	return e.policy.Schedule[attempt]
}

func discardBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
