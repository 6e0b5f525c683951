package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"appraiserai/internal/util"
)

const maxErrorBodyBytes = 64 << 10

// RetryPolicy bounds attempts on 429 and 5xx responses.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy allows three attempts with 1s..8s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MinBackoff: time.Second, MaxBackoff: 8 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	return p
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// transport is the HTTP plumbing shared by the vision clients.
type transport struct {
	name       string
	httpClient *http.Client
	policy     RetryPolicy
	sleep      Sleeper
	logBodies  bool
}

func newTransport(name string, timeout time.Duration, policy RetryPolicy, sleep Sleeper, logBodies bool) transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return transport{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy.normalized(),
		sleep:      sleep,
		logBodies:  logBodies,
	}
}

// errorMessageFunc extracts the provider's error message from a failed response body.
type errorMessageFunc func(body []byte) string

// do sends the request built by newReq, retrying 429 and 5xx responses.
// It returns the body of the first 2xx response.
func (t transport) do(ctx context.Context, newReq func(context.Context) (*http.Request, error), errorMessage errorMessageFunc) ([]byte, error) {
	logger := util.LoggerFromContext(ctx)
	var lastErr error
	for attempt := 1; attempt <= t.policy.MaxAttempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		started := time.Now()
		resp, err := t.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = newError(KindUpstream, 0, ErrUpstream, fmt.Sprintf("%s request failed: %v", t.name, err))
			if !isRetryableNetErr(err) || attempt == t.policy.MaxAttempts {
				return nil, lastErr
			}
			if err := t.wait(ctx, attempt, nil); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if t.logBodies {
			logger.Debug("vision api response",
				"provider", t.name,
				"attempt", attempt,
				"status", resp.StatusCode,
				"duration_ms", time.Since(started).Milliseconds(),
				"body_bytes", len(body),
			)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, newError(KindInvalidResponse, resp.StatusCode, ErrInvalidResponse, fmt.Sprintf("read %s response: %v", t.name, readErr))
			}
			return body, nil
		}

		message := ""
		if errorMessage != nil {
			message = strings.TrimSpace(errorMessage(truncate(body, maxErrorBodyBytes)))
		}
		if message == "" {
			message = fmt.Sprintf("%s api error: %s", t.name, resp.Status)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, newError(KindCredential, resp.StatusCode, ErrInvalidCredential, message)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = newError(KindRateLimited, resp.StatusCode, ErrRateLimited, message)
		case resp.StatusCode >= 500:
			lastErr = newError(KindUpstream, resp.StatusCode, ErrUpstream, message)
		default:
			return nil, newError(KindUpstream, resp.StatusCode, ErrUpstream, message)
		}

		if attempt == t.policy.MaxAttempts {
			break
		}
		logger.Warn("vision api retry",
			"provider", t.name,
			"attempt", attempt,
			"status", resp.StatusCode,
			"retry_after", resp.Header.Get("Retry-After"),
		)
		if err := t.wait(ctx, attempt, resp.Header); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// wait sleeps for Retry-After when the server sent one, else for the
// exponential backoff of the given attempt.
func (t transport) wait(ctx context.Context, attempt int, header http.Header) error {
	delay := backoffWithJitter(attempt-1, t.policy.MinBackoff, t.policy.MaxBackoff)
	if header != nil {
		if ra, ok := RetryAfter(header.Get("Retry-After"), time.Now()); ok {
			delay = min(ra, t.maxRetryAfter())
		}
	}
	return t.sleep(ctx, delay)
}

// maxRetryAfter caps a server-requested delay at the larger of the backoff
// ceiling and the per-attempt timeout.
func (t transport) maxRetryAfter() time.Duration {
	return max(t.policy.MaxBackoff, t.httpClient.Timeout)
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var rng = struct {
	mu sync.Mutex
	r  *rand.Rand
}{
	r: rand.New(rand.NewSource(time.Now().UnixNano())),
}

// backoffWithJitter doubles min per attempt up to max and returns a delay
// in [backoff/2, backoff].
func backoffWithJitter(attempt int, min, max time.Duration) time.Duration {
	backoff := min
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			backoff = max
			break
		}
	}
	half := backoff / 2
	rng.mu.Lock()
	n := rng.r.Int63n(int64(backoff-half) + 1)
	rng.mu.Unlock()
	return half + time.Duration(n)
}

// RetryAfter parses a Retry-After header given as seconds or an HTTP date.
func RetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
