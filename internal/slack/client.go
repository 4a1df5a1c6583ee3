package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"relaypoint/internal/security"
	"relaypoint/internal/types"
)

// maxResponseBodyRead limits how much of a response body is read for error
// messages and soft-failure detection.
const maxResponseBodyRead = 4096

// RetryPolicy configures retry behavior for Slack API calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for webhook delivery.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

var _ types.Deliverer = (*Client)(nil)

// Client delivers dispatch requests to Slack-compatible incoming webhooks.
// All outbound calls go through a shared circuit breaker and retry loop;
// the dispatch core only sees the mapped AppError taxonomy.
type Client struct {
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	logger      types.Logger
	clock       types.Clock
	sleepFn     func(time.Duration)
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client. Intended for tests; production
// clients keep the SSRF-safe default.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleepFunc overrides the sleep between retries, for tests.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithClock overrides the clock, for tests.
func WithClock(clock types.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates a Client with an SSRF-safe HTTP transport. Webhook URLs
// are user-supplied, so the unsafe default transport is never acceptable
// here.
func NewClient(
	timeout time.Duration,
	maxRedirects int,
	retryPolicy RetryPolicy,
	userAgent string,
	logger types.Logger,
	opts ...ClientOption,
) (*Client, error) {
	httpClient, err := security.NewSafeHTTPClient(timeout, maxRedirects)
	if err != nil {
		return nil, fmt.Errorf("slack client: failed to create safe HTTP client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "slack-webhook",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		httpClient:  httpClient,
		breaker:     breaker,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		logger:      logger,
		clock:       types.RealClock{},
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deliver posts the dispatch request to its webhook URL. The payload rides
// as a form body (payload=<json>), the format Slack-compatible webhook
// receivers accept universally.
func (c *Client) Deliver(ctx context.Context, req types.DispatchRequest) (*types.DeliveryAck, error) {
	msg := BuildMessage(req)
	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode webhook payload", err)
	}

	form := url.Values{"payload": {string(encoded)}}
	resp, err := c.postForm(ctx, req.WebhookURL, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Slack reports some failures inside a 200 response.
		if soft := softFailure(body); soft != "" {
			return nil, types.NewAppError(types.ErrCodeDeliveryRejected,
				fmt.Sprintf("webhook rejected payload: %s", soft), nil)
		}
		return &types.DeliveryAck{
			ProviderMessageID: providerMessageID(resp),
			DeliveredAt:       c.clock.Now(),
		}, nil
	}

	return nil, c.statusError(resp.StatusCode, body)
}

// postForm executes a form-encoded POST through the circuit breaker with
// retries on 429 and 5xx, honoring Retry-After.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	encoded := form.Encode()

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidWebhook, "failed to build webhook request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if traceID := types.GetTraceID(ctx); traceID != "" {
			req.Header.Set("X-Trace-Id", traceID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count as failures for the breaker.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// SSRF blocks are permanent; never retry them.
		if security.IsSSRFError(err) {
			break
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		defer lastResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(lastResp.Body, maxResponseBodyRead))
		return nil, c.statusError(lastResp.StatusCode, body)
	}

	return nil, c.transportError(lastErr)
}

// computeBackoff honors Retry-After when present, otherwise exponential
// backoff with full jitter clamped to [MinWait, MaxWait].
func (c *Client) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > c.retryPolicy.MaxWait {
					wait = c.retryPolicy.MaxWait
				}
				return wait
			}
			if t, err := http.ParseTime(header); err == nil {
				wait := t.Sub(c.clock.Now())
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				if wait > c.retryPolicy.MaxWait {
					wait = c.retryPolicy.MaxWait
				}
				return wait
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	if max := float64(c.retryPolicy.MaxWait); base > max {
		base = max
	}
	min := float64(c.retryPolicy.MinWait)
	if base <= min {
		return c.retryPolicy.MinWait
	}
	return time.Duration(min + rand.Float64()*(base-min))
}

// statusError maps an HTTP status to the delivery error taxonomy.
func (c *Client) statusError(status int, body []byte) *types.AppError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeDeliveryAuth,
			fmt.Sprintf("webhook authorization failed (%d)", status), nil)
	case status == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeDeliveryRateLimited,
			"webhook rate limit exceeded after retries", nil)
	case status >= 500:
		return types.NewAppError(types.ErrCodeUpstreamSlack,
			fmt.Sprintf("webhook upstream returned %d after retries", status), nil)
	default:
		return types.NewAppError(types.ErrCodeDeliveryRejected,
			fmt.Sprintf("webhook rejected request (%d): %s", status, truncate(body)), nil)
	}
}

// transportError maps network-level failures.
func (c *Client) transportError(err error) *types.AppError {
	if security.IsSSRFError(err) {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "webhook URL blocked by SSRF protection", err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamSlack, "circuit breaker open; webhook upstream unavailable", err)
	}
	return types.NewAppError(types.ErrCodeDeliveryNetwork, "webhook request failed", err)
}

// softFailure inspects a 2xx body for Slack's in-band failure reporting.
// Incoming webhooks answer a plain "ok"; Web API endpoints answer JSON with
// an "ok" boolean and an "error" string.
func softFailure(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "ok" {
		return ""
	}

	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		// Not JSON and not "ok": some compatible receivers answer with
		// arbitrary text on success, so treat it as delivered.
		return ""
	}
	if apiResp.OK {
		return ""
	}
	if apiResp.Error != "" {
		return apiResp.Error
	}
	return "ok=false"
}

// providerMessageID extracts the provider request ID from the response, or
// synthesizes one for traceability.
func providerMessageID(resp *http.Response) string {
	if reqID := resp.Header.Get("X-Slack-Req-Id"); reqID != "" {
		return reqID
	}
	if reqID := resp.Header.Get("X-Request-Id"); reqID != "" {
		return reqID
	}
	return fmt.Sprintf("webhook-%d-%s", resp.StatusCode, uuid.New().String()[:8])
}

func truncate(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
