package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"geoquiz/pkg/cache"
	"geoquiz/pkg/tracker"
	"geoquiz/pkg/version"
)

var (
	defaultUserAgent = fmt.Sprintf("geoquiz/%s (+https://github.com/geoquiz/geoquiz)", version.Version)

	// ErrMaxRetries indicates every attempt hit a retryable failure.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// StatusError is returned for non-retryable HTTP error responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d", e.Code)
}

// Client handles HTTP requests with queuing, rate limiting, caching and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	userAgent  string
	logger     *slog.Logger

	maxAttempts int
	baseDelay   time.Duration

	// Queues and limiters per provider (domain)
	queues   map[string]chan job
	limits   map[string]rate.Limit
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps requests per second for a provider. Providers without a
// limit run unthrottled apart from their sequential queue.
func WithRateLimit(provider string, perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limits[provider] = rate.Limit(perSecond)
		}
	}
}

// WithLogger routes request logs to l, typically logging.RequestLogger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets the attempt count and base delay of the in-request retry loop.
func WithRetries(attempts int, base time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if base > 0 {
			c.baseDelay = base
		}
	}
}

// WithBackoff sets the per-provider cooldown range applied after failures.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		if base > 0 && maxDelay >= base {
			c.backoff = NewProviderBackoff(base, maxDelay)
		}
	}
}

// New creates a new Client. c may be nil to disable caching.
func New(c cache.Cacher, t *tracker.Tracker, opts ...Option) *Client {
	cl := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		cache:       c,
		tracker:     t,
		backoff:     NewProviderBackoff(time.Second, time.Minute),
		userAgent:   defaultUserAgent,
		logger:      slog.Default(),
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		queues:      make(map[string]chan job),
		limits:      make(map[string]rate.Limit),
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.tracker == nil {
		cl.tracker = tracker.New()
	}
	return cl
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			c.logger.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		c.logger.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan})

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// ReportEmpty records that a successful response for u carried no results.
func (c *Client) ReportEmpty(u string) {
	if parsed, err := url.Parse(u); err == nil {
		c.tracker.TrackAPIZero(normalizeProvider(parsed.Host))
	}
}

func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	if strings.HasSuffix(host, ".openstreetmap.org") || host == "openstreetmap.org" {
		return "nominatim"
	}
	if strings.HasPrefix(host, "nominatim.") {
		return "nominatim"
	}
	if host == "maps.googleapis.com" || host == "places.googleapis.com" {
		return "google-maps"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		limiter := rate.NewLimiter(rate.Inf, 1)
		if l, ok := c.limits[provider]; ok {
			limiter = rate.NewLimiter(l, 1)
		}
		c.limiters[provider] = limiter
		go c.worker(provider, q, limiter)
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job, limiter *rate.Limiter) {
	for j := range q {
		ctx := j.req.Context()
		if ctx.Err() != nil {
			c.logger.Debug("Job dropped from queue (context expired)", "provider", provider, "error", ctx.Err())
			j.respChan <- jobResult{err: ctx.Err()}
			continue
		}

		if err := c.backoff.Wait(ctx, provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}

		// Apply User-Agent (Default if not provided)
		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", c.userAgent)
		}

		body, err := c.executeWithBackoff(j.req)

		switch {
		case err == nil:
			c.tracker.TrackAPISuccess(provider)
			c.backoff.RecordSuccess(provider)
			if j.cacheKey != "" && c.cache != nil {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					c.logger.Error("Failed to cache response", "url", redact(j.req.URL), "error", err)
				}
			}
		case ctx.Err() != nil:
			// Caller gave up; not the provider's fault.
		default:
			c.tracker.TrackAPIFailure(provider)
			var se *StatusError
			if errors.Is(err, ErrMaxRetries) || !errors.As(err, &se) {
				d := c.backoff.RecordFailure(provider)
				c.logger.Warn("Provider cooling down", "provider", provider, "retry_in", d.Round(time.Millisecond), "error", err)
			}
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		c.logger.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			c.logger.Warn("Request failed, retrying", "url", redact(req.URL), "attempt", attempt+1, "error", err)
			if err := c.sleep(req.Context(), attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			c.logger.Warn("API Backoff", "status", resp.StatusCode, "url", redact(req.URL), "attempt", attempt+1)
			if err := c.sleep(req.Context(), attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: redact(req.URL)}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, ErrMaxRetries
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	d := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// redact strips credentials from a URL before it is logged.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		cp := *u
		cp.RawQuery = q.Encode()
		return cp.String()
	}
	return u.String()
}
