// Package fetch is the shared outbound HTTP client used by every provider
// and by the pack updater. It serializes requests per client, paces them,
// and can pass bodies through the durable KV cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
)

// KV is the cache surface the fetcher needs; the durable kvcache.Store
// satisfies it.
type KV interface {
	GetText(ctx context.Context, key string) (string, bool)
	SetText(ctx context.Context, key, value string, ttl time.Duration) error
}

// Options configures the fetcher.
type Options struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MinInterval    time.Duration // politeness pace between outbound requests
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	Cache          KV
	HTTPClient     *http.Client
}

const (
	defaultTimeout        = 30 * time.Second
	defaultMinInterval    = 500 * time.Millisecond
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultUserAgent      = "programista/0.1 (+desktop)"
	defaultAcceptLanguage = "pl,en;q=0.8"
)

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if strings.TrimSpace(opts.AcceptLanguage) == "" {
		opts.AcceptLanguage = defaultAcceptLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return opts
}

// Client performs GET/POST text requests. All outbound traffic of one Client
// is serialized by a mutex and paced by a rate limiter to stay polite to
// upstream origins.
type Client struct {
	httpClient     *http.Client
	cache          KV
	limiter        *rate.Limiter
	mu             sync.Mutex
	userAgent      string
	acceptLanguage string
	maxRetries     int
	backoff        time.Duration
	maxBackoff     time.Duration
	rnd            *rand.Rand
	logger         zerolog.Logger
}

// ReqOpt carries per-request cache and timeout settings.
type ReqOpt struct {
	CacheKey string        // empty disables the cache passthrough
	TTL      time.Duration // body stored only when positive
	Force    bool          // skip the cache read, still writes on success
	Timeout  time.Duration // per-request override
}

// New builds a Client from opts.
func New(opts Options) *Client {
	nopts := normalizeOptions(opts)

	httpClient := nopts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: nopts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		httpClient:     httpClient,
		cache:          nopts.Cache,
		limiter:        rate.NewLimiter(rate.Every(nopts.MinInterval), 1),
		userAgent:      nopts.UserAgent,
		acceptLanguage: nopts.AcceptLanguage,
		maxRetries:     nopts.MaxRetries,
		backoff:        nopts.Backoff,
		maxBackoff:     nopts.MaxBackoff,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
		logger:         log.WithComponent("fetch"),
	}
}

// GetText fetches url as text, honoring the cache passthrough in opt.
func (c *Client) GetText(ctx context.Context, rawURL string, opt ReqOpt) (string, error) {
	return c.fetchText(ctx, http.MethodGet, rawURL, nil, opt)
}

// PostFormText posts form to url and returns the body as text, honoring the
// cache passthrough in opt.
func (c *Client) PostFormText(ctx context.Context, rawURL string, form url.Values, opt ReqOpt) (string, error) {
	return c.fetchText(ctx, http.MethodPost, rawURL, form, opt)
}

func (c *Client) fetchText(ctx context.Context, method, rawURL string, form url.Values, opt ReqOpt) (string, error) {
	if opt.CacheKey != "" && c.cache != nil {
		if opt.Force {
			metrics.IncFetchCache("bypass")
		} else if cached, ok := c.cache.GetText(ctx, opt.CacheKey); ok {
			metrics.IncFetchCache("hit")
			return cached, nil
		} else {
			metrics.IncFetchCache("miss")
		}
	}

	// One request at a time per client; upstreams see a single polite caller.
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := c.do(ctx, method, rawURL, form, opt.Timeout)
	if err != nil {
		return "", err
	}

	if opt.CacheKey != "" && opt.TTL > 0 && c.cache != nil {
		if err := c.cache.SetText(ctx, opt.CacheKey, body, opt.TTL); err != nil {
			c.logger.Warn().Err(err).Str("key", opt.CacheKey).Msg("cache write failed")
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values, timeout time.Duration) (string, error) {
	maxAttempts := c.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		body, status, err := c.attempt(ctx, method, rawURL, form, timeout)
		outcome := statusClass(status)
		if err != nil && status == 0 {
			outcome = "error"
		}
		metrics.IncFetchRequest(method, outcome)

		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == maxAttempts || !shouldRetry(status, err) {
			break
		}
		wait := c.backoffFor(attempt)
		c.logger.Debug().
			Str("url", rawURL).
			Int("attempt", attempt).
			Int("status", status).
			Dur("backoff", wait).
			Msg("retrying request")
		if err := sleepWithContext(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// attempt runs one HTTP exchange. status is 0 when the transport failed.
func (c *Client) attempt(ctx context.Context, method, rawURL string, form url.Values, timeout time.Duration) (string, int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.acceptLanguage)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch: %s %s: %w", method, rawURL, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", res.StatusCode, fmt.Errorf("fetch: read body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", res.StatusCode, fmt.Errorf("fetch: %s %s: unexpected status %d", method, rawURL, res.StatusCode)
	}
	return string(raw), res.StatusCode, nil
}

func shouldRetry(status int, err error) bool {
	if status == 0 && err != nil {
		return true
	}
	return status >= 500 || status == http.StatusTooManyRequests
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff << (attempt - 1)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	// Up to 25% jitter to avoid lockstep with other pollers.
	jitter := time.Duration(c.rnd.Int63n(int64(wait)/4 + 1))
	return wait + jitter
}

// PoliteDelay sleeps for d unless ctx is cancelled first. Providers use it
// between paginated fetches of the same origin.
func PoliteDelay(ctx context.Context, d time.Duration) error {
	return sleepWithContext(ctx, d)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func statusClass(status int) string {
	switch {
	case status >= 200 && status <= 299:
		return "2xx"
	case status >= 400 && status <= 499:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "error"
	}
}
