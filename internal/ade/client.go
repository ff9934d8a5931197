package ade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"adekit/internal/config"
	"adekit/internal/domain"
	"adekit/internal/logger"
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

const (
	productionURL = "https://api.va.landing.ai"
	euURL         = "https://api.va.eu-west-1.landing.ai"

	defaultParseModel   = "dpt-2-latest"
	defaultExtractModel = "extract-latest"
)

// Environments maps environment names to API base URLs.
var Environments = map[string]string{
	"production": productionURL,
	"eu":         euURL,
}

type endpointFamily int

const (
	familyParse endpointFamily = iota
	familyExtract
	familyJobs
)

// Client calls the document extraction API. It is safe for concurrent use.
type Client struct {
	apiKey       string
	baseURL      string
	parseModel   string
	extractModel string
	maxRetries   int
	poll         PollOptions
	client       *http.Client
	circuit      *circuit

	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient creates a client from config. The environment selects the base
// URL unless BaseURL is set.
func NewClient(cfg *config.ClientConfig) (*Client, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		env := cfg.Environment
		if env == "" {
			env = "production"
		}
		u, ok := Environments[env]
		if !ok {
			return nil, fmt.Errorf("unknown environment %q (want production or eu)", env)
		}
		endpoint = u
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required: %w", domain.ErrAuthentication)
	}
	return newClient(cfg, endpoint), nil
}

// NewClientWithEndpoint creates a client pointing at a custom base URL (for testing).
func NewClientWithEndpoint(cfg *config.ClientConfig, endpoint string) *Client {
	return newClient(cfg, endpoint)
}

func newClient(cfg *config.ClientConfig, endpoint string) *Client {
	parseModel := cfg.ParseModel
	if parseModel == "" {
		parseModel = defaultParseModel
	}
	extractModel := cfg.ExtractModel
	if extractModel == "" {
		extractModel = defaultExtractModel
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 480 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(endpoint, "/"),
		parseModel:   parseModel,
		extractModel: extractModel,
		maxRetries:   maxRetries,
		poll: PollOptions{
			Interval:    cfg.PollInterval(),
			MaxInterval: cfg.PollMax(),
			Timeout:     cfg.JobTimeout(),
		}.withDefaults(),
		client:      &http.Client{Timeout: timeout},
		circuit:     &circuit{},
		backoffBase: 500 * time.Millisecond,
		backoffMax:  20 * time.Second,
	}
}

// SetRetryBackoff overrides the base and maximum delay between retries.
func (c *Client) SetRetryBackoff(base, maxDelay time.Duration) {
	c.backoffBase = base
	c.backoffMax = maxDelay
}

// SetPollOptions overrides the defaults used by WaitForParseJob.
func (c *Client) SetPollOptions(opts PollOptions) {
	c.poll = opts.withDefaults()
}

// BaseURL returns the API base URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// CircuitOpenUntil reports whether requests are currently short-circuited
// after a rate limit, and until when.
func (c *Client) CircuitOpenUntil() (time.Time, bool) {
	return c.circuit.isOpenWithReset(time.Now())
}

// request describes one API call. Body is replayed on every attempt.
type request struct {
	family      endpointFamily
	method      string
	path        string
	body        []byte
	contentType string
}

// do sends req with retries on 429, 5xx and transport errors and returns the response body.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	log := logger.FromContext(ctx)

	if resetAt, open := c.circuit.isOpenWithReset(time.Now()); open {
		wait := time.Until(resetAt)
		msg := fmt.Sprintf("circuit open until %s after earlier rate limit", resetAt.UTC().Format(time.RFC3339))
		return nil, NewRateLimitError(&APIError{
			StatusCode: http.StatusTooManyRequests,
			Category:   CategoryRateLimit,
			Message:    msg,
		}, int(wait.Seconds())+1)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			log.Debug("retrying ade request",
				zap.String("path", req.path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := c.send(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryable(apiErr.StatusCode) {
			return nil, err
		}
	}

	var rlErr *RateLimitError
	if errors.As(lastErr, &rlErr) {
		c.circuit.open(time.Now().Add(rlErr.RetryAfter))
		log.Warn("ade rate limit exhausted retries, circuit open",
			zap.String("path", req.path),
			zap.Duration("retry_after", rlErr.RetryAfter))
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "adekit/"+Version)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling ade API %s: %w", req.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Category:   classify(resp.StatusCode, req.family),
			Message:    errorMessage(respBody),
			Body:       truncate(string(respBody), 2000),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, NewRateLimitError(apiErr, ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
		}
		return nil, apiErr
	}

	c.circuit.close()
	return respBody, nil
}

// backoff returns the delay before the given attempt. A Retry-After header
// sent with a 429 replaces the exponential schedule and is not capped.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var rlErr *RateLimitError
	if errors.As(lastErr, &rlErr) && rlErr.Advised {
		return rlErr.RetryAfter
	}
	delay := c.backoffBase << (attempt - 1)
	if delay <= 0 || delay > c.backoffMax {
		delay = c.backoffMax
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
