// Package sqsquery is a client for the Osmosis sidecar query server (SQS) router API.
package sqsquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "sqs").Logger()
}

// ErrNoQuote is returned when SQS answers but cannot route the request
var ErrNoQuote = errors.New("sqs could not quote the request")

// SqsQueryClient provides access to the Osmosis SQS API with failover support.
// The first url is the primary endpoint, the rest are backups used when the
// current endpoint keeps failing.
type SqsQueryClient struct {
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

// FailoverConfig controls failover behavior
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the current endpoint
	MaxRetries uint
	// RetryDelay is the initial delay between retries (doubles with each retry)
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is back up
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover behavior
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

type healthChecker struct {
	client    *SqsQueryClient
	stopCh    chan struct{}
	stoppedCh chan struct{}
	once      sync.Once
}

// NewSqsQueryClient creates a client, the first url is the primary endpoint
func NewSqsQueryClient(apiUrls []string) (*SqsQueryClient, error) {
	return NewSqsQueryClientWithFailover(apiUrls, DefaultFailoverConfig())
}

// NewSqsQueryClientWithFailover creates a client with a custom failover config.
// A health checker restoring the primary endpoint is started when backups are given.
func NewSqsQueryClientWithFailover(apiUrls []string, config FailoverConfig) (*SqsQueryClient, error) {
	if len(apiUrls) == 0 {
		return nil, errors.New("at least one sqs url is required")
	}
	if _, err := url.ParseRequestURI(apiUrls[0]); err != nil {
		return nil, fmt.Errorf("invalid primary sqs url: %w", err)
	}

	validBackups := make([]string, 0, len(apiUrls)-1)
	for _, u := range apiUrls[1:] {
		if _, err := url.ParseRequestURI(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	client := &SqsQueryClient{
		httpClient:     &http.Client{Timeout: config.Timeout},
		primaryURL:     apiUrls[0],
		backupURLs:     validBackups,
		currentURL:     apiUrls[0],
		failoverConfig: config,
	}

	if len(validBackups) > 0 && config.HealthCheckInterval > 0 {
		client.healthChecker = &healthChecker{
			client:    client,
			stopCh:    make(chan struct{}),
			stoppedCh: make(chan struct{}),
		}
		go client.healthChecker.run()
	}

	log.Info().
		Str("primary", client.primaryURL).
		Int("backups", len(validBackups)).
		Msg("SQS client initialized")
	return client, nil
}

func (h *healthChecker) run() {
	defer close(h.stoppedCh)
	ticker := time.NewTicker(h.client.failoverConfig.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkAndRestore()
		}
	}
}

func (h *healthChecker) stop() {
	h.once.Do(func() {
		close(h.stopCh)
		<-h.stoppedCh
	})
}

// checkAndRestore switches back to the primary endpoint once it is healthy again
func (h *healthChecker) checkAndRestore() {
	if h.client.CurrentURL() == h.client.primaryURL {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.client.failoverConfig.Timeout)
	defer cancel()
	if h.client.isEndpointHealthy(ctx, h.client.primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = h.client.primaryURL
		h.client.mu.Unlock()
		log.Info().Str("url", h.client.primaryURL).Msg("Restored primary endpoint")
	}
}

func (c *SqsQueryClient) isEndpointHealthy(ctx context.Context, endpoint string) bool {
	healthURL := endpoint + "/healthcheck"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", healthURL).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// CurrentURL returns the endpoint requests are currently sent to
func (c *SqsQueryClient) CurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint, returns false when none is healthy.
// Health checks run without holding the lock.
func (c *SqsQueryClient) failover(ctx context.Context) bool {
	c.mu.RLock()
	from := c.currentURL
	c.mu.RUnlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := 0
	for i, u := range allURLs {
		if u == from {
			currentIdx = i
			break
		}
	}

	for i := 1; i < len(allURLs); i++ {
		nextURL := allURLs[(currentIdx+i)%len(allURLs)]
		if !c.isEndpointHealthy(ctx, nextURL) {
			continue
		}
		c.mu.Lock()
		switched := c.currentURL == from
		if switched {
			c.currentURL = nextURL
		}
		c.mu.Unlock()
		// otherwise another caller already moved off the failing endpoint
		if switched {
			log.Info().Str("url", nextURL).Msg("Failover to endpoint")
		}
		return true
	}

	log.Warn().Str("url", from).Msg("All endpoints unhealthy, staying on current")
	return false
}

// Close stops the health checker
func (c *SqsQueryClient) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// statusError is a non 200 answer from SQS
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// isRejected reports a status SQS uses to refuse the request itself
func isRejected(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (c *SqsQueryClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CurrentURL()+path, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &statusError{code: resp.StatusCode, body: string(body)}
		// 4xx means SQS understood the request and rejected it, retrying won't help.
		// 429 is a rate limit and is retried like a server error.
		if isRejected(resp.StatusCode) {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}
	return body, nil
}

// doRequestWithFailover performs a GET with exponential backoff on the current
// endpoint and, if that keeps failing, one more attempt after failing over.
func (c *SqsQueryClient) doRequestWithFailover(ctx context.Context, path string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.failoverConfig.RetryDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.get(ctx, path)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.failoverConfig.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("path", path).Dur("retry_in", next).Msg("SQS request failed, retrying")
		}),
	)
	if err == nil {
		return body, nil
	}

	var statusErr *statusError
	if ctx.Err() != nil || (errors.As(err, &statusErr) && isRejected(statusErr.code)) {
		return nil, err
	}

	if len(c.backupURLs) > 0 && c.failover(ctx) {
		body, failoverErr := c.get(ctx, path)
		if failoverErr != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", failoverErr, err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.failoverConfig.MaxRetries+1, err)
}

/*
GetQuote returns the best quote SQS can compute for an exact in or exact out swap.

For exact amount in, TokenIn and TokenOutDenom are required.
For exact amount out, TokenOut and TokenInDenom are required.
Mixing the parameters of the two methods results in an error.

When SingleRoute is set, SQS returns the best single route and excludes splits.
*/
func (c *SqsQueryClient) GetQuote(ctx context.Context, req QuoteRequest) (RouteTokenResponse, error) {
	path, err := quotePath(req)
	if err != nil {
		return RouteTokenResponse{}, err
	}

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && isRejected(statusErr.code) {
			return RouteTokenResponse{}, fmt.Errorf("%w: %w", ErrNoQuote, err)
		}
		return RouteTokenResponse{}, err
	}

	var routeTokenResponse RouteTokenResponse
	if err := json.Unmarshal(body, &routeTokenResponse); err != nil {
		return RouteTokenResponse{}, fmt.Errorf("failed to parse route response: %w", err)
	}
	return routeTokenResponse, nil
}

func quotePath(req QuoteRequest) (string, error) {
	switch {
	case req.TokenIn != nil && req.TokenOut != nil:
		return "", errors.New("tokenIn and tokenOut cannot be used together")
	case req.TokenInDenom != "" && req.TokenOutDenom != "":
		return "", errors.New("tokenInDenom and tokenOutDenom cannot be used together")
	case req.TokenIn != nil && req.TokenOutDenom != "":
		return fmt.Sprintf(
			"/router/quote?tokenIn=%s&tokenOutDenom=%s&singleRoute=%t&humanDenoms=false&applyExponents=false&appendBaseFee=true",
			url.QueryEscape(req.TokenIn.Amount+req.TokenIn.Denom), url.QueryEscape(req.TokenOutDenom), req.SingleRoute,
		), nil
	case req.TokenOut != nil && req.TokenInDenom != "":
		return fmt.Sprintf(
			"/router/quote?tokenOut=%s&tokenInDenom=%s&singleRoute=%t&humanDenoms=false&applyExponents=false&appendBaseFee=true",
			url.QueryEscape(req.TokenOut.Amount+req.TokenOut.Denom), url.QueryEscape(req.TokenInDenom), req.SingleRoute,
		), nil
	default:
		return "", errors.New("either tokenIn with tokenOutDenom or tokenOut with tokenInDenom is required")
	}
}

// GetTokenPrice fetches the price of a token in USD terms
func (c *SqsQueryClient) GetTokenPrice(ctx context.Context, tokenDenom string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/tokens/prices?base=%s", url.QueryEscape(tokenDenom))

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return decimal.Decimal{}, err
	}

	// {"<base denom>": {"<quote denom>": "1.23"}}, the quote denom is the
	// USDC the server is configured with, so only the value matters
	var tokenPriceResponse map[string]map[string]string
	if err := json.Unmarshal(body, &tokenPriceResponse); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse price response: %w", err)
	}

	for _, price := range tokenPriceResponse[tokenDenom] {
		return decimal.NewFromString(price)
	}
	return decimal.Decimal{}, fmt.Errorf("token price not found for %s", tokenDenom)
}
