// Package coinbase is a REST client for the Coinbase Advanced Trade API. It
// implements domain.Exchange: candles, spot prices and market orders.
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/coinbot/internal/crypto"
	"github.com/alanyoungcy/coinbot/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.coinbase.com"

// Config configures a Client.
type Config struct {
	BaseURL        string
	RequestsPerSec float64
	Burst          int
	MaxRetries     int
	Timeout        time.Duration
}

// Client talks to the Advanced Trade REST API. Requests are rate limited
// client-side and transient failures (network errors, 429 and 5xx) are
// retried with exponential backoff. Without a signer only the public market
// endpoints are usable.
type Client struct {
	baseURL    string
	host       string
	httpClient *http.Client
	signer     *crypto.Signer
	limiter    *rate.Limiter
	maxRetries uint
	backoff    func() backoff.BackOff
	logger     *slog.Logger

	mu       sync.Mutex
	products map[string]Product // increments cache
}

// NewClient creates a Client. signer may be nil for market-data-only use.
func NewClient(cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse base url: %w", err)
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		host:       u.Host,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		maxRetries: uint(cfg.MaxRetries),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger:   logger.With(slog.String("component", "coinbase")),
		products: make(map[string]Product),
	}, nil
}

// Name returns "coinbase".
func (c *Client) Name() string {
	return "coinbase"
}

// Authenticated reports whether private endpoints can be called.
func (c *Client) Authenticated() bool {
	return c.signer != nil
}

// do sends a request and returns the response body, retrying transient
// failures. Private requests carry a fresh JWT on every attempt.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, private bool) ([]byte, error) {
	if private && c.signer == nil {
		return nil, fmt.Errorf("coinbase: %s %s: %w: no api key configured", method, path, domain.ErrUnauthorized)
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrContextDone, err))
		}
		respBody, err := c.send(ctx, method, path, query, payload, private)
		if err == nil {
			return respBody, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		c.logger.DebugContext(ctx, "coinbase: retrying request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, private bool) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if private {
		tok, err := c.signer.Token(method, c.host, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read response: %w", err)}
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// transportError marks network-level failures, which are always retryable.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "http request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// statusError is a non-2xx response that did not map to a sentinel.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.code, e.body) }

func retryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return &statusError{code: statusCode, body: bodyStr}
	}
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
