// Package mirror implements the client for the external document
// database holding the synchronized records. Every request carries the
// bearer credential and the fixed protocol-version header, is paced by
// a client-side rate limiter, and is retried on the retryable status
// class before surfacing a fatal error.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scholarsync/crawler/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.notion.com/v1"
	protocolVersion = "2022-06-28"

	maxRetries     = 3
	backoffInitial = 1 * time.Second
	backoffCap     = 8 * time.Second
)

// Config controls the client.
type Config struct {
	Token             string
	DatabaseID        string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Error is a non-retryable remote failure, or a retryable one whose
// retry budget is exhausted.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mirror API error: HTTP %d: %s", e.Status, e.Body)
}

// Client talks to the mirror API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	// sleep is a seam for tests; the default honors context cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client. Zero config values fall back to defaults.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logger,
		sleep:      sleepContext,
	}
}

// do executes one logical API call: rate-limited, authenticated, and
// retried up to three additional times on 429 or 5xx. The server's
// retry delay is honored when present; otherwise the wait doubles from
// one second up to a cap of eight.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode mirror payload: %w", err)
		}
	}

	backoff := backoffInitial
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mirror rate limit wait: %w", err)
		}

		data, status, retryAfter, err := c.roundTrip(ctx, method, path, body)
		if err != nil {
			if attempt >= maxRetries {
				return fmt.Errorf("mirror request %s %s: %w", method, path, err)
			}
			c.logger.Warn("mirror request failed; retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if serr := c.sleep(ctx, backoff); serr != nil {
				return serr
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if status >= 200 && status < 300 {
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					return fmt.Errorf("decode mirror response: %w", err)
				}
			}
			return nil
		}

		retryable := status == http.StatusTooManyRequests || status >= 500
		if !retryable || attempt >= maxRetries {
			return &Error{Status: status, Body: string(data)}
		}

		wait := backoff
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
		metrics.ObserveRemoteRetry(status)
		c.logger.Warn("mirror API retry",
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return serr
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", protocolVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
