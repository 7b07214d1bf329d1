// Package rest is the JSON-over-HTTP transport shared by the provider
// adapters. It applies the rate limiter and retry policy and maps HTTP
// failures onto domain error categories.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/resilience"
)

const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	BaseURL string
	// Headers are sent with every request (auth, API version).
	Headers map[string]string
	Timeout time.Duration
	// Code is the domain error code used for transport failures.
	Code    string
	Retry   *resilience.RetryPolicy
	Limiter *resilience.RateLimiter
	Logger  *logging.Logger
	HTTP    *http.Client
}

// Client sends JSON requests to one base URL.
type Client struct {
	baseURL string
	headers map[string]string
	code    string
	retry   *resilience.RetryPolicy
	limiter *resilience.RateLimiter
	log     *logging.Logger
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Code == "" {
		cfg.Code = "REQUEST_FAILED"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		code:    cfg.Code,
		retry:   cfg.Retry,
		limiter: cfg.Limiter,
		log:     cfg.Logger,
		http:    cfg.HTTP,
	}
}

// Do sends in as the JSON body of method path and decodes the response into
// out. A nil in sends no body; a nil out discards the response.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	return c.retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}
		return c.once(ctx, method, path, body, out)
	}, func(attempt int, err error, delay time.Duration) {
		c.log.Warn("retrying request", "path", path, "attempt", attempt, "delay", delay, "error", err)
	})
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return core.ErrTimeout(fmt.Sprintf("%s %s timed out", method, path)).WithCause(err)
		}
		return core.ErrNetwork(c.code, fmt.Sprintf("%s %s failed", method, path)).WithCause(err)
	}
	defer resp.Body.Close()
	c.log.Debug("provider response", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return StatusError(c.code, resp.StatusCode, strings.TrimSpace(string(msg)), resp.Header.Get("Retry-After"))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.DomainError{
			Category: core.ErrCatExecution,
			Code:     c.code,
			Message:  "decoding provider response",
			Cause:    err,
		}
	}
	return nil
}

// StatusError maps an HTTP failure status onto a domain error. Rate limits
// and server errors are retryable; authentication and other client errors
// are not.
func StatusError(code string, status int, body, retryAfter string) *core.DomainError {
	msg := fmt.Sprintf("provider returned %d", status)
	if body != "" {
		msg += ": " + body
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuth(msg)
	case status == http.StatusTooManyRequests:
		err := core.ErrRateLimit(msg)
		if d, ok := parseRetryAfter(retryAfter); ok {
			err = err.WithDetail(resilience.RetryAfterDetail, d)
		}
		return err
	case status == http.StatusNotFound:
		return &core.DomainError{Category: core.ErrCatNotFound, Code: code, Message: msg}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ErrTimeout(msg)
	case status >= 500:
		return core.ErrNetwork(code, msg)
	default:
		return &core.DomainError{Category: core.ErrCatExecution, Code: code, Message: msg}
	}
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}
