// Package httpx is the outbound JSON client shared by the third-party adapters:
// client-side rate limiting, retries on 429/5xx honoring Retry-After, and
// status-to-error mapping onto the domain sentinels.
package httpx

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"directory/internal/adapters/observability"
	"directory/internal/domain"
)

var (
	ErrNotFound     = fmt.Errorf("remote: %w", domain.ErrNotFound)
	ErrUnauthorized = fmt.Errorf("remote unauthorized: %w", domain.ErrUnauthorized)
	ErrForbidden    = fmt.Errorf("remote forbidden: %w", domain.ErrUnauthorized)
)

// StatusError is returned for non-retryable statuses without a sentinel.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.Code, e.Body)
}

type Client struct {
	service  string
	hc       *http.Client
	rl       *rate.Limiter
	header   http.Header
	attempts int
	base     time.Duration
}

type Option func(*Client)

func WithHeader(k, v string) Option {
	return func(c *Client) { c.header.Set(k, v) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithBackoff sets the first retry delay; later ones double.
func WithBackoff(base time.Duration) Option {
	return func(c *Client) { c.base = base }
}

func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func New(service string, rps int, opts ...Option) *Client {
	if rps <= 0 {
		rps = 5
	}
	c := &Client{
		service:  service,
		hc:       &http.Client{Timeout: 30 * time.Second},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		header:   http.Header{},
		attempts: 4,
		base:     200 * time.Millisecond,
	}
	c.header.Set("Accept", "application/json")
	c.header.Set("User-Agent", "directory/1.0")
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetJSON decodes the response of GET url into out. endpoint is the metrics label.
func (c *Client) GetJSON(ctx context.Context, endpoint, url string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, url, nil, nil, out)
}

// PostJSON sends body as JSON; extra headers apply to this call only.
func (c *Client) PostJSON(ctx context.Context, endpoint, url string, body any, extra http.Header, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, endpoint, url, b, extra, out)
}

func (c *Client) do(ctx context.Context, method, endpoint, url string, body []byte, extra http.Header, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < c.attempts; i++ {
		last := i == c.attempts-1

		// fresh request each attempt; the body reader is single use
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		for k, vs := range c.header {
			req.Header[k] = vs
		}
		for k, vs := range extra {
			req.Header[k] = vs
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(c.service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if !last && sleepCtx(ctx, c.backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(c.service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			var derr error
			if out != nil {
				derr = json.NewDecoder(resp.Body).Decode(out)
			}
			resp.Body.Close()
			if derr != nil {
				return fmt.Errorf("decode %s response: %w", endpoint, derr)
			}
			return nil

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = c.backoff(i)
			}
			lastErr = &StatusError{Code: resp.StatusCode}
			if !last && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
	}

	return lastErr
}

// IsMiss reports whether err means the provider has nothing for us (404) or
// refuses us (401/403).
func IsMiss(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles the base each attempt with up to +50% jitter.
func (c *Client) backoff(i int) time.Duration {
	base := time.Duration(1<<i) * c.base
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
