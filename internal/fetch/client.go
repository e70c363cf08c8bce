// Package fetch is the single point of contact with remote sources. Every GET
// is retried a bounded number of times with exponential backoff
// (base^attempt seconds, no jitter). All failures are retried alike: network
// errors, timeouts, non-2xx statuses and undecodable bodies.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options controls retry behaviour and request shaping.
type Options struct {
	Retries     int
	BackoffBase float64
	Timeout     time.Duration
	UserAgent   string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client performs retrying GET requests.
type Client struct {
	http   *resty.Client
	opts   Options
	sleep  Sleeper
	logger *slog.Logger
}

// ExhaustedError is returned once every attempt for URL has failed.
type ExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: gave up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// StatusError records a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// New creates a Client. Retries below 1 are treated as 1.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	h := resty.New()
	h.SetTimeout(opts.Timeout)
	h.SetLogger(restyLogger{logger})
	if opts.UserAgent != "" {
		h.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		http:   h,
		opts:   opts,
		sleep:  sleepContext,
		logger: logger,
	}
}

// WithSleeper replaces the backoff sleeper. Intended for tests.
func (c *Client) WithSleeper(s Sleeper) *Client {
	c.sleep = s
	return c
}

// JSON fetches url and decodes the body. Numbers are kept as json.Number so
// ids and counts are written back exactly as received.
func (c *Client) JSON(ctx context.Context, url string) (any, error) {
	var out any
	err := c.do(ctx, url, func(body []byte) error {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		out = v
		return nil
	})
	return out, err
}

// Text fetches url and returns the body as a string.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	var out string
	err := c.do(ctx, url, func(body []byte) error {
		out = string(body)
		return nil
	})
	return out, err
}

// do runs the retry loop. accept is called with the body of each 2xx
// response; an error from it counts as a failed attempt.
func (c *Client) do(ctx context.Context, url string, accept func([]byte) error) error {
	var lastErr error
	for attempt := 0; attempt < c.opts.Retries; attempt++ {
		lastErr = c.attempt(ctx, url, accept)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Debug("fetch attempt failed",
			"url", url, "attempt", attempt+1, "of", c.opts.Retries, "error", lastErr)

		if attempt == c.opts.Retries-1 {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return err
		}
	}
	return &ExhaustedError{URL: url, Attempts: c.opts.Retries, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, url string, accept func([]byte) error) error {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if !resp.IsSuccess() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.Body(), 200)}
	}
	return accept(resp.Body())
}

// backoff returns BackoffBase^attempt seconds.
func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(c.opts.BackoffBase, float64(attempt)) * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

// restyLogger routes resty's internal messages into slog at debug level;
// attempt failures are reported by the retry loop itself.
type restyLogger struct{ l *slog.Logger }

func (r restyLogger) Errorf(format string, v ...interface{}) {
	r.l.Debug(fmt.Sprintf(format, v...), "component", "resty", "resty_level", "error")
}

func (r restyLogger) Warnf(format string, v ...interface{}) {
	r.l.Debug(fmt.Sprintf(format, v...), "component", "resty", "resty_level", "warn")
}

func (r restyLogger) Debugf(format string, v ...interface{}) {
	r.l.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
