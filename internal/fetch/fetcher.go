// Package fetch issues outbound HTTP requests with a per-attempt timeout,
// exponential backoff on transient failures, and an optional circuit breaker.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/climate-telemetry/internal/result"
)

// Config controls retries and timeouts for a single logical request.
type Config struct {
	MaxRetries   int           `validate:"gte=0,lte=10"`
	InitialDelay time.Duration `validate:"gte=0"`
	Timeout      time.Duration `validate:"gt=0"`
}

// DefaultConfig mirrors what the upstream providers tolerate well.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Timeout:      5 * time.Second,
	}
}

var (
	// ErrExhausted is returned once every attempt has failed.
	ErrExhausted = errors.New("request failed after all retries")

	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid fetch configuration")
	errBuildRequest  = errors.New("build request")
)

// RequestBuilder creates a fresh request for every attempt.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Fetcher performs requests with retry semantics. It holds no per-request state
// and is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithBreaker guards every attempt with cb. An open breaker fails the request
// without further attempts.
func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(f *Fetcher) { f.breaker = cb }
}

// WithLimiter waits on l before every attempt.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher around client.
func New(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewBreaker returns the breaker settings used for every provider.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// Backoff returns the wait before attempt k (k >= 1): initial * 2^(k-1).
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return initial * time.Duration(1<<(attempt-1))
}

// Get fetches url with a plain GET request.
func (f *Fetcher) Get(ctx context.Context, url string, cfg Config) result.Result[Response] {
	return f.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, cfg)
}

// Do runs the request built by build. 2xx and 4xx responses are returned as
// they are; 5xx responses and transport failures are retried up to
// cfg.MaxRetries more times.
func (f *Fetcher) Do(ctx context.Context, build RequestBuilder, cfg Config) result.Result[Response] {
	if f.client == nil {
		return result.Err[Response](errNoHTTPClient)
	}
	if cfg.MaxRetries < 0 || cfg.InitialDelay < 0 || cfg.Timeout <= 0 {
		return result.Err[Response](errInvalidConfig)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, Backoff(cfg.InitialDelay, attempt)); err != nil {
				return result.Err[Response](err)
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return result.Err[Response](fmt.Errorf("rate limit wait canceled: %w", err))
			}
		}

		resp, err := f.attempt(ctx, build, cfg.Timeout)
		if err == nil {
			return result.Ok(resp)
		}

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return result.Err[Response](fmt.Errorf("%w: %v", errCircuitOpen, err))
		case errors.Is(err, errBuildRequest):
			return result.Err[Response](err)
		case ctx.Err() != nil:
			return result.Err[Response](ctx.Err())
		}
		lastErr = err
	}

	if lastErr == nil {
		return result.Err[Response](ErrExhausted)
	}
	return result.Err[Response](fmt.Errorf("%w: %w", ErrExhausted, lastErr))
}

func (f *Fetcher) attempt(ctx context.Context, build RequestBuilder, timeout time.Duration) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(attemptCtx)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", errBuildRequest, err)
	}

	run := func() (interface{}, error) {
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		// The body is read under the same deadline as the request.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return Response{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Header:     resp.Header,
			Body:       body,
		}, nil
	}

	var out interface{}
	if f.breaker != nil {
		out, err = f.breaker.Execute(run)
	} else {
		out, err = run()
	}
	if err != nil {
		return Response{}, err
	}

	resp, ok := out.(Response)
	if !ok {
		return Response{}, fmt.Errorf("unexpected result type %T", out)
	}
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
