package data

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fbmc-quality/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// APIError is a non-success answer from an upstream service.
type APIError struct {
	Source     string
	StatusCode int
	Code       string
	Message    string
	RetryAfter string // set on 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOptions tunes the HTTP behaviour shared by the upstream clients.
type ClientOptions struct {
	Timeout            time.Duration
	RequestsPerSecond  float64
	Burst              int
	InsecureSkipVerify bool
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return o
}

type response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// upstream performs rate-limited GETs behind a circuit breaker. Transport
// failures and 5xx answers count against the breaker; 4xx answers do not.
type upstream struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newUpstream(name string, opts ClientOptions) *upstream {
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &upstream{
		name:    name,
		client:  &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// get issues one GET and returns the full body. Only transport errors, breaker
// rejections and 5xx answers come back as errors; callers map other statuses.
func (u *upstream) get(ctx context.Context, rawURL, accept string) (*response, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", u.name, err)
	}

	start := time.Now()
	out, err := u.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := u.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		r := &response{StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header, Body: body}
		if resp.StatusCode >= 500 {
			return r, statusError(u.name, r)
		}
		return r, nil
	})
	elapsed := time.Since(start)
	metrics.UpstreamDuration.WithLabelValues(u.name).Observe(elapsed.Seconds())

	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.UpstreamRequests.WithLabelValues(u.name, result).Inc()
		log.Debug().Err(err).Str("source", u.name).Dur("duration", elapsed).Msg("upstream request failed")
		return nil, err
	}

	r := out.(*response)
	metrics.UpstreamRequests.WithLabelValues(u.name, fmt.Sprintf("%dxx", r.StatusCode/100)).Inc()
	log.Debug().Str("source", u.name).Int("status", r.StatusCode).Dur("duration", elapsed).Int("bytes", len(r.Body)).Msg("upstream response")
	return r, nil
}

// statusError maps a non-200 answer onto an APIError.
func statusError(source string, r *response) *APIError {
	switch r.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &APIError{
			Source:     source,
			StatusCode: r.StatusCode,
			Code:       "UNAUTHORIZED",
			Message:    "invalid or missing security token",
		}
	case http.StatusTooManyRequests:
		retryAfter := r.Header.Get("Retry-After")
		return &APIError{
			Source:     source,
			StatusCode: r.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    fmt.Sprintf("rate limit exceeded, retry after %q", retryAfter),
			RetryAfter: retryAfter,
		}
	case http.StatusNotFound:
		return &APIError{
			Source:     source,
			StatusCode: r.StatusCode,
			Code:       "NOT_FOUND",
			Message:    "resource not found",
		}
	default:
		return &APIError{
			Source:     source,
			StatusCode: r.StatusCode,
			Code:       "API_ERROR",
			Message:    fmt.Sprintf("status %d: %s", r.StatusCode, snippet(r.Body)),
		}
	}
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
