package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config holds outbound HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 20,
	}
}

// NewTransport returns a pooled transport with conservative dial and TLS timeouts.
func NewTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// New builds an *http.Client whose transport retries transient failures and
// is guarded by a circuit breaker named cb.Name.
func New(cfg Config, cb CircuitBreakerConfig, logger *slog.Logger) *http.Client {
	var rt http.RoundTripper = NewTransport(cfg)
	rt = &RetryTransport{Next: rt, Config: cfg}
	rt = NewBreakerTransport(rt, cb, logger)
	return &http.Client{Transport: rt, Timeout: cfg.Timeout}
}

// RetryTransport retries network errors and 5xx responses (except 501) with
// capped exponential backoff. Requests whose body cannot be replayed are sent once.
type RetryTransport struct {
	Next   http.RoundTripper
	Config Config
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := t.wait(ctx, attempt); err != nil {
				return nil, err
			}
			if req.Body != nil && req.Body != http.NoBody {
				body, gerr := req.GetBody()
				if gerr != nil {
					return nil, gerr
				}
				req = req.Clone(ctx)
				req.Body = body
			}
		}

		resp, err = t.Next.RoundTrip(req)
		last := attempt >= t.Config.MaxRetries || !replayable(req)
		switch {
		case err != nil:
			if !isRetryableError(err) || last {
				return nil, err
			}
		case retryableStatus(resp.StatusCode) && !last:
			_ = resp.Body.Close()
		default:
			return resp, nil
		}
	}
}

func (t *RetryTransport) wait(ctx context.Context, attempt int) error {
	d := t.Config.RetryWaitMin << (attempt - 1)
	if d > t.Config.RetryWaitMax {
		d = t.Config.RetryWaitMax
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
