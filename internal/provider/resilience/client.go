package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrCircuitOpen is returned without calling the provider while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRateLimited is returned when the client-side limiter cannot admit a call before ctx ends.
	ErrRateLimited = errors.New("provider rate limit wait aborted")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name identifies the provider in the registry and breaker.
	Name string

	// Timeout bounds one HTTP attempt. Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff between attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the client for health reporting. Nil skips registration.
	Registry *Registry
}

// DefaultClientConfig returns defaults suited to a map or transit vendor API.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		CircuitBreaker:  &cb,
	}
}

// Client is an HTTP client that sends every request through a circuit breaker,
// an optional rate limiter and a bounded exponential retry.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	limiter  *rate.Limiter
	config   ClientConfig
	registry *Registry
}

// NewClient creates a Client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = time.Second
	}

	cbCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbCfg = *cfg.CircuitBreaker
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c := &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  NewCircuitBreaker[*http.Response](cbCfg), //nolint:bodyclose // type param, not response
		limiter:  limiter,
		config:   cfg,
		registry: cfg.Registry,
	}

	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req. Network errors and 5xx responses are retried; 4xx responses
// are returned to the caller as-is. When retries are exhausted on a 5xx the last
// response is returned with a nil error so the caller can read the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var last *http.Response
	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrRateLimited, err))
			}
		}

		attempt, err := cloneForAttempt(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.http.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if last != nil {
					_ = last.Body.Close()
				}
				last = resp
			}
			return err
		}

		if last != nil {
			_ = last.Body.Close()
		}
		last = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var serverErr *ServerError
		if last != nil && errors.As(err, &serverErr) {
			c.recordFailure(err)
			return last, nil
		}
		if last != nil {
			_ = last.Body.Close()
		}
		c.recordFailure(err)
		return nil, err
	}

	c.recordSuccess()
	return last, nil
}

// cloneForAttempt returns a request whose body can be read again on retry.
func cloneForAttempt(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
}

// ServerError reports a 5xx response from a provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CircuitBreakerState returns the breaker's current state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker's current counts.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

// StandardClient returns an *http.Client whose transport sends every request
// through c, for SDKs that only accept an *http.Client.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{Transport: transport{client: c}}
}

type transport struct {
	client *Client
}

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
