// Package odsay provides public-transit path search backed by the ODsay API.
package odsay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "odsay"

	// DefaultBaseURL is the ODsay API base URL.
	DefaultBaseURL = "https://api.odsay.com/v1/api"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second
)

// Error codes ODsay uses when no path exists rather than on failure.
var noPathCodes = map[string]bool{
	"-98": true, // origin and destination within 700 m
	"-99": true, // no path found
	"3":   true, // no stop near origin
	"4":   true, // no stop near destination
	"5":   true, // no stops near either end
	"6":   true, // no path between stops
}

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the ODsay client.
type ClientConfig struct {
	// APIKey is the ODsay server key (required).
	APIKey string

	BaseURL string

	// HTTPClient overrides the resilient default client.
	HTTPClient HTTPDoer

	Timeout time.Duration

	// DetailArriveBy asks the detail search for paths arriving by this local
	// time (HHMM). Empty searches by departure now.
	DetailArriveBy string

	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Client is an ODsay API client.
type Client struct {
	apiKey     string
	baseURL    string
	arriveBy   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ transit.Provider = (*Client)(nil)

// NewClient creates an ODsay client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = DefaultTimeout
		if cfg.Timeout > 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		// The estimation deadline is shorter than any retry schedule.
		clientCfg.MaxRetries = 0
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		arriveBy:   cfg.DetailArriveBy,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// MinDuration returns the fastest total time among the returned paths.
func (c *Client) MinDuration(ctx context.Context, origin, dest geo.Point) (int, error) {
	paths, err := c.search(ctx, origin, dest, "")
	if err != nil {
		return 0, err
	}
	best, _ := transit.Fastest(paths)
	return best.Info.TotalTime, nil
}

// Paths returns every path found, searching by the configured arrival time.
func (c *Client) Paths(ctx context.Context, origin, dest geo.Point) ([]transit.Path, error) {
	return c.search(ctx, origin, dest, c.arriveBy)
}

func (c *Client) search(ctx context.Context, origin, dest geo.Point, arriveBy string) ([]transit.Path, error) {
	q := url.Values{}
	q.Set("SX", formatCoord(origin.Lng))
	q.Set("SY", formatCoord(origin.Lat))
	q.Set("EX", formatCoord(dest.Lng))
	q.Set("EY", formatCoord(dest.Lat))
	if arriveBy != "" {
		q.Set("searchType", "1")
		q.Set("endTime", arriveBy)
	}
	q.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/searchPubTransPathT?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail("REQUEST_FAILED", "failed to reach provider", fmt.Errorf("%w: %v", transit.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("odsay response")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.fail("RATE_LIMIT", "quota exceeded", transit.ErrRateLimitExceeded)
	case resp.StatusCode != http.StatusOK:
		return nil, c.fail(fmt.Sprintf("HTTP_%d", resp.StatusCode), "unexpected status", transit.ErrProviderUnavailable)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, c.fail("BAD_PAYLOAD", "decoding response", fmt.Errorf("%w: %v", transit.ErrProviderUnavailable, err))
	}

	if code, msg, ok := parseError(sr.Error); ok {
		if noPathCodes[code] {
			return nil, c.fail(code, msg, transit.ErrNoPath)
		}
		return nil, c.fail(code, msg, transit.ErrProviderUnavailable)
	}

	if sr.Result == nil || len(sr.Result.Path) == 0 {
		return nil, c.fail("NO_PATH", "empty path list", transit.ErrNoPath)
	}
	return sr.Result.Path, nil
}

func (c *Client) fail(code, msg string, err error) *transit.Error {
	return &transit.Error{Provider: ProviderName, Code: code, Message: msg, Err: err}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
