// Package kakao provides Kakao Mobility directions and Kakao Local address
// search behind the routing and geocoding contracts.
package kakao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/geocode"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "kakao"

	// DefaultMobilityURL is the Kakao Mobility directions API base URL.
	DefaultMobilityURL = "https://apis-navi.kakaomobility.com"

	// DefaultLocalURL is the Kakao Local API base URL.
	DefaultLocalURL = "https://dapi.kakao.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 3 * time.Second

	// maxOriginsPerCall is the multi-origin API limit.
	maxOriginsPerCall = 30

	// searchRadiusMeters is the multi-origin search radius.
	searchRadiusMeters = 10000
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Kakao client.
type ClientConfig struct {
	// APIKey is the Kakao REST API key (required).
	APIKey string

	MobilityURL string
	LocalURL    string

	// HTTPClient overrides the resilient default client.
	HTTPClient HTTPDoer

	Timeout time.Duration

	// RequestsPerSecond caps outbound calls when the default client is used.
	RequestsPerSecond float64

	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Client talks to Kakao Mobility and Kakao Local.
type Client struct {
	apiKey      string
	mobilityURL string
	localURL    string
	httpClient  HTTPDoer
	logger      zerolog.Logger
}

var (
	_ routing.DrivingProvider = (*Client)(nil)
	_ geocode.Geocoder        = (*Client)(nil)
)

// NewClient creates a Kakao client.
func NewClient(cfg ClientConfig) *Client {
	mobilityURL := cfg.MobilityURL
	if mobilityURL == "" {
		mobilityURL = DefaultMobilityURL
	}
	localURL := cfg.LocalURL
	if localURL == "" {
		localURL = DefaultLocalURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = DefaultTimeout
		if cfg.Timeout > 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:      cfg.APIKey,
		mobilityURL: mobilityURL,
		localURL:    localURL,
		httpClient:  httpClient,
		logger:      cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GeocoderSource is the source tag recorded on geocoded candidates.
func (c *Client) GeocoderSource() string {
	return "kakao-local"
}

// Route returns the driving summary for a single origin.
func (c *Client) Route(ctx context.Context, origin, dest geo.Point) (*routing.Summary, error) {
	if err := routing.ValidatePoint(origin); err != nil {
		return nil, c.fail("INVALID_ORIGIN", "invalid origin coordinates", err)
	}
	if err := routing.ValidatePoint(dest); err != nil {
		return nil, c.fail("INVALID_DESTINATION", "invalid destination coordinates", err)
	}

	q := url.Values{}
	q.Set("origin", lngLat(origin))
	q.Set("destination", lngLat(dest))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mobilityURL+"/v1/directions?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var resp directionsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Routes) == 0 {
		return nil, c.fail("NO_ROUTE", "no routes in response", routing.ErrNoRoute)
	}
	r := resp.Routes[0]
	if r.ResultCode != 0 || r.Summary == nil {
		return nil, c.fail("NO_ROUTE", fmt.Sprintf("result %d: %s", r.ResultCode, r.ResultMsg), routing.ErrNoRoute)
	}

	return &routing.Summary{
		DistanceMeters:  int(r.Summary.Distance),
		DurationSeconds: int(r.Summary.Duration),
	}, nil
}

// RouteMany routes every origin to dest, splitting into calls of at most 30 origins.
// Origins whose route failed are left out of the result.
func (c *Client) RouteMany(ctx context.Context, origins []routing.Origin, dest geo.Point) (map[int64]routing.Summary, error) {
	if err := routing.ValidatePoint(dest); err != nil {
		return nil, c.fail("INVALID_DESTINATION", "invalid destination coordinates", err)
	}

	out := make(map[int64]routing.Summary, len(origins))
	for start := 0; start < len(origins); start += maxOriginsPerCall {
		end := min(start+maxOriginsPerCall, len(origins))
		if err := c.routeChunk(ctx, origins[start:end], dest, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) routeChunk(ctx context.Context, origins []routing.Origin, dest geo.Point, out map[int64]routing.Summary) error {
	body := originsRequest{
		Origins:     make([]originPoint, 0, len(origins)),
		Destination: point{X: dest.Lng, Y: dest.Lat},
		Radius:      searchRadiusMeters,
	}
	for _, o := range origins {
		body.Origins = append(body.Origins, originPoint{
			X:      o.Point.Lng,
			Y:      o.Point.Lat,
			Key:    strconv.FormatInt(o.ID, 10),
			Radius: searchRadiusMeters,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mobilityURL+"/v1/origins/directions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp originsResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}

	for _, r := range resp.Routes {
		if r.ResultCode != 0 || r.Summary == nil {
			c.logger.Debug().Str("key", r.Key).Int("result_code", r.ResultCode).Msg("origin not routed")
			continue
		}
		id, err := strconv.ParseInt(r.Key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = routing.Summary{
			DistanceMeters:  int(r.Summary.Distance),
			DurationSeconds: int(r.Summary.Duration),
		}
	}
	return nil
}

// Geocode resolves a free-text address to a point using the first match.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, error) {
	q := url.Values{}
	q.Set("query", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.localURL+"/v2/local/search/address.json?"+q.Encode(), http.NoBody)
	if err != nil {
		return geo.Point{}, fmt.Errorf("creating request: %w", err)
	}

	var resp addressResponse
	if err := c.do(req, &resp); err != nil {
		return geo.Point{}, err
	}
	if len(resp.Documents) == 0 {
		return geo.Point{}, geocode.ErrNoMatch
	}

	doc := resp.Documents[0]
	lng, errX := strconv.ParseFloat(doc.X, 64)
	lat, errY := strconv.ParseFloat(doc.Y, 64)
	if errX != nil || errY != nil {
		return geo.Point{}, c.fail("BAD_PAYLOAD", "unparseable coordinates", routing.ErrProviderUnavailable)
	}

	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return geo.Point{}, geocode.ErrNoMatch
	}
	return p, nil
}

// do sends req with the Kakao auth header and decodes a 200 body into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail("REQUEST_FAILED", "failed to reach provider", fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	c.logger.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("kakao response")

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.fail("BAD_PAYLOAD", "decoding response", fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err))
	}
	return nil
}

func (c *Client) statusError(status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)

	switch {
	case status == http.StatusTooManyRequests:
		return c.fail("RATE_LIMIT", "quota exceeded", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return c.fail("FORBIDDEN", "access denied, check KAKAO_API_KEY", routing.ErrProviderUnavailable)
	case status == http.StatusBadRequest:
		return c.fail("BAD_REQUEST", e.text(), routing.ErrInvalidCoordinates)
	default:
		return c.fail(fmt.Sprintf("HTTP_%d", status), e.text(), routing.ErrProviderUnavailable)
	}
}

func (c *Client) fail(code, msg string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: msg, Err: err}
}

func lngLat(p geo.Point) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}
