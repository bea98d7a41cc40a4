// Package googlemaps adapts the Google Maps Platform SDK to the driving,
// transit and geocoding contracts. It serves deployments outside Kakao
// and ODsay coverage.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/roomcommute/roomcommute/internal/geocode"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/transit"
	"github.com/roomcommute/roomcommute/pkg/geo"
	"github.com/roomcommute/roomcommute/pkg/polyline"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "googlemaps"

	// maxOriginsPerMatrix is the Distance Matrix origins limit per request.
	maxOriginsPerMatrix = 25
)

// ClientConfig holds configuration for the Google Maps adapter.
type ClientConfig struct {
	// APIKey is the Maps Platform key (required).
	APIKey string

	// BaseURL overrides the API host. Tests only.
	BaseURL string

	// Region biases geocoding results, e.g. "kr".
	Region string

	// Language for returned names. Default: "ko"
	Language string

	Timeout  time.Duration
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Client wraps a maps.Client.
type Client struct {
	maps     *maps.Client
	region   string
	language string
	logger   zerolog.Logger
}

var (
	_ routing.DrivingProvider = (*Client)(nil)
	_ transit.Provider        = (*Client)(nil)
	_ geocode.Geocoder        = (*Client)(nil)
)

// NewClient creates the adapter. Requests go through a resilience client
// registered under ProviderName.
func NewClient(cfg ClientConfig) (*Client, error) {
	httpCfg := resilience.DefaultClientConfig(ProviderName)
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.MaxRetries = 0
	httpCfg.Registry = cfg.Registry

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(resilience.NewClient(httpCfg).StandardClient()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}

	language := cfg.Language
	if language == "" {
		language = "ko"
	}

	return &Client{
		maps:     mc,
		region:   cfg.Region,
		language: language,
		logger:   cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GeocoderSource is the source tag recorded on geocoded candidates.
func (c *Client) GeocoderSource() string {
	return "google-geocoding"
}

// Route returns the first driving route's first leg.
func (c *Client) Route(ctx context.Context, origin, dest geo.Point) (*routing.Summary, error) {
	if err := routing.ValidatePoint(origin); err != nil {
		return nil, routingError("INVALID_ORIGIN", "invalid origin coordinates", err)
	}

	routes, _, err := c.maps.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(dest),
		Mode:        maps.TravelModeDriving,
		Language:    c.language,
	})
	if err != nil {
		return nil, routingError(statusCode(err), "directions failed", mapRoutingErr(err))
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, routingError("NO_ROUTE", "no routes in response", routing.ErrNoRoute)
	}

	leg := routes[0].Legs[0]
	return &routing.Summary{
		DistanceMeters:  leg.Distance.Meters,
		DurationSeconds: int(leg.Duration.Seconds()),
	}, nil
}

// RouteMany uses the Distance Matrix API with one destination column.
func (c *Client) RouteMany(ctx context.Context, origins []routing.Origin, dest geo.Point) (map[int64]routing.Summary, error) {
	out := make(map[int64]routing.Summary, len(origins))

	for start := 0; start < len(origins); start += maxOriginsPerMatrix {
		chunk := origins[start:min(start+maxOriginsPerMatrix, len(origins))]

		req := &maps.DistanceMatrixRequest{
			Origins:      make([]string, 0, len(chunk)),
			Destinations: []string{latLng(dest)},
			Mode:         maps.TravelModeDriving,
			Language:     c.language,
		}
		for _, o := range chunk {
			req.Origins = append(req.Origins, latLng(o.Point))
		}

		resp, err := c.maps.DistanceMatrix(ctx, req)
		if err != nil {
			return nil, routingError(statusCode(err), "distance matrix failed", mapRoutingErr(err))
		}

		for i, row := range resp.Rows {
			if i >= len(chunk) || len(row.Elements) == 0 {
				continue
			}
			el := row.Elements[0]
			if el == nil || el.Status != "OK" {
				continue
			}
			out[chunk[i].ID] = routing.Summary{
				DistanceMeters:  el.Distance.Meters,
				DurationSeconds: int(el.Duration.Seconds()),
			}
		}
	}
	return out, nil
}

// MinDuration returns the fastest transit alternative in whole minutes.
func (c *Client) MinDuration(ctx context.Context, origin, dest geo.Point) (int, error) {
	paths, err := c.Paths(ctx, origin, dest)
	if err != nil {
		return 0, err
	}
	best, _ := transit.Fastest(paths)
	return best.Info.TotalTime, nil
}

// Paths returns transit alternatives converted to the transit path model.
func (c *Client) Paths(ctx context.Context, origin, dest geo.Point) ([]transit.Path, error) {
	routes, _, err := c.maps.Directions(ctx, &maps.DirectionsRequest{
		Origin:       latLng(origin),
		Destination:  latLng(dest),
		Mode:         maps.TravelModeTransit,
		Alternatives: true,
		Language:     c.language,
	})
	if err != nil {
		return nil, transitError(statusCode(err), "transit directions failed", mapTransitErr(err))
	}

	paths := make([]transit.Path, 0, len(routes))
	for i := range routes {
		if p, ok := toPath(&routes[i]); ok {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, transitError("NO_PATH", "no transit routes", transit.ErrNoPath)
	}
	return paths, nil
}

// Geocode resolves an address with the Geocoding API.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, error) {
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   c.region,
		Language: c.language,
	})
	if err != nil {
		if statusCode(err) == "ZERO_RESULTS" {
			return geo.Point{}, geocode.ErrNoMatch
		}
		return geo.Point{}, routingError(statusCode(err), "geocode failed", mapRoutingErr(err))
	}
	if len(results) == 0 {
		return geo.Point{}, geocode.ErrNoMatch
	}

	loc := results[0].Geometry.Location
	return geo.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func toPath(r *maps.Route) (transit.Path, bool) {
	if len(r.Legs) == 0 {
		return transit.Path{}, false
	}

	var (
		total      time.Duration
		distance   int
		walkMeters int
		busLegs    int
		subwayLegs int
		subPaths   []transit.SubPath
		firstStop  string
		lastStop   string
	)
	for _, leg := range r.Legs {
		total += leg.Duration
		distance += leg.Distance.Meters
		for _, step := range leg.Steps {
			sp := transit.SubPath{
				TrafficType: transit.TrafficWalk,
				Distance:    float64(step.Distance.Meters),
				SectionTime: int(step.Duration.Round(time.Minute).Minutes()),
			}
			if td := step.TransitDetails; td != nil {
				sp.StartName = td.DepartureStop.Name
				sp.EndName = td.ArrivalStop.Name
				sp.StartX, sp.StartY = td.DepartureStop.Location.Lng, td.DepartureStop.Location.Lat
				sp.EndX, sp.EndY = td.ArrivalStop.Location.Lng, td.ArrivalStop.Location.Lat
				sp.StationCount = int(td.NumStops)
				if firstStop == "" {
					firstStop = sp.StartName
				}
				lastStop = sp.EndName

				switch strings.ToUpper(td.Line.Vehicle.Type) {
				case "SUBWAY", "METRO_RAIL", "HEAVY_RAIL", "COMMUTER_TRAIN", "RAIL", "TRAM":
					sp.TrafficType = transit.TrafficSubway
					sp.Lanes = []transit.Lane{{Name: td.Line.Name}}
					subwayLegs++
				default:
					sp.TrafficType = transit.TrafficBus
					sp.Lanes = []transit.Lane{{BusNo: td.Line.ShortName, Name: td.Line.Name}}
					busLegs++
				}
			} else {
				walkMeters += step.Distance.Meters
			}
			subPaths = append(subPaths, sp)
		}
	}

	pathType := 3
	switch {
	case busLegs == 0 && subwayLegs > 0:
		pathType = 1
	case subwayLegs == 0 && busLegs > 0:
		pathType = 2
	}

	return transit.Path{
		PathType: pathType,
		Info: transit.PathInfo{
			TotalTime:          int(total.Round(time.Minute).Minutes()),
			BusTransitCount:    busLegs,
			SubwayTransitCount: subwayLegs,
			TotalWalk:          walkMeters,
			TotalDistance:      float64(distance),
			FirstStartStation:  firstStop,
			LastEndStation:     lastStop,
		},
		SubPaths: subPaths,
		Geometry: polyline.Decode(r.OverviewPolyline.Points),
	}, true
}

func latLng(p geo.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// statusCode extracts the API status from SDK errors of the form
// "maps: ZERO_RESULTS - ...".
func statusCode(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "maps: ")
	if i := strings.IndexAny(msg, " -"); i > 0 {
		return msg[:i]
	}
	return msg
}

func mapRoutingErr(err error) error {
	switch statusCode(err) {
	case "ZERO_RESULTS", "NOT_FOUND":
		return routing.ErrNoRoute
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return routing.ErrRateLimitExceeded
	case "INVALID_REQUEST":
		return routing.ErrInvalidCoordinates
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err)
}

func mapTransitErr(err error) error {
	switch statusCode(err) {
	case "ZERO_RESULTS", "NOT_FOUND":
		return transit.ErrNoPath
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return transit.ErrRateLimitExceeded
	}
	return fmt.Errorf("%w: %v", transit.ErrProviderUnavailable, err)
}

func routingError(code, msg string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: msg, Err: err}
}

func transitError(code, msg string, err error) *transit.Error {
	return &transit.Error{Provider: ProviderName, Code: code, Message: msg, Err: err}
}
