// Package transit defines the public-transit route provider contract and
// the path model returned to clients for route detail.
package transit

import (
	"context"
	"errors"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Transit errors.
var (
	ErrProviderUnavailable = errors.New("transit provider unavailable")
	ErrNoPath              = errors.New("no transit path found")
	ErrRateLimitExceeded   = errors.New("transit rate limit exceeded")
)

// Traffic types used by SubPath.TrafficType.
const (
	TrafficSubway = 1
	TrafficBus    = 2
	TrafficWalk   = 3
)

// Provider answers transit queries.
type Provider interface {
	// MinDuration returns the smallest total time in minutes across the paths
	// found between origin and dest.
	MinDuration(ctx context.Context, origin, dest geo.Point) (int, error)

	// Paths returns every path the provider found, in provider order.
	Paths(ctx context.Context, origin, dest geo.Point) ([]Path, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Path is one public-transit itinerary.
type Path struct {
	PathType int       `json:"pathType"`
	Info     PathInfo  `json:"info"`
	SubPaths []SubPath `json:"subPath"`

	// Geometry is the decoded route line when the provider supplies one.
	Geometry []geo.Point `json:"geometry,omitempty"`
}

// PathInfo summarises a Path.
type PathInfo struct {
	TotalTime          int     `json:"totalTime"`
	Payment            int     `json:"payment"`
	BusTransitCount    int     `json:"busTransitCount"`
	SubwayTransitCount int     `json:"subwayTransitCount"`
	TotalWalk          int     `json:"totalWalk"`
	TotalDistance      float64 `json:"totalDistance"`
	FirstStartStation  string  `json:"firstStartStation,omitempty"`
	LastEndStation     string  `json:"lastEndStation,omitempty"`
	MapObj             string  `json:"mapObj,omitempty"`
}

// SubPath is one leg of a Path.
type SubPath struct {
	TrafficType  int     `json:"trafficType"`
	Distance     float64 `json:"distance"`
	SectionTime  int     `json:"sectionTime"`
	StationCount int     `json:"stationCount,omitempty"`
	Lanes        []Lane  `json:"lane,omitempty"`
	StartName    string  `json:"startName,omitempty"`
	EndName      string  `json:"endName,omitempty"`
	StartX       float64 `json:"startX,omitempty"`
	StartY       float64 `json:"startY,omitempty"`
	EndX         float64 `json:"endX,omitempty"`
	EndY         float64 `json:"endY,omitempty"`
}

// Lane is a bus route or subway line used by a SubPath.
type Lane struct {
	Name       string `json:"name,omitempty"`
	BusNo      string `json:"busNo,omitempty"`
	SubwayCode int    `json:"subwayCode,omitempty"`
}

// Fastest returns the path with the smallest total time. The first path wins
// ties. ok is false when paths is empty.
func Fastest(paths []Path) (best Path, ok bool) {
	for i, p := range paths {
		if i == 0 || p.Info.TotalTime < best.Info.TotalTime {
			best = p
		}
	}
	return best, len(paths) > 0
}

// Error carries provider details for a failed transit call.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
