// Package commute estimates commute times from many origins to one
// destination and builds route detail for a single pair.
package commute

import (
	"math"
	"strings"

	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/internal/transit"
)

// Unreachable is the duration carried by NO_PATH results. It is larger than
// any commute limit a caller can send, so a limit filter always drops it.
const Unreachable = math.MaxInt32

// Mode is the transport mode requested by the caller.
type Mode string

const (
	ModeDriving Mode = "DRIVING"
	ModeTransit Mode = "TRANSIT"
)

// ParseMode maps a request value to a Mode. "driving" and "자차" select
// driving; every other value, including the empty string, selects transit.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driving", "자차", "car":
		return ModeDriving
	default:
		return ModeTransit
	}
}

// Method tags how a Result was obtained.
type Method string

const (
	MethodDriving      Method = "DRIVING"
	MethodTransit      Method = "TRANSIT"
	MethodWalkFallback Method = "WALK_FALLBACK"
	MethodNoPath       Method = "NO_PATH"
)

// ParseMethod maps a request value to a Method. Unknown values return "".
func ParseMethod(s string) Method {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodDriving, MethodTransit, MethodWalkFallback, MethodNoPath:
		return m
	default:
		return ""
	}
}

// Origin is a keyed start point.
type Origin = routing.Origin

// Result is the estimated commute for one origin.
type Result struct {
	OriginID    int64  `json:"originId"`
	DurationMin int    `json:"durationMin"`
	Method      Method `json:"method"`
}

// Reachable reports whether r carries a real duration.
func (r Result) Reachable() bool {
	return r.Method != MethodNoPath && r.DurationMin < Unreachable
}

func noPath(id int64) Result {
	return Result{OriginID: id, DurationMin: Unreachable, Method: MethodNoPath}
}

// Detail modes.
const (
	DetailModeTransit = "transit"
	DetailModeWalking = "walking"
	DetailModeNoPath  = "no path"
)

// CodeTooFarToWalk explains a no-path detail.
const CodeTooFarToWalk = "TOO_FAR_TO_WALK"

// Detail is the route shown for one origin/destination pair. Transit details
// carry the provider's fastest path unchanged. Walking and no-path details
// only fill the summary fields.
type Detail struct {
	Mode         string        `json:"mode"`
	TrafficType  int           `json:"trafficType"`
	TotalTime    int           `json:"totalTime,omitempty"`
	TotalTimeSec int           `json:"totalTimeSec,omitempty"`
	Distance     int           `json:"distance,omitempty"`
	Code         string        `json:"code,omitempty"`
	Path         *transit.Path `json:"path,omitempty"`
}

func walkingDetail(minutes, meters int) *Detail {
	return &Detail{
		Mode:         DetailModeWalking,
		TrafficType:  transit.TrafficWalk,
		TotalTime:    minutes,
		TotalTimeSec: minutes * 60,
		Distance:     meters,
	}
}

func noPathDetail() *Detail {
	return &Detail{Mode: DetailModeNoPath, TrafficType: -1, Code: CodeTooFarToWalk}
}

func transitDetail(p transit.Path) *Detail {
	return &Detail{
		Mode:         DetailModeTransit,
		TrafficType:  p.PathType,
		TotalTime:    p.Info.TotalTime,
		TotalTimeSec: p.Info.TotalTime * 60,
		Distance:     int(math.Round(p.Info.TotalDistance)),
		Path:         &p,
	}
}
