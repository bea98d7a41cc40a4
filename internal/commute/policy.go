package commute

import "time"

// Policy defaults.
const (
	// DefaultWalkGateKm is the straight-line distance above which walking is not considered.
	DefaultWalkGateKm = 1.5

	// DefaultWalkSpeedMPerMin converts a walking distance to minutes.
	DefaultWalkSpeedMPerMin = 80.0

	// DefaultMaxWalkMin is the longest walk reported as WALK_FALLBACK.
	DefaultMaxWalkMin = 20

	// DefaultPoolSize bounds concurrent transit calls per Estimate.
	DefaultPoolSize = 20

	// DefaultTaskTimeout bounds the wait for one transit answer.
	DefaultTaskTimeout = 1200 * time.Millisecond

	// DefaultDrivingCap and DefaultTransitCap bound how many of the closest
	// candidates a non-paged ranking sends to the engine.
	DefaultDrivingCap = 30
	DefaultTransitCap = 150

	// DefaultBatchSize is the page size used when a caller sends none.
	DefaultBatchSize = 30
)

// Policy holds the tunable thresholds of estimation and ranking.
type Policy struct {
	WalkGateKm       float64       `yaml:"walkGateKm"`
	WalkSpeedMPerMin float64       `yaml:"walkSpeedMPerMin"`
	MaxWalkMin       int           `yaml:"maxWalkMin"`
	PoolSize         int           `yaml:"poolSize"`
	TaskTimeout      time.Duration `yaml:"taskTimeout"`
	DrivingCap       int           `yaml:"drivingCap"`
	TransitCap       int           `yaml:"transitCap"`
	DefaultBatchSize int           `yaml:"defaultBatchSize"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		WalkGateKm:       DefaultWalkGateKm,
		WalkSpeedMPerMin: DefaultWalkSpeedMPerMin,
		MaxWalkMin:       DefaultMaxWalkMin,
		PoolSize:         DefaultPoolSize,
		TaskTimeout:      DefaultTaskTimeout,
		DrivingCap:       DefaultDrivingCap,
		TransitCap:       DefaultTransitCap,
		DefaultBatchSize: DefaultBatchSize,
	}
}

// WithDefaults returns p with every zero or negative field replaced by its default.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.WalkGateKm <= 0 {
		p.WalkGateKm = d.WalkGateKm
	}
	if p.WalkSpeedMPerMin <= 0 {
		p.WalkSpeedMPerMin = d.WalkSpeedMPerMin
	}
	if p.MaxWalkMin <= 0 {
		p.MaxWalkMin = d.MaxWalkMin
	}
	if p.PoolSize <= 0 {
		p.PoolSize = d.PoolSize
	}
	if p.TaskTimeout <= 0 {
		p.TaskTimeout = d.TaskTimeout
	}
	if p.DrivingCap <= 0 {
		p.DrivingCap = d.DrivingCap
	}
	if p.TransitCap <= 0 {
		p.TransitCap = d.TransitCap
	}
	if p.DefaultBatchSize <= 0 {
		p.DefaultBatchSize = d.DefaultBatchSize
	}
	return p
}

// CandidateCap returns how many candidates a non-paged ranking estimates for mode.
func (p Policy) CandidateCap(mode Mode) int {
	if mode == ModeDriving {
		return p.DrivingCap
	}
	return p.TransitCap
}
