package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/roomcommute/roomcommute/internal/commute"
)

// LoadPolicyFile reads commute thresholds from a YAML file. Keys left out
// keep their defaults and unknown keys are rejected, e.g.
//
//	walkGateKm: 1.2
//	maxWalkMin: 15
//	taskTimeout: 1500ms
func LoadPolicyFile(path string) (commute.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return commute.Policy{}, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over the defaults.
func ParsePolicy(data []byte) (commute.Policy, error) {
	policy := commute.DefaultPolicy()
	if err := yaml.UnmarshalWithOptions(data, &policy, yaml.DisallowUnknownField()); err != nil {
		return commute.Policy{}, fmt.Errorf("parsing policy file: %w", err)
	}
	if policy.WalkGateKm <= 0 || policy.WalkSpeedMPerMin <= 0 {
		return commute.Policy{}, errors.New("parsing policy file: walkGateKm and walkSpeedMPerMin must be positive")
	}
	return policy.WithDefaults(), nil
}
