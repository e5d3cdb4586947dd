package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rosterFile is the on-disk shape of an agent roster file
type rosterFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadRoster reads an agent roster from a YAML file.
// When path is empty the built-in default roster is returned.
func LoadRoster(path string) ([]AgentSpec, error) {
	if path == "" {
		return DefaultRoster(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 Path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	if len(rf.Agents) == 0 {
		return nil, fmt.Errorf("roster file %s declares no agents", path)
	}

	for i, spec := range rf.Agents {
		if spec.ID == "" || spec.Name == "" || spec.ModelHandle == "" {
			return nil, fmt.Errorf("roster entry %d is missing id, name or model_handle", i)
		}
	}

	return rf.Agents, nil
}

// DefaultRoster returns the built-in agent lineup used when no roster file is given
func DefaultRoster() []AgentSpec {
	return []AgentSpec{
		{
			ID:          "momentum",
			Name:        "Momentum",
			ModelHandle: "gpt-4o",
			Personality: "Aggressive momentum trader. Chases strength, cuts losers fast, favors high-volume breakouts.",
		},
		{
			ID:          "value",
			Name:        "Value",
			ModelHandle: "claude-sonnet-4-20250514",
			Personality: "Patient contrarian. Buys quality names on oversold dips, avoids crowded trades, sizes conservatively.",
		},
		{
			ID:          "quant",
			Name:        "Quant",
			ModelHandle: "deepseek-chat",
			Personality: "Signal-driven systematic trader. Trades only when technicals, volume and smart-money flows align.",
		},
	}
}
