package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// TargetSpec is one entry of the YAML seed file.
type TargetSpec struct {
	URL              string `yaml:"url"`
	Name             string `yaml:"name"`
	ValidWord        string `yaml:"valid_word"`
	Timeout          int    `yaml:"timeout"`
	CheckInterval    int    `yaml:"check_interval"`
	FailureThreshold int    `yaml:"failure_threshold"`
	Active           *bool  `yaml:"active"`
	AlertDestination string `yaml:"alert_destination"`
}

type targetsFile struct {
	Targets []TargetSpec `yaml:"targets"`
}

// LoadTargets reads and validates the seed file. Zero-valued limits take
// the configured defaults.
func LoadTargets(path string, d domain.Defaults) ([]*domain.Target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var f targetsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	out := make([]*domain.Target, 0, len(f.Targets))
	for i, s := range f.Targets {
		t := s.Target()
		t.ApplyDefaults(d)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, s.URL, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s TargetSpec) Target() *domain.Target {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	return &domain.Target{
		URL:              s.URL,
		Name:             s.Name,
		ValidWord:        s.ValidWord,
		TimeoutSec:       s.Timeout,
		CheckIntervalSec: s.CheckInterval,
		FailureThreshold: s.FailureThreshold,
		Active:           active,
		AlertDestination: s.AlertDestination,
	}
}
