// Package config defines the runtime configuration of a serving instance:
// the refund lock time, the penalty rate applied to unacknowledged
// fine-tuning deliverables, and debug logging. It provides validation and
// defaulting helpers plus YAML file loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLockTime is the refund delay in seconds (24 hours).
	DefaultLockTime uint64 = 86400

	// DefaultPenaltyPercentage is the share of the task fee a fine-tuning
	// provider receives when the deliverable was never acknowledged.
	DefaultPenaltyPercentage uint64 = 30
)

// Config holds the runtime-mutable parameters of a serving instance.
// Use Validate to fill implicit defaults and check bounds.
type Config struct {
	// LockTime is the delay in seconds between requesting and processing a
	// refund. Default: 86400.
	LockTime uint64 `json:"lock_time" yaml:"lock_time"`
	// PenaltyPercentage discounts the fee of unacknowledged fine-tuning
	// deliverables, 0-100. Default: 30.
	PenaltyPercentage uint64 `json:"penalty_percentage" yaml:"penalty_percentage"`
	// Debug enables verbose logging.
	Debug bool `json:"debug" yaml:"debug"`
}

// Validate normalizes the configuration by applying defaults for LockTime
// and PenaltyPercentage and verifies that PenaltyPercentage stays within
// 0-100.
func (c *Config) Validate() error {
	if c.LockTime == 0 {
		c.LockTime = DefaultLockTime
	}
	if c.PenaltyPercentage == 0 {
		c.PenaltyPercentage = DefaultPenaltyPercentage
	}
	if c.PenaltyPercentage > 100 {
		return fmt.Errorf("penalty percentage %d exceeds 100", c.PenaltyPercentage)
	}
	return nil
}

// Load reads a YAML configuration file and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
