package store

import (
	"time"

	"dario.cat/mergo"
)

// Config carries store-wide settings
type Config struct {
	// TTL is the duration after which idle conversations expire.
	// 0 means no expiration.
	TTL time.Duration

	// BaseDir is where the file store keeps conversation files.
	// Empty means the per-user default.
	BaseDir string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TTL: 0,
	}
}

// MergeDefaults fills zero fields of cfg from defaults and returns a new
// value; set fields in cfg always win
func MergeDefaults(cfg *Config, defaults *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	if defaults == nil {
		out := *cfg
		return &out
	}

	out := *cfg
	if err := mergo.Merge(&out, *defaults); err != nil {
		// fall back to the explicit config on merge failure
		return cfg
	}
	return &out
}
