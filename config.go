package portmapper

import (
	"fmt"
	"time"
)

// Config controls the lifecycle manager's timing. Zero fields are filled
// with defaults by NewManager.
type Config struct {
	// TickInterval is the period of the renewal/retry loop.
	TickInterval time.Duration

	// MappingLease is the lease duration requested when creating
	// mappings. Gateways may grant a different lifetime, or none at all.
	MappingLease time.Duration

	// DiscoveryTimeout bounds each gateway discovery probe performed by
	// the default discoverer.
	DiscoveryTimeout time.Duration
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:     defaultTickInterval,
		MappingLease:     defaultMappingLease,
		DiscoveryTimeout: defaultDiscoveryTimeout,
	}
}

// Validate rejects configurations the manager cannot run with.
func (c *Config) Validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("invalid tick interval: %v", c.TickInterval)
	}
	if c.MappingLease < 0 {
		return fmt.Errorf("invalid mapping lease: %v", c.MappingLease)
	}
	if c.DiscoveryTimeout < 0 {
		return fmt.Errorf("invalid discovery timeout: %v", c.DiscoveryTimeout)
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.TickInterval == 0 {
		out.TickInterval = defaultTickInterval
	}
	if out.MappingLease == 0 {
		out.MappingLease = defaultMappingLease
	}
	if out.DiscoveryTimeout == 0 {
		out.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	return &out
}
