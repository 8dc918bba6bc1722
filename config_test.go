package portmapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, cfg.Validate())
		require.Equal(t, time.Minute, cfg.TickInterval)
	})

	t.Run("Zero fields are filled with defaults", func(t *testing.T) {
		cfg := (&Config{TickInterval: 5 * time.Second}).withDefaults()
		require.Equal(t, 5*time.Second, cfg.TickInterval)
		require.Equal(t, defaultMappingLease, cfg.MappingLease)
		require.Equal(t, defaultDiscoveryTimeout, cfg.DiscoveryTimeout)
	})

	t.Run("Negative durations are rejected", func(t *testing.T) {
		require.Error(t, (&Config{TickInterval: -1}).Validate())
		require.Error(t, (&Config{MappingLease: -1}).Validate())
		require.Error(t, (&Config{DiscoveryTimeout: -1}).Validate())
	})
}
