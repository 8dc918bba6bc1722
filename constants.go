package portmapper

import "time"

// Defaults for the lifecycle manager's timing knobs.
const (
	// defaultTickInterval is how often the renewal loop walks the
	// active bindings and retries one failed mapping.
	defaultTickInterval = time.Minute

	// defaultMappingLease is the lease duration requested from
	// gateways. Leases are renewed well before expiry, so the exact
	// value mostly bounds how long a stale mapping outlives a crash.
	defaultMappingLease = 15 * time.Minute

	// defaultDiscoveryTimeout bounds a single UPnP/NAT-PMP discovery
	// probe.
	defaultDiscoveryTimeout = 10 * time.Second
)

// A lease is renewed once its remaining fraction drops to 2/3 or below.
const (
	renewFractionNum = 2
	renewFractionDen = 3
)

// mappingDescription is the label attached to UPnP mappings so they can be
// identified in router admin pages.
const mappingDescription = "go-portmapper"
