// Package portmapper manages dynamic NAT port mappings for hosts that need
// externally reachable ports. It discovers gateways over UPnP and NAT-PMP,
// applies registered mappings to every gateway it finds, renews leases
// before they expire and retries failed mappings in the background.
//
// Typical use:
//
//	m, err := portmapper.New()
//	if err != nil { ... }
//	m.Start()
//	err = m.Register(ctx, portmapper.NewMapping(portmapper.TCP, 6881))
//	...
//	err = m.Stop(ctx, true)
package portmapper

// New creates a Manager with the default configuration and the default
// UPnP/NAT-PMP discoverer. Use NewManager to supply a custom configuration
// or a custom discovery source.
func New() (*Manager, error) {
	cfg := DefaultConfig()
	return NewManager(cfg, NewNATDiscoverer(cfg.DiscoveryTimeout, cfg.MappingLease))
}
