package portmapper

import (
	"context"
	"sync"
	"time"
)

// Discoverer is a stream of gateway-found events. The returned channel is
// closed once probing completes or ctx is cancelled. The manager consumes
// the channel from a single goroutine, so discovery implementations never
// touch manager state directly.
type Discoverer interface {
	Discover(ctx context.Context) <-chan Gateway
}

// natDiscoverer probes for UPnP and NAT-PMP gateways concurrently and fans
// the results into a single channel.
type natDiscoverer struct {
	timeout time.Duration
	lease   time.Duration
}

// NewNATDiscoverer returns the default discoverer, probing UPnP
// (WANIPConnection2, then WANIPConnection1, then WANPPPConnection1) and
// NAT-PMP. Discovered gateways request leases of the given duration.
func NewNATDiscoverer(probeTimeout, mappingLease time.Duration) Discoverer {
	if probeTimeout <= 0 {
		probeTimeout = defaultDiscoveryTimeout
	}
	if mappingLease <= 0 {
		mappingLease = defaultMappingLease
	}
	return &natDiscoverer{timeout: probeTimeout, lease: mappingLease}
}

func (d *natDiscoverer) Discover(ctx context.Context) <-chan Gateway {
	out := make(chan Gateway)

	go func() {
		defer close(out)

		probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		probes := []func(context.Context, time.Duration) []Gateway{
			discoverUPnPGateways,
			discoverNATPMPGateways,
		}

		var wg sync.WaitGroup
		for _, probe := range probes {
			wg.Add(1)
			go func(probe func(context.Context, time.Duration) []Gateway) {
				defer wg.Done()
				for _, gw := range probe(probeCtx, d.lease) {
					select {
					case out <- gw:
					case <-ctx.Done():
						return
					}
				}
			}(probe)
		}
		wg.Wait()
	}()

	return out
}
