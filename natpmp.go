package portmapper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// natpmpGateway adapts a NAT-PMP router to the Gateway capability. NAT-PMP
// always issues finite leases and has no query operation; deletion is a
// zero-lifetime remap per the protocol.
type natpmpGateway struct {
	client *natpmp.Client
	addr   net.IP
	lease  time.Duration
}

func (g *natpmpGateway) ID() string { return "natpmp:" + g.addr.String() }

func (g *natpmpGateway) String() string {
	return fmt.Sprintf("NAT-PMP at %s", g.addr)
}

func (g *natpmpGateway) CreateMapping(ctx context.Context, m Mapping) (*Lease, error) {
	// The jackpal client has no context support; check before the call,
	// as the blocking window is bounded by the client's own timeout.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := g.client.AddPortMapping(
		strings.ToLower(string(m.Protocol)),
		int(m.PrivatePort),
		int(m.PublicPort),
		int(g.lease.Seconds()),
	)
	if err != nil {
		return nil, fmt.Errorf("NAT-PMP port mapping failed: %w", err)
	}

	granted := m
	granted.PublicPort = result.MappedExternalPort
	lifetime := time.Duration(result.PortMappingLifetimeInSeconds) * time.Second
	lease := &Lease{Mapping: granted, Lifetime: lifetime}
	if lifetime > 0 {
		lease.Expiry = time.Now().Add(lifetime)
	}
	return lease, nil
}

func (g *natpmpGateway) DeleteMapping(ctx context.Context, lease *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.client.AddPortMapping(
		strings.ToLower(string(lease.Mapping.Protocol)),
		int(lease.Mapping.PrivatePort), 0, 0)
	if err != nil {
		return fmt.Errorf("NAT-PMP port unmapping failed: %w", err)
	}
	return nil
}

func (g *natpmpGateway) QueryMapping(context.Context, Protocol, uint16) (*Lease, error) {
	return nil, ErrQueryUnsupported
}

// discoverNATPMPGateways locates the default gateway and tests whether it
// speaks NAT-PMP via an external-address request.
func discoverNATPMPGateways(ctx context.Context, lease time.Duration) []Gateway {
	addr, err := defaultGatewayAddr()
	if err != nil {
		slog.Debug("NAT-PMP gateway discovery failed", "error", err)
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	client := natpmp.NewClientWithTimeout(addr, natpmpProbeTimeout(ctx))
	if _, err := client.GetExternalAddress(); err != nil {
		slog.Debug("NAT-PMP connectivity test failed", "gateway", addr, "error", err)
		return nil
	}

	return []Gateway{&natpmpGateway{client: client, addr: addr, lease: lease}}
}

// natpmpProbeTimeout derives the client timeout from the probe context's
// deadline, defaulting when none is set.
func natpmpProbeTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return defaultDiscoveryTimeout
}
