package portmapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/huin/goupnp/soap"
)

// UPnP error codes this package cares about.
const (
	upnpErrNoSuchEntry         = 714 // NoSuchEntryInArray
	upnpErrOnlyPermanentLeases = 725 // OnlyPermanentLeasesSupported
)

// upnpClient is the subset of goupnp's generated IGD clients used here.
// Satisfied by WANIPConnection1, WANIPConnection2 and WANPPPConnection1.
type upnpClient interface {
	AddPortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
		NewInternalPort uint16,
		NewInternalClient string,
		NewEnabled bool,
		NewPortMappingDescription string,
		NewLeaseDuration uint32,
	) error
	DeletePortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) error
	GetSpecificPortMappingEntryCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) (NewInternalPort uint16, NewInternalClient string, NewEnabled bool,
		NewPortMappingDescription string, NewLeaseDuration uint32, err error)
}

// upnpGateway adapts a UPnP IGD service to the Gateway capability.
type upnpGateway struct {
	client upnpClient
	id     string
	kind   string // WANIPConnection2, WANIPConnection1 or WANPPPConnection1
	lease  time.Duration
}

func (g *upnpGateway) ID() string { return g.id }

func (g *upnpGateway) String() string {
	return fmt.Sprintf("UPnP (%s) at %s", g.kind, g.id)
}

func (g *upnpGateway) CreateMapping(ctx context.Context, m Mapping) (*Lease, error) {
	localIP, err := localListenIP()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IP: %w", err)
	}

	lifetime := g.lease
	err = g.client.AddPortMappingCtx(ctx, "", m.PublicPort, string(m.Protocol),
		m.PrivatePort, localIP, true, mappingDescription, uint32(lifetime.Seconds()))
	if upnpErrorCode(err) == upnpErrOnlyPermanentLeases {
		// Some routers reject any finite lease; fall back to a
		// permanent mapping and let the query path verify it.
		lifetime = 0
		err = g.client.AddPortMappingCtx(ctx, "", m.PublicPort, string(m.Protocol),
			m.PrivatePort, localIP, true, mappingDescription, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("UPnP port mapping failed: %w", err)
	}

	lease := &Lease{Mapping: m, Lifetime: lifetime}
	if lifetime > 0 {
		lease.Expiry = time.Now().Add(lifetime)
	}
	return lease, nil
}

func (g *upnpGateway) DeleteMapping(ctx context.Context, lease *Lease) error {
	err := g.client.DeletePortMappingCtx(ctx, "", lease.Mapping.PublicPort, string(lease.Mapping.Protocol))
	if upnpErrorCode(err) == upnpErrNoSuchEntry {
		return ErrNoSuchMapping
	}
	if err != nil {
		return fmt.Errorf("UPnP port unmapping failed: %w", err)
	}
	return nil
}

func (g *upnpGateway) QueryMapping(ctx context.Context, protocol Protocol, publicPort uint16) (*Lease, error) {
	internalPort, _, _, _, leaseSeconds, err := g.client.GetSpecificPortMappingEntryCtx(
		ctx, "", publicPort, string(protocol))
	if upnpErrorCode(err) == upnpErrNoSuchEntry {
		return nil, ErrNoSuchMapping
	}
	if err != nil {
		return nil, fmt.Errorf("UPnP mapping query failed: %w", err)
	}

	lease := &Lease{
		Mapping:  Mapping{Protocol: protocol, PrivatePort: internalPort, PublicPort: publicPort},
		Lifetime: time.Duration(leaseSeconds) * time.Second,
	}
	if lease.Lifetime > 0 {
		lease.Expiry = time.Now().Add(lease.Lifetime)
	}
	return lease, nil
}

// upnpErrorCode extracts the UPnP error code from a SOAP fault, or 0.
func upnpErrorCode(err error) int {
	var fault *soap.SOAPFaultError
	if errors.As(err, &fault) {
		return fault.Detail.UPnPError.Errorcode
	}
	return 0
}

// discoverUPnPGateways probes for IGD devices, trying service types in
// order of preference: WANIPConnection2 (newest), WANIPConnection1 (common
// on cable/fiber routers), then WANPPPConnection1 (PPPoE/DSL routers). The
// first tier that responds wins; every client in that tier becomes a
// gateway.
func discoverUPnPGateways(ctx context.Context, lease time.Duration) []Gateway {
	var gateways []Gateway

	if clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil && len(clients) > 0 {
		for _, c := range clients {
			gateways = append(gateways, newUPnPGateway(c, "WANIPConnection2", c.ServiceClient.Location.Host, lease))
		}
		return gateways
	}
	if ctx.Err() != nil {
		return nil
	}

	if clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		for _, c := range clients {
			gateways = append(gateways, newUPnPGateway(c, "WANIPConnection1", c.ServiceClient.Location.Host, lease))
		}
		return gateways
	}
	if ctx.Err() != nil {
		return nil
	}

	if clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		for _, c := range clients {
			gateways = append(gateways, newUPnPGateway(c, "WANPPPConnection1", c.ServiceClient.Location.Host, lease))
		}
		return gateways
	}

	slog.Debug("no UPnP IGD devices found")
	return nil
}

func newUPnPGateway(client upnpClient, kind, host string, lease time.Duration) Gateway {
	return &upnpGateway{
		client: client,
		id:     fmt.Sprintf("upnp:%s:%s", kind, host),
		kind:   kind,
		lease:  lease,
	}
}

// localListenIP discovers the local IP a gateway should forward to.
// Declared as a variable so tests can run without a routable interface.
var localListenIP = func() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type: %T", conn.LocalAddr())
	}
	return localAddr.IP.String(), nil
}
