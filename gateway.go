package portmapper

import (
	"context"
	"errors"
	"time"
)

// ErrNoSuchMapping is returned by Gateway.DeleteMapping and
// Gateway.QueryMapping when the gateway has no mapping for the given ports.
// Callers treat it as "already absent" on delete and "expired" on query.
var ErrNoSuchMapping = errors.New("no such mapping")

// ErrQueryUnsupported is returned by gateways whose NAT protocol has no way
// to query an existing mapping (NAT-PMP). Such gateways only ever issue
// finite leases, so the query path is never required for them.
var ErrQueryUnsupported = errors.New("mapping query not supported")

// Lease is the gateway-issued handle for one native port mapping. A
// Lifetime of zero means the mapping is permanent (or the gateway did not
// report a lifetime); otherwise Expiry is the absolute time the lease runs
// out. The embedded Mapping records what the gateway actually granted,
// which may differ from the request in its public port.
type Lease struct {
	Mapping  Mapping
	Lifetime time.Duration
	Expiry   time.Time
}

// Gateway is a discovered NAT device that can create, delete and query port
// mappings. Implementations speak a concrete NAT protocol (UPnP, NAT-PMP);
// the lifecycle manager treats them as opaque capabilities.
type Gateway interface {
	// ID returns a stable identity for deduplicating repeated discovery
	// of the same device.
	ID() string

	// CreateMapping asks the gateway to forward m and returns the lease
	// it granted.
	CreateMapping(ctx context.Context, m Mapping) (*Lease, error)

	// DeleteMapping removes a previously created mapping. Returns
	// ErrNoSuchMapping if the gateway no longer has it.
	DeleteMapping(ctx context.Context, lease *Lease) error

	// QueryMapping looks up the gateway's current mapping for a public
	// port. Returns ErrNoSuchMapping if none exists, or
	// ErrQueryUnsupported if the protocol cannot ask.
	QueryMapping(ctx context.Context, protocol Protocol, publicPort uint16) (*Lease, error)

	// String returns a display-friendly protocol/endpoint descriptor
	// for diagnostics.
	String() string
}
