package portmapper

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGateway implements Gateway for testing. It tracks the mappings it
// holds and can be configured to fail individual operations, so lifecycle
// behavior can be exercised without a real NAT device.
type MockGateway struct {
	mu       sync.Mutex
	id       string
	lifetime time.Duration
	now      func() time.Time

	createErr  error
	deleteErr  error
	queryErr   error
	deleteHook func()

	active  map[Mapping]*Lease
	creates []Mapping
	deletes []Mapping
	queries []uint16
}

// NewMockGateway creates a mock gateway issuing 1-hour leases.
func NewMockGateway(id string) *MockGateway {
	return &MockGateway{
		id:       id,
		lifetime: time.Hour,
		now:      time.Now,
		active:   make(map[Mapping]*Lease),
	}
}

// SetLeaseLifetime sets the lifetime granted on future creates. Zero means
// permanent leases.
func (g *MockGateway) SetLeaseLifetime(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lifetime = d
}

// SetNowFunc overrides the clock used to stamp lease expiries.
func (g *MockGateway) SetNowFunc(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// SetCreateError makes CreateMapping fail with err (nil to restore).
func (g *MockGateway) SetCreateError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createErr = err
}

// SetDeleteError makes DeleteMapping fail with err (nil to restore).
func (g *MockGateway) SetDeleteError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteErr = err
}

// SetQueryError makes QueryMapping fail with err (nil to restore).
func (g *MockGateway) SetQueryError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryErr = err
}

// SetDeleteHook installs fn to run at the start of every DeleteMapping
// call, outside the mock's lock. Used to trigger cancellation mid-teardown.
func (g *MockGateway) SetDeleteHook(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteHook = fn
}

// DropMapping silently forgets a held mapping, simulating a gateway that
// expired it behind our back.
func (g *MockGateway) DropMapping(m Mapping) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, m)
}

// CreateCalls returns every mapping passed to CreateMapping, in order.
func (g *MockGateway) CreateCalls() []Mapping {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Mapping, len(g.creates))
	copy(out, g.creates)
	return out
}

// DeleteCalls returns every mapping passed to DeleteMapping, in order.
func (g *MockGateway) DeleteCalls() []Mapping {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Mapping, len(g.deletes))
	copy(out, g.deletes)
	return out
}

// QueryCalls returns the public ports passed to QueryMapping, in order.
func (g *MockGateway) QueryCalls() []uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uint16, len(g.queries))
	copy(out, g.queries)
	return out
}

// ActiveMappings returns the mappings the gateway currently holds.
func (g *MockGateway) ActiveMappings() []Mapping {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Mapping, 0, len(g.active))
	for m := range g.active {
		out = append(out, m)
	}
	return out
}

// ID implements Gateway.
func (g *MockGateway) ID() string { return g.id }

// String implements Gateway.
func (g *MockGateway) String() string { return fmt.Sprintf("mock gateway %s", g.id) }

// CreateMapping implements Gateway.
func (g *MockGateway) CreateMapping(ctx context.Context, m Mapping) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates = append(g.creates, m)
	if g.createErr != nil {
		return nil, g.createErr
	}
	lease := &Lease{Mapping: m, Lifetime: g.lifetime}
	if g.lifetime > 0 {
		lease.Expiry = g.now().Add(g.lifetime)
	}
	g.active[m] = lease
	return lease, nil
}

// DeleteMapping implements Gateway.
func (g *MockGateway) DeleteMapping(ctx context.Context, lease *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	hook := g.deleteHook
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, lease.Mapping)
	if g.deleteErr != nil {
		return g.deleteErr
	}
	if _, ok := g.active[lease.Mapping]; !ok {
		return ErrNoSuchMapping
	}
	delete(g.active, lease.Mapping)
	return nil
}

// QueryMapping implements Gateway.
func (g *MockGateway) QueryMapping(ctx context.Context, protocol Protocol, publicPort uint16) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, publicPort)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	for m, lease := range g.active {
		if m.Protocol == protocol && lease.Mapping.PublicPort == publicPort {
			return lease, nil
		}
	}
	return nil, ErrNoSuchMapping
}

// MockDiscoverer implements Discoverer for testing. Tests announce
// gateways at any point after the manager subscribes.
type MockDiscoverer struct {
	mu    sync.Mutex
	ch    chan Gateway
	calls int
}

// NewMockDiscoverer creates a mock discovery stream.
func NewMockDiscoverer() *MockDiscoverer {
	return &MockDiscoverer{ch: make(chan Gateway, 16)}
}

// Discover implements Discoverer. The same channel is returned on every
// call; the count of calls is recorded for subscription-dedup assertions.
func (d *MockDiscoverer) Discover(ctx context.Context) <-chan Gateway {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.ch
}

// DiscoverCalls returns how many times the manager subscribed.
func (d *MockDiscoverer) DiscoverCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Announce emits gw as a gateway-found event.
func (d *MockDiscoverer) Announce(gw Gateway) {
	d.ch <- gw
}
