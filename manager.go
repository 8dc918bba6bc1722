package portmapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// Manager owns the set of desired port mappings and drives their creation,
// renewal, retry and deletion against discovered NAT gateways. It is safe
// for concurrent use: gateway-found events, caller registration calls and
// the periodic renewal tick all serialize through a weighted semaphore, so
// a waiting operation suspends its goroutine instead of blocking a thread
// and honors its caller's context while waiting.
//
// Per-mapping states and transitions:
//
//	pending --create succeeds--> created
//	pending --create fails-----> failed
//	created --renewal fails----> failed
//	failed  --retry succeeds---> created
//	any     --Stop-------------> pending
//
// Unregister is the only way a mapping permanently leaves the manager.
type Manager struct {
	cfg  *Config
	disc Discoverer
	clk  clock.Clock

	// sem guards set transitions, gateways and the discovery flag.
	// Gateway network calls run sequentially inside the critical
	// section; gateway counts are small, so serialization is preferred
	// over per-gateway fan-out.
	sem *semaphore.Weighted

	set      atomic.Pointer[MappingSet]
	gateways []Gateway
	bindings bindingList

	discoveryActive bool
	active          atomic.Bool
	discCancel      context.CancelFunc
	renewCancel     context.CancelFunc

	// tickCounter indexes the failed-mapping retry rotation. Only the
	// renewal tick touches it, under sem.
	tickCounter uint64

	cbMu      sync.Mutex
	onChanged func()
}

// NewManager creates a manager that applies mappings to gateways emitted by
// disc. A nil cfg uses DefaultConfig.
func NewManager(cfg *Config, disc Discoverer) (*Manager, error) {
	if disc == nil {
		return nil, errors.New("nil discoverer")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m := &Manager{
		cfg:  cfg.withDefaults(),
		disc: disc,
		clk:  clock.New(),
		sem:  semaphore.NewWeighted(1),
	}
	m.set.Store(&EmptyMappingSet)
	return m, nil
}

// SetMappingsChangedCallback registers fn to be called after any observable
// change to the mapping set. It is invoked outside all locks.
func (m *Manager) SetMappingsChangedCallback(fn func()) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onChanged = fn
}

// Mappings returns the current pending/created/failed snapshot.
func (m *Manager) Mappings() MappingSet {
	return *m.set.Load()
}

// Active reports whether gateway discovery is running.
func (m *Manager) Active() bool {
	return m.active.Load()
}

// Start begins gateway discovery and launches the renewal loop. Calling
// Start while already active is a no-op for discovery but still rebinds the
// renewal loop to a fresh cancellation scope. Discovery failures surface
// asynchronously as an empty gateway list, which is a valid steady state.
func (m *Manager) Start() {
	// Background context: acquisition cannot be cancelled, and every
	// holder releases in bounded time, so this never returns an error.
	_ = m.sem.Acquire(context.Background(), 1)
	defer m.sem.Release(1)

	if !m.discoveryActive {
		m.discoveryActive = true
		m.active.Store(true)

		ctx, cancel := context.WithCancel(context.Background())
		m.discCancel = cancel
		go m.consumeDiscoveries(ctx, m.disc.Discover(ctx))
		slog.Debug("gateway discovery started")
	}

	if m.renewCancel != nil {
		m.renewCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.renewCancel = cancel
	go m.renewLoop(ctx)
}

// Stop cancels the renewal loop, stops discovery and returns every mapping
// to pending. If removeExisting is set, each active binding is deleted from
// its gateway first; deletion errors are logged, not propagated, except a
// context cancellation, which aborts the remaining deletes and is returned.
// The gateway list and binding collection are cleared on every exit path.
func (m *Manager) Stop(ctx context.Context, removeExisting bool) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	err := m.stopLocked(ctx, removeExisting)
	m.sem.Release(1)
	m.notify()
	return err
}

func (m *Manager) stopLocked(ctx context.Context, removeExisting bool) error {
	if m.discCancel != nil {
		m.discCancel()
		m.discCancel = nil
	}
	if m.renewCancel != nil {
		m.renewCancel()
		m.renewCancel = nil
	}
	m.discoveryActive = false
	m.active.Store(false)
	m.storeSet(m.curSet().WithAllPending())

	defer func() {
		m.gateways = nil
		m.bindings.clear()
	}()

	if !removeExisting {
		return nil
	}

	var errs error
	for _, b := range m.bindings.snapshot() {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err := b.gw.DeleteMapping(ctx, b.lease); err != nil && !errors.Is(err, ErrNoSuchMapping) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s: %w", b.gw, b.mapping, err))
		}
	}
	if errs != nil {
		slog.Warn("failed to remove some port mappings during shutdown", "error", errs)
	}
	return nil
}

// Register adds mp to the desired set. If discovery is active it is
// immediately attempted on every known gateway: any success marks the
// mapping created, otherwise it is marked failed and retried on later
// ticks. With discovery inactive the mapping waits in pending.
func (m *Manager) Register(ctx context.Context, mp Mapping) error {
	if err := mp.Validate(); err != nil {
		return err
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	m.storeSet(m.curSet().WithPending(mp))
	if m.discoveryActive {
		m.applyMappingLocked(ctx, mp, m.gateways)
	}
	m.sem.Release(1)
	m.notify()
	return ctx.Err()
}

// Unregister removes mp from the desired set. If it had been created, its
// bindings are deleted from their gateways best-effort: a gateway reporting
// ErrNoSuchMapping is treated as already absent, and a cancellation stops
// further deletes without rolling back the removal.
func (m *Manager) Unregister(ctx context.Context, mp Mapping) error {
	if err := mp.Validate(); err != nil {
		return err
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	set, wasCreated := m.curSet().Remove(mp)
	m.storeSet(set)

	var err error
	if wasCreated {
		for _, b := range m.bindings.takeForMapping(mp) {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
				break
			}
			derr := b.gw.DeleteMapping(ctx, b.lease)
			switch {
			case derr == nil:
			case errors.Is(derr, ErrNoSuchMapping):
				slog.Debug("mapping already absent on gateway", "gateway", b.gw, "mapping", mp)
			default:
				slog.Warn("failed to delete mapping", "gateway", b.gw, "mapping", mp, "error", derr)
			}
		}
	}
	m.sem.Release(1)
	m.notify()
	return err
}

// consumeDiscoveries feeds gateway-found events from the discovery stream
// into the manager's critical section.
func (m *Manager) consumeDiscoveries(ctx context.Context, found <-chan Gateway) {
	for {
		select {
		case <-ctx.Done():
			return
		case gw, ok := <-found:
			if !ok {
				return
			}
			m.handleGatewayFound(ctx, gw)
		}
	}
}

// handleGatewayFound appends a newly discovered gateway and applies every
// pending mapping to it, so mappings registered before any gateway existed
// are honored once one appears.
func (m *Manager) handleGatewayFound(ctx context.Context, gw Gateway) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	for _, known := range m.gateways {
		if known.ID() == gw.ID() {
			m.sem.Release(1)
			return
		}
	}
	m.gateways = append(m.gateways, gw)
	slog.Info("NAT gateway found", "gateway", gw)

	changed := false
	for _, mp := range m.curSet().Pending() {
		if m.applyMappingLocked(ctx, mp, []Gateway{gw}) {
			changed = true
		}
	}
	m.sem.Release(1)
	if changed {
		m.notify()
	}
}

// applyMappingLocked runs the create-or-fail logic for one mapping against
// the given gateways. Any success wins: the mapping ends created if at
// least one gateway accepted it, and a binding is recorded per success.
// Must be called with sem held. Reports whether the set or the bindings
// observably changed.
func (m *Manager) applyMappingLocked(ctx context.Context, mp Mapping, gws []Gateway) bool {
	if len(gws) == 0 || ctx.Err() != nil {
		return false
	}

	created := false
	for _, gw := range gws {
		if ctx.Err() != nil {
			break
		}
		if m.bindings.has(gw, mp) {
			created = true
			continue
		}
		lease, err := gw.CreateMapping(ctx, mp)
		if err != nil {
			slog.Warn("failed to create mapping", "gateway", gw, "mapping", mp, "error", err)
			continue
		}
		m.bindings.add(binding{gw: gw, mapping: mp, lease: lease})
		created = true
		slog.Debug("mapping created", "gateway", gw, "mapping", mp, "lifetime", lease.Lifetime)
	}

	set := m.curSet()
	if created {
		m.storeSet(set.WithCreated(mp))
		return true
	}
	m.storeSet(set.WithFailed(mp))
	return !containsMapping(set.failed, mp)
}

func (m *Manager) curSet() MappingSet {
	return *m.set.Load()
}

// storeSet publishes a new snapshot. Must be called with sem held.
func (m *Manager) storeSet(s MappingSet) {
	m.set.Store(&s)
}

// notify dispatches the mappings-changed callback outside all locks so a
// slow or reentrant callback cannot stall the manager.
func (m *Manager) notify() {
	m.cbMu.Lock()
	fn := m.onChanged
	m.cbMu.Unlock()
	if fn != nil {
		fn()
	}
}
