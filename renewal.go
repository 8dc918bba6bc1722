package portmapper

import (
	"context"
	"errors"
	"log/slog"
)

// renewLoop walks the active bindings once per tick, renewing leases
// nearing expiry and retrying one failed mapping, until ctx is cancelled.
// A cancellation during the delay ends the loop cleanly; a cancellation
// inside a tick aborts that tick's remaining gateway calls.
func (m *Manager) renewLoop(ctx context.Context) {
	ticker := m.clk.Ticker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick performs one renewal sweep plus the retry-failed step, then emits
// the change notification if any mapping moved state.
func (m *Manager) tick(ctx context.Context) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	changed := m.renewBindingsLocked(ctx)
	if m.retryFailedLocked(ctx) {
		changed = true
	}
	m.tickCounter++
	m.sem.Release(1)
	if changed {
		m.notify()
	}
}

// renewBindingsLocked verifies or renews every active binding. Permanent
// leases are verified by query; finite leases are renewed once no more than
// 2/3 of their lifetime remains, by deleting and recreating the native
// mapping. A failed recreate drops the binding and marks the mapping
// failed; it stays unbound until the retry step picks it up. Must be called
// with sem held.
func (m *Manager) renewBindingsLocked(ctx context.Context) bool {
	changed := false
	for _, b := range m.bindings.snapshot() {
		if ctx.Err() != nil {
			break
		}

		permanent := b.lease.Lifetime == 0
		if permanent {
			_, err := b.gw.QueryMapping(ctx, b.mapping.Protocol, b.lease.Mapping.PublicPort)
			switch {
			case err == nil:
				continue
			case errors.Is(err, ErrNoSuchMapping):
				// Gateway dropped the mapping; recreate below.
			default:
				slog.Warn("mapping query failed, skipping this tick",
					"gateway", b.gw, "mapping", b.mapping, "error", err)
				continue
			}
		} else {
			remaining := b.lease.Expiry.Sub(m.clk.Now())
			if remaining > b.lease.Lifetime*renewFractionNum/renewFractionDen {
				continue
			}
		}

		if err := b.gw.DeleteMapping(ctx, b.lease); err != nil {
			switch {
			case errors.Is(err, ErrNoSuchMapping) && permanent:
				// Already confirmed gone by the query.
				slog.Debug("expired mapping already removed by gateway",
					"gateway", b.gw, "mapping", b.mapping)
			case errors.Is(err, ErrNoSuchMapping):
				slog.Error("mapping vanished before its lease expired",
					"gateway", b.gw, "mapping", b.mapping)
			default:
				slog.Warn("failed to delete mapping before renewal",
					"gateway", b.gw, "mapping", b.mapping, "error", err)
			}
		}

		lease, err := b.gw.CreateMapping(ctx, b.mapping)
		if err != nil {
			slog.Warn("mapping renewal failed",
				"gateway", b.gw, "mapping", b.mapping, "error", err)
			m.bindings.remove(b.gw, b.mapping)
			m.storeSet(m.curSet().WithFailed(b.mapping))
			changed = true
			continue
		}
		m.bindings.setLease(b.gw, b.mapping, lease)
		m.storeSet(m.curSet().WithCreated(b.mapping))
		slog.Debug("mapping renewed",
			"gateway", b.gw, "mapping", b.mapping, "lifetime", lease.Lifetime)
	}
	return changed
}

// retryFailedLocked re-runs the registration logic for exactly one failed
// mapping per tick, chosen by tickCounter modulo the failed count so every
// failed mapping is eventually retried without bursting all retries into a
// single tick. Must be called with sem held.
func (m *Manager) retryFailedLocked(ctx context.Context) bool {
	failed := m.curSet().Failed()
	if len(failed) == 0 {
		return false
	}
	mp := failed[m.tickCounter%uint64(len(failed))]
	return m.applyMappingLocked(ctx, mp, m.gateways)
}
