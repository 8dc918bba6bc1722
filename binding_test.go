package portmapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBindingList(t *testing.T) {
	gw1 := NewMockGateway("g1")
	gw2 := NewMockGateway("g2")
	a := NewMapping(TCP, 6881)
	b := NewMapping(UDP, 6881)

	t.Run("Add deduplicates by gateway and mapping", func(t *testing.T) {
		var l bindingList
		l.add(binding{gw: gw1, mapping: a, lease: &Lease{Mapping: a}})
		l.add(binding{gw: gw1, mapping: a, lease: &Lease{Mapping: a}})
		l.add(binding{gw: gw2, mapping: a, lease: &Lease{Mapping: a}})
		require.Equal(t, 2, l.len())
		require.True(t, l.has(gw1, a))
		require.False(t, l.has(gw1, b))
	})

	t.Run("takeForMapping removes across gateways", func(t *testing.T) {
		var l bindingList
		l.add(binding{gw: gw1, mapping: a, lease: &Lease{Mapping: a}})
		l.add(binding{gw: gw2, mapping: a, lease: &Lease{Mapping: a}})
		l.add(binding{gw: gw1, mapping: b, lease: &Lease{Mapping: b}})

		taken := l.takeForMapping(a)
		require.Len(t, taken, 2)
		require.Equal(t, 1, l.len())
		require.True(t, l.has(gw1, b))
	})

	t.Run("setLease replaces the lease in place", func(t *testing.T) {
		var l bindingList
		l.add(binding{gw: gw1, mapping: a, lease: &Lease{Mapping: a}})

		fresh := &Lease{Mapping: a, Lifetime: time.Hour}
		l.setLease(gw1, a, fresh)
		require.Same(t, fresh, l.snapshot()[0].lease)
	})

	t.Run("snapshot is isolated from later edits", func(t *testing.T) {
		var l bindingList
		l.add(binding{gw: gw1, mapping: a, lease: &Lease{Mapping: a}})
		snap := l.snapshot()
		l.clear()
		require.Len(t, snap, 1)
		require.Zero(t, l.len())
	})
}
