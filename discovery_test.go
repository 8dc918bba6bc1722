package portmapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNATDiscovererClosesOnCancellation(t *testing.T) {
	d := NewNATDiscoverer(50*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	found := d.Discover(ctx)
	select {
	case _, ok := <-found:
		for ok {
			_, ok = <-found
		}
	case <-time.After(5 * time.Second):
		t.Fatal("discovery channel did not close after cancellation")
	}
}

func TestMockDiscovererDeliversAnnouncements(t *testing.T) {
	d := NewMockDiscoverer()
	found := d.Discover(context.Background())
	require.Equal(t, 1, d.DiscoverCalls())

	gw := NewMockGateway("g1")
	d.Announce(gw)

	select {
	case got := <-found:
		require.Equal(t, gw.ID(), got.ID())
	case <-time.After(time.Second):
		t.Fatal("announced gateway was not delivered")
	}
}
