package portmapper

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRouteHexIP(t *testing.T) {
	t.Run("Little-endian hex decodes to dotted quad", func(t *testing.T) {
		ip, err := parseRouteHexIP("0101A8C0")
		require.NoError(t, err)
		require.True(t, ip.Equal(net.IPv4(192, 168, 1, 1)))
	})

	t.Run("Zero gateway decodes to 0.0.0.0", func(t *testing.T) {
		ip, err := parseRouteHexIP("00000000")
		require.NoError(t, err)
		require.True(t, ip.Equal(net.IPv4zero))
	})

	t.Run("Invalid inputs are rejected", func(t *testing.T) {
		_, err := parseRouteHexIP("0101A8")
		require.Error(t, err)
		_, err = parseRouteHexIP("ZZZZZZZZ")
		require.Error(t, err)
	})
}
