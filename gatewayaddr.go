package portmapper

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
)

// defaultGatewayAddr finds the default gateway address for NAT-PMP. It
// reads the system routing table where available (/proc/net/route on
// Linux), falling back to the .1-in-local-subnet heuristic.
func defaultGatewayAddr() (net.IP, error) {
	if gw, err := readRouteTableGateway(); err == nil && gw != nil {
		return gw, nil
	}
	return gatewayAddrFallback()
}

// readRouteTableGateway reads the default route from /proc/net/route.
// Returns nil, nil when the file does not exist (non-Linux systems) or no
// default route is present.
func readRouteTableGateway() (net.IP, error) {
	file, err := os.Open("/proc/net/route")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open routing table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	// Skip header line
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty routing table")
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		// The default route has destination 00000000.
		if fields[1] != "00000000" {
			continue
		}
		gw, err := parseRouteHexIP(fields[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse gateway: %w", err)
		}
		if !gw.Equal(net.IPv4zero) {
			return gw, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading routing table: %w", err)
	}
	return nil, nil
}

// parseRouteHexIP converts the little-endian hex IP format used by
// /proc/net/route (e.g. "0101A8C0" = 192.168.1.1) to net.IP.
func parseRouteHexIP(hexIP string) (net.IP, error) {
	if len(hexIP) != 8 {
		return nil, fmt.Errorf("invalid hex IP length: %d", len(hexIP))
	}
	b, err := hex.DecodeString(hexIP)
	if err != nil {
		return nil, fmt.Errorf("invalid hex IP: %w", err)
	}
	return net.IPv4(b[3], b[2], b[1], b[0]), nil
}

// gatewayAddrFallback assumes the gateway sits at .1 in the subnet of the
// local IP that would route externally. No packets are sent by the dial;
// it only resolves the local side of the route. Works for most home and
// office networks where the router is x.x.x.1.
func gatewayAddrFallback() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, fmt.Errorf("failed to determine local IP: %w", err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type: %T", conn.LocalAddr())
	}
	ip := localAddr.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("not IPv4 address")
	}
	return net.IPv4(ip[0], ip[1], ip[2], 1), nil
}
