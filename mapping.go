package portmapper

import "fmt"

// Protocol identifies the transport protocol of a port mapping.
type Protocol string

const (
	// TCP protocol mappings forward inbound TCP connections.
	TCP Protocol = "TCP"
	// UDP protocol mappings forward inbound UDP datagrams.
	UDP Protocol = "UDP"
)

// Mapping describes one desired port forwarding: forward PublicPort on the
// gateway's external interface to PrivatePort on this host. Mappings are
// immutable values compared structurally.
type Mapping struct {
	Protocol    Protocol
	PrivatePort uint16
	PublicPort  uint16
}

// NewMapping creates a mapping that forwards the same port number
// externally and internally, the common case.
func NewMapping(protocol Protocol, port uint16) Mapping {
	return Mapping{Protocol: protocol, PrivatePort: port, PublicPort: port}
}

// Validate reports whether the mapping is well formed. Invalid mappings are
// rejected at the call boundary rather than absorbed as gateway failures.
func (m Mapping) Validate() error {
	if m.Protocol != TCP && m.Protocol != UDP {
		return fmt.Errorf("unsupported protocol: %q", string(m.Protocol))
	}
	if m.PrivatePort == 0 {
		return fmt.Errorf("invalid private port: 0 (must be 1-65535)")
	}
	if m.PublicPort == 0 {
		return fmt.Errorf("invalid public port: 0 (must be 1-65535)")
	}
	return nil
}

func (m Mapping) String() string {
	return fmt.Sprintf("%s %d->%d", m.Protocol, m.PublicPort, m.PrivatePort)
}
