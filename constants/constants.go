// Package constants constains shared constants between the various
// shellbox services.
package constants

// MaxConsolesPerOwner represents the default maximum of live consoles a
// single owner may hold at once. The ceiling can be raised or lowered per
// deployment through configuration, but every environment gets this value
// unless it says otherwise.
const MaxConsolesPerOwner = 12

// DefaultTunnelHost is the public relay used for outbound port and HTTP
// forwarding from inside consoles.
const DefaultTunnelHost = "serveo.net"

// TunnelPortRangeStart and TunnelPortRangeEnd bound the randomly chosen
// public port requested from the relay for TCP forwarding. Ports below 1025
// are skipped so the relay never asks for a privileged bind.
const (
	TunnelPortRangeStart = 1025
	TunnelPortRangeEnd   = 65535
)
