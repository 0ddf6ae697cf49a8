package relay

import "net"

// Accelerator is the extension point for a native, higher-throughput relay
// engine dropped in ahead of the pure-Go implementation. TryRelay should
// return false when it declines to handle the pair (unsupported platform,
// engine unavailable, setup failure) so the caller falls back to Run.
//
// No implementation ships in this core; it exists only so a caller can
// wire one in without reaching into package internals.
type Accelerator interface {
	TryRelay(a, b net.Conn, stats *Stats) bool
}
