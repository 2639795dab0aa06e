package session

import (
	"net"
	"strconv"
	"time"
)

// Reachable performs a best-effort, non-fatal liveness check before
// opening an SSH session. No example in this codebase's dependency
// corpus carries an ICMP library (ping sweeps are normally left to an
// external tool or the OS), so this one probe is implemented directly
// against net.DialTimeout from the standard library rather than reaching
// for ICMP raw sockets, which need elevated privileges this process is
// not guaranteed to have. A TCP dial to the SSH port is a reasonable
// proxy for "the device is alive on the network" without requiring
// CAP_NET_RAW.
//
// Reachable never blocks the caller for longer than timeout and is
// always advisory: callers decide whether an unreachable result should
// abort the attempt.
func Reachable(host string, timeout time.Duration) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(22))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
