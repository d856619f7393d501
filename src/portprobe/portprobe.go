// Package portprobe checks whether something is already listening on a
// loopback TCP port.
//
// The check is advisory: no lock is held, so another process may bind the
// port between the probe and our own bind.
package portprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DialTimeout bounds a single probe. A filtered port that swallows the SYN
// counts as free once it elapses.
const DialTimeout = 500 * time.Millisecond

// ErrInUse reports that a port already has a listener.
var ErrInUse = errors.New("port already in use")

// InUse reports whether a TCP connect to 127.0.0.1:port succeeds.
func InUse(port uint16) bool {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	return InUseContext(ctx, port)
}

// InUseContext is InUse bounded by ctx instead of DialTimeout.
func InUseContext(ctx context.Context, port uint16) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", Addr(port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Check returns an error wrapping ErrInUse when the port is taken.
func Check(port uint16) error {
	if InUse(port) {
		return fmt.Errorf("port %d: %w", port, ErrInUse)
	}
	return nil
}

// Addr is the loopback address probed for port.
func Addr(port uint16) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
}
