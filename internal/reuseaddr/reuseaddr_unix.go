//go:build !windows

// Package reuseaddr provides a net.ListenConfig.Control hook that sets
// SO_REUSEADDR on the listening socket before bind, so a quick
// disconnect/reconnect cycle doesn't fail with "address already in use"
// while the previous listener's socket lingers in TIME_WAIT.
package reuseaddr

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Control is passed as net.ListenConfig.Control.
func Control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
