//go:build linux || darwin || freebsd || netbsd || openbsd

package netopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuse applies SO_REUSEADDR/SO_REUSEPORT to the not-yet-bound
// listening socket c wraps.
func controlReuse(c syscall.RawConn, o Options) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if o.ReuseAddr {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if sockErr != nil {
				return
			}
		}
		if o.ReusePort {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
