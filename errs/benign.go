package errs

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// IsBenignDisconnect reports whether err means the peer went away in one of
// the ordinary ways (EOF, a reset connection, a closed socket) rather than
// something the application needs to be told about through OnErr.
// TLS-specific benign reasons are matched in tlsnet/errors.go, which calls
// through to this function first.
func IsBenignDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		// A plain (non-timeout) net.OpError wrapping one of the above is
		// already handled by errors.Is above; net.Error here only adds the
		// "operation was aborted/cancelled" case carried as a string by the
		// standard library on some platforms.
		msg := ne.Error()
		if strings.Contains(msg, "use of closed network connection") ||
			strings.Contains(msg, "operation was canceled") ||
			strings.Contains(msg, "operation aborted") {
			return true
		}
	}
	return false
}
