//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package netopt

import "syscall"

// controlReuse is a no-op on platforms where SO_REUSEPORT doesn't exist and
// SO_REUSEADDR already behaves the way Go's net package wants by default
// (notably Windows). Options.ReuseAddr/ReusePort are silently ignored here
// rather than returning an error, matching net.ListenConfig's own stance
// that Control hooks are a best-effort tuning knob.
func controlReuse(c syscall.RawConn, o Options) error {
	return nil
}
