package tlsnet

import (
	"strings"

	"github.com/swiftcore/netio/errs"
)

// benignSubstrings are TLS handshake/record errors that happen because the
// peer already tore down its side of the connection. crypto/tls doesn't
// expose these as typed sentinel errors, so they're matched by message
// substring, the same way errs.IsBenignDisconnect already does for the
// plain-socket "use of closed network connection" case.
var benignSubstrings = []string{
	"stream truncated",
	"decryption failed or bad record mac",
	"protocol is shutdown",
	"wrong version number",
	"tls: bad record mac",
}

// IsBenignDisconnect extends errs.IsBenignDisconnect with TLS-specific
// benign reasons: failed handshakes and mid-stream decrypt errors that
// happen because the peer already tore down its side, not because of an
// application-level fault. Callers use it to decide whether to suppress an
// error from OnErr.
func IsBenignDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errs.IsBenignDisconnect(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range benignSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
