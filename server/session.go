// Package server implements a connection-oriented Server and its
// per-connection Session type: a listening endpoint that accepts
// connections, constructs a Session per connection, tracks them in a keyed
// registry, and fans data out via multicast.
//
// Session and Server live in the same package rather than across an import
// boundary because they are mutually referential: a Session holds a
// back-reference to its Server while connected.
package server

import (
	"sync"

	"github.com/swiftcore/netio/netcore"
)

// Session is one accepted connection. It embeds *netcore.Conn for the
// double-buffered send path and adaptive receive loop, and adds a unique
// id plus a back-reference to the owning Server.
type Session struct {
	*netcore.Conn
	id uint64

	mu  sync.Mutex
	srv *Server // cleared on disconnect
}

// ID returns the Session's id, unique within its Server for the Server's
// lifetime.
func (s *Session) ID() uint64 { return s.id }

// Server returns the owning Server, or nil once the Session has
// disconnected and dropped its back-reference.
func (s *Session) Server() *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv
}

func (s *Session) clearServer() {
	s.mu.Lock()
	s.srv = nil
	s.mu.Unlock()
}
