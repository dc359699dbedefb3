//go:build !linux
// +build !linux

package dbus

import "net"

// platformPeerCredentials has no portable implementation outside Linux's
// SO_PEERCRED in this build: EXTERNAL auth still works, but
// serverAuthExternal.Supported reports false here, so the server falls back
// to whatever other mechanism it also enabled (e.g. DBUS_COOKIE_SHA1).
func platformPeerCredentials(conn *net.UnixConn) (uid uint32, ok bool) {
	return 0, false
}
