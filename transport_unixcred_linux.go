//go:build linux
// +build linux

package dbus

import (
	"net"

	"golang.org/x/sys/unix"
)

// platformPeerCredentials fetches the uid of the process on the other end
// of a Unix socket via SO_PEERCRED, which the EXTERNAL server mechanism
// verifies an authenticating client's claimed uid against.
func platformPeerCredentials(conn *net.UnixConn) (uid uint32, ok bool) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, false
	}
	var ucred *unix.Ucred
	var gerr error
	cerr := raw.Control(func(fd uintptr) {
		ucred, gerr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if cerr != nil || gerr != nil || ucred == nil {
		return 0, false
	}
	return ucred.Uid, true
}
