//go:build !windows && !solaris
// +build !windows,!solaris

package dbus

import (
	"bytes"
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// oobConn wraps a *net.UnixConn so DecodeMessage can read the message bytes
// through the ordinary io.Reader interface while any ancillary data that
// arrives alongside each underlying read is accumulated separately for the
// caller to parse once the message is fully decoded.
type oobConn struct {
	conn *net.UnixConn
	oob  []byte
	buf  [4096]byte
}

func (o *oobConn) Read(p []byte) (int, error) {
	n, oobn, flags, _, err := o.conn.ReadMsgUnix(p, o.buf[:])
	if err != nil {
		return n, err
	}
	if flags&syscall.MSG_CTRUNC != 0 {
		return n, errors.New("dbus: control data truncated (too many fds received)")
	}
	if oobn > 0 {
		o.oob = append(o.oob, o.buf[:oobn]...)
	}
	return n, nil
}

func init() {
	transports["unix"] = newUnixTransport
}

// unixTransport is the "unix:" and "unix:abstract=" transport: a
// stream-oriented Unix domain socket that additionally carries unix_fd
// payloads as ancillary SCM_RIGHTS data.
type unixTransport struct {
	conn       *net.UnixConn
	enabledFDs bool
	hasPeerUid bool
	peerUid    uint32
}

// newUnixTransport dials a "unix:" address. Linux's abstract-namespace
// sockets (leading NUL byte) are reached via net's own "@name" convention
// for the "abstract" key; "path" dials an ordinary filesystem socket.
func newUnixTransport(addr Address) (transport, error) {
	var name string
	if path, ok := addr.Param("path"); ok {
		name = path
	} else if abstract, ok := addr.Param("abstract"); ok {
		name = "@" + abstract
	} else {
		return nil, AddressError("unix: address is missing a path or abstract key")
	}
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: name, Net: "unix"})
	if err != nil {
		return nil, err
	}
	t := &unixTransport{conn: conn}
	t.peerUid, t.hasPeerUid = peerCredentials(conn)
	return t, nil
}

func (t *unixTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *unixTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *unixTransport) Close() error                { return t.conn.Close() }

func (t *unixTransport) SendNullByte() error {
	_, err := t.conn.Write([]byte{0})
	return err
}

func (t *unixTransport) SupportsUnixFDs() bool { return true }

func (t *unixTransport) EnableUnixFDs() { t.enabledFDs = true }

// ReadMessage reads a single message, gathering any SCM_RIGHTS ancillary
// data alongside it and resolving unix_fd indices in the body to the real
// descriptors received.
func (t *unixTransport) ReadMessage() (*Message, error) {
	peek := &oobConn{conn: t.conn}
	msg, err := DecodeMessage(peek)
	if err != nil {
		return nil, err
	}
	if len(peek.oob) == 0 {
		return msg, nil
	}
	scms, err := unix.ParseSocketControlMessage(peek.oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, scm := range scms {
		parsed, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		fds = append(fds, parsed...)
	}
	if len(fds) == 0 {
		return msg, nil
	}
	if !t.enabledFDs {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, errors.New("dbus: received unix fds on a connection that hasn't negotiated them")
	}
	if err := msg.ResolveFds(fds); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendMessage encodes msg and writes it, passing any unix_fd values in the
// body as SCM_RIGHTS ancillary data in the same write.
func (t *unixTransport) SendMessage(msg *Message) error {
	nfds, _ := msg.CountFds()
	if nfds == 0 {
		return msg.EncodeTo(t.conn)
	}
	if !t.enabledFDs {
		return errors.New("dbus: unix fd passing not negotiated on this connection")
	}
	var buf bytes.Buffer
	fds, err := msg.EncodeToWithFDs(&buf)
	if err != nil {
		return err
	}
	oob := unix.UnixRights(fds...)
	n, oobn, err := t.conn.WriteMsgUnix(buf.Bytes(), oob, nil)
	if err != nil {
		return err
	}
	if n != buf.Len() || oobn != len(oob) {
		return io.ErrShortWrite
	}
	return nil
}

// peerCredentials returns this process's view of the uid on the other end
// of conn, if the platform can report it; implemented per-OS (Linux via
// SO_PEERCRED, others as a best-effort stub — see transport_unixcred*.go).
func peerCredentials(conn *net.UnixConn) (uid uint32, ok bool) {
	return platformPeerCredentials(conn)
}
