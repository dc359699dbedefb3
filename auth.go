package dbus

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// defaultMaxAuthRejections and defaultMaxAuthLineLength are the usual
// dbus-daemon defaults; both are overridable per Conn via
// WithAuthRejectionLimit/WithAuthLineLimit.
const (
	defaultMaxAuthRejections = 42
	defaultMaxAuthLineLength = 16 * 1024
)

// AuthStatus represents the result of processing one step of a client-side
// SASL exchange, as suggested by the D-Bus spec.
type AuthStatus byte

const (
	// Authentication is finished; next command from the server should be an OK.
	AuthOk AuthStatus = iota

	// Additional data is needed; next command from the server should be a DATA.
	AuthContinue

	// Error; the server sent invalid data and the current authentication
	// process should be aborted.
	AuthError
)

// Auth defines the behaviour of a client-side SASL authentication
// mechanism: what to send first, and how to react to each DATA line the
// server sends back.
type Auth interface {
	// FirstData returns the mechanism name, the argument to the first AUTH
	// command (nil for none), and the status after sending it.
	FirstData() (name, resp []byte, status AuthStatus)
	// HandleData processes a DATA command sent by the server, returning the
	// argument to a DATA response (nil if none should be sent) and the next
	// status.
	HandleData(data []byte) (resp []byte, status AuthStatus)
}

type clientAuthState byte

const (
	authSelectMech clientAuthState = iota
	authWaitingForData
	authWaitingForOk
	authWaitingForReject
)

// authenticate runs the client side of the SASL line protocol over
// conn's transport, trying each mechanism in mechanisms in order until one
// succeeds. It implements an explicit four-state machine
// (SelectMech/WaitingForData/WaitingForOk/WaitingForReject) with a bounded
// rejection count, rather than a single open-ended retry loop.
func (conn *Conn) authenticate(mechanisms []Auth) error {
	if err := conn.transport.SendNullByte(); err != nil {
		return err
	}
	in := bufio.NewReaderSize(conn.transport, conn.maxAuthLineLength)
	rejections := 0

	for _, m := range mechanisms {
		name, resp, status := m.FirstData()
		if err := authWriteLine(conn.transport, []byte("AUTH"), name, resp); err != nil {
			return err
		}
		var ok bool
		var err error
		switch status {
		case AuthOk:
			ok, err = conn.tryAuth(m, authWaitingForOk, in, &rejections)
		case AuthContinue:
			ok, err = conn.tryAuth(m, authWaitingForData, in, &rejections)
		default:
			return errors.New("dbus: invalid initial auth status")
		}
		if err != nil {
			return err
		}
		if ok {
			return authWriteLine(conn.transport, []byte("BEGIN"))
		}
		if rejections > conn.maxAuthRejections {
			return errors.New("dbus: too many authentication rejections")
		}
	}
	return errors.New("dbus: authentication failed: no mechanism succeeded")
}

func (conn *Conn) tryAuth(m Auth, state clientAuthState, in *bufio.Reader, rejections *int) (bool, error) {
	for {
		s, err := authReadLineMax(in, conn.maxAuthLineLength)
		if err != nil {
			return false, err
		}
		switch {
		case state == authWaitingForData && string(s[0]) == "DATA":
			if len(s) != 2 {
				if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
					return false, err
				}
				continue
			}
			data, status := m.HandleData(s[1])
			switch status {
			case AuthOk, AuthContinue:
				if len(data) != 0 {
					if err := authWriteLine(conn.transport, []byte("DATA"), data); err != nil {
						return false, err
					}
				}
				if status == AuthOk {
					state = authWaitingForOk
				}
			case AuthError:
				if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
					return false, err
				}
			}
		case state == authWaitingForData && string(s[0]) == "REJECTED":
			*rejections++
			return false, nil
		case state == authWaitingForData && string(s[0]) == "ERROR":
			if err := authWriteLine(conn.transport, []byte("CANCEL")); err != nil {
				return false, err
			}
			state = authWaitingForReject
		case state == authWaitingForData:
			if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
				return false, err
			}
		case state == authWaitingForOk && string(s[0]) == "OK":
			if len(s) != 2 {
				if err := authWriteLine(conn.transport, []byte("CANCEL")); err != nil {
					return false, err
				}
				state = authWaitingForReject
				continue
			}
			conn.uuid = string(s[1])
			return true, nil
		case state == authWaitingForOk && string(s[0]) == "REJECTED":
			*rejections++
			return false, nil
		case state == authWaitingForOk && (string(s[0]) == "DATA" || string(s[0]) == "ERROR"):
			if err := authWriteLine(conn.transport, []byte("CANCEL")); err != nil {
				return false, err
			}
			state = authWaitingForReject
		case state == authWaitingForOk:
			if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
				return false, err
			}
		case state == authWaitingForReject && string(s[0]) == "REJECTED":
			*rejections++
			return false, nil
		case state == authWaitingForReject:
			return false, errors.New("dbus: authentication protocol error")
		default:
			return false, errors.New("dbus: invalid authentication state")
		}
	}
}

func authReadLine(in *bufio.Reader) ([][]byte, error) {
	return authReadLineMax(in, defaultMaxAuthLineLength)
}

func authReadLineMax(in *bufio.Reader, max int) ([][]byte, error) {
	data, err := in.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(data) > max {
		return nil, errors.New("dbus: authentication line too long")
	}
	data = bytes.TrimRight(data, "\r\n")
	return bytes.Split(data, []byte{' '}), nil
}

func authWriteLine(out io.Writer, data ...[]byte) error {
	parts := data[:0:0]
	for _, v := range data {
		if v != nil {
			parts = append(parts, v)
		}
	}
	buf := make([]byte, 0, 64)
	for i, v := range parts {
		buf = append(buf, v...)
		if i != len(parts)-1 {
			buf = append(buf, ' ')
		}
	}
	buf = append(buf, '\r', '\n')
	n, err := out.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}
