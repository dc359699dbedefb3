package dbus

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ServerAuthStatus is the result of a server-side mechanism processing one
// SASL step, mirroring AuthStatus for the opposite end of the exchange.
type ServerAuthStatus byte

const (
	// ServerAuthOk means authentication succeeded; the server should send OK.
	ServerAuthOk ServerAuthStatus = iota
	// ServerAuthContinue means more data is needed from the client.
	ServerAuthContinue
	// ServerAuthError means the client sent something the mechanism could
	// not parse; the server should send ERROR and keep the line open.
	ServerAuthError
	// ServerAuthRejected means authentication failed; the server should
	// send REJECTED and let the client try another mechanism.
	ServerAuthRejected
)

// ServerAuth defines the behaviour of a server-side authentication
// mechanism, the counterpart of Auth for the server half of the SASL
// exchange.
type ServerAuth interface {
	// Name is the mechanism name as it appears after AUTH on the wire.
	Name() string
	// Supported reports whether this mechanism can be used over tr (e.g.
	// EXTERNAL needs a transport that can report the peer's uid).
	Supported(tr transport) bool
	// HandleAuth processes the argument of the initial AUTH command.
	HandleAuth(data []byte, tr transport) ([]byte, ServerAuthStatus)
	// HandleData processes a subsequent DATA command.
	HandleData(data []byte) ([]byte, ServerAuthStatus)
}

// serverAuthResult carries what authenticateServer learned out of the SASL
// exchange so the caller can populate the resulting Conn.
type serverAuthResult struct {
	unixFDs bool
}

// authenticateServer runs the server side of the SASL line protocol over
// tr, advertising mechanisms in the order given, until the client succeeds
// or exhausts its rejection budget. guid is sent back in the OK line as a
// 32 hex digit ID, not necessarily the server's own bus GUID when p2p.
func authenticateServer(tr transport, mechanisms []ServerAuth, guid string, maxLineLength, maxRejections int, logger Logger) (*serverAuthResult, error) {
	if logger == nil {
		logger = discardLogger
	}

	// The client sends one leading NUL byte before the first command.
	var nul [1]byte
	if _, err := readFull(tr, nul[:]); err != nil {
		return nil, err
	}

	in := bufio.NewReaderSize(tr, maxLineLength)
	result := &serverAuthResult{}
	rejections := 0
	var current ServerAuth

	for {
		line, err := authReadServerLine(in, maxLineLength)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			if err := authWriteLine(tr, []byte("ERROR")); err != nil {
				return nil, err
			}
			continue
		}
		cmd := string(line[0])

		switch {
		case cmd == "AUTH" && current == nil:
			if len(line) < 2 {
				// No mechanism named: list the ones we support.
				if err := writeRejected(tr, mechanisms, tr); err != nil {
					return nil, err
				}
				continue
			}
			name := string(line[1])
			m := findServerMechanism(mechanisms, name, tr)
			if m == nil {
				rejections++
				if rejections > maxRejections {
					return nil, errors.New("dbus: too many authentication rejections")
				}
				if err := writeRejected(tr, mechanisms, tr); err != nil {
					return nil, err
				}
				continue
			}
			var initial []byte
			if len(line) >= 3 {
				initial = line[2]
			}
			resp, status := m.HandleAuth(initial, tr)
			if err := handleServerStatus(tr, resp, status); err != nil {
				return nil, err
			}
			switch status {
			case ServerAuthOk:
				if err := finishServerAuth(tr, guid); err != nil {
					return nil, err
				}
				return awaitBegin(in, tr, result)
			case ServerAuthContinue:
				current = m
			case ServerAuthRejected, ServerAuthError:
				rejections++
				if rejections > maxRejections {
					return nil, errors.New("dbus: too many authentication rejections")
				}
				if err := writeRejected(tr, mechanisms, tr); err != nil {
					return nil, err
				}
			}

		case cmd == "DATA" && current != nil:
			var data []byte
			if len(line) >= 2 {
				data = line[1]
			}
			resp, status := current.HandleData(data)
			if err := handleServerStatus(tr, resp, status); err != nil {
				return nil, err
			}
			switch status {
			case ServerAuthOk:
				if err := finishServerAuth(tr, guid); err != nil {
					return nil, err
				}
				return awaitBegin(in, tr, result)
			case ServerAuthContinue:
				// stay in current mechanism
			case ServerAuthRejected, ServerAuthError:
				current = nil
				rejections++
				if rejections > maxRejections {
					return nil, errors.New("dbus: too many authentication rejections")
				}
				if err := writeRejected(tr, mechanisms, tr); err != nil {
					return nil, err
				}
			}

		case cmd == "CANCEL", cmd == "ERROR":
			current = nil
			rejections++
			if rejections > maxRejections {
				return nil, errors.New("dbus: too many authentication rejections")
			}
			if err := writeRejected(tr, mechanisms, tr); err != nil {
				return nil, err
			}

		case cmd == "BEGIN":
			return nil, errors.New("dbus: BEGIN received before authentication completed")

		default:
			if err := authWriteLine(tr, []byte("ERROR")); err != nil {
				return nil, err
			}
		}
	}
}

func findServerMechanism(mechanisms []ServerAuth, name string, tr transport) ServerAuth {
	for _, m := range mechanisms {
		if m.Name() == name && m.Supported(tr) {
			return m
		}
	}
	return nil
}

func handleServerStatus(tr transport, resp []byte, status ServerAuthStatus) error {
	switch status {
	case ServerAuthContinue:
		return authWriteLine(tr, []byte("DATA"), resp)
	case ServerAuthError:
		return authWriteLine(tr, []byte("ERROR"))
	default:
		return nil
	}
}

func writeRejected(tr transport, mechanisms []ServerAuth, conn transport) error {
	names := make([][]byte, 0, len(mechanisms))
	for _, m := range mechanisms {
		if m.Supported(conn) {
			names = append(names, []byte(m.Name()))
		}
	}
	line := append([][]byte{[]byte("REJECTED")}, names...)
	return authWriteLine(tr, line...)
}

func finishServerAuth(tr transport, guid string) error {
	return authWriteLine(tr, []byte("OK"), []byte(guid))
}

// awaitBegin waits for the client's NEGOTIATE_UNIX_FD/AGREE_UNIX_FD/BEGIN
// tail after OK has been sent.
func awaitBegin(in *bufio.Reader, tr transport, result *serverAuthResult) (*serverAuthResult, error) {
	for {
		line, err := authReadServerLine(in, defaultMaxAuthLineLength)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		switch string(line[0]) {
		case "BEGIN":
			return result, nil
		case "NEGOTIATE_UNIX_FD":
			if tr.SupportsUnixFDs() {
				tr.EnableUnixFDs()
				result.unixFDs = true
				if err := authWriteLine(tr, []byte("AGREE_UNIX_FD")); err != nil {
					return nil, err
				}
			} else {
				if err := authWriteLine(tr, []byte("ERROR")); err != nil {
					return nil, err
				}
			}
		default:
			if err := authWriteLine(tr, []byte("ERROR")); err != nil {
				return nil, err
			}
		}
	}
}

func authReadServerLine(in *bufio.Reader, maxLineLength int) ([][]byte, error) {
	data, err := in.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(data) > maxLineLength {
		return nil, errors.New("dbus: authentication line too long")
	}
	data = bytes.TrimRight(data, "\r\n")
	if len(data) == 0 {
		return nil, nil
	}
	return bytes.Split(data, []byte{' '}), nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, errors.New("dbus: unexpected EOF reading auth handshake")
		}
	}
	return n, nil
}

// newGUID generates a random 32 hex digit server ID, the form used for both
// bus GUIDs and ad-hoc peer-to-peer OK replies.
func newGUID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
