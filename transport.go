package dbus

import "io"

// transport is a D-Bus transport: the byte-stream abstraction underneath the
// auth engine and the message codec.
type transport interface {
	io.ReadWriteCloser

	// SendNullByte sends the single null byte required before the first AUTH
	// command.
	SendNullByte() error

	// SupportsUnixFDs reports whether this transport can carry unix_fd
	// ancillary data.
	SupportsUnixFDs() bool

	// EnableUnixFDs signals that unix_fd passing has been negotiated for
	// this connection (after a successful "NEGOTIATE_UNIX_FD").
	EnableUnixFDs()

	// ReadMessage reads and decodes the next message from the transport.
	ReadMessage() (*Message, error)
	// SendMessage encodes and writes a message to the transport.
	SendMessage(msg *Message) error
}

// transports maps an address's transport name (the part before ':') to the
// constructor that dials it. Each transport_*.go file registers itself here
// in an init func, so per-OS variants can be added without touching this
// file.
var transports = map[string]func(Address) (transport, error){}

// dialAddresses tries each address in turn, returning the first transport
// that dials successfully. It returns the last error seen if none do.
func dialAddresses(addrs []Address) (transport, error) {
	var err error
	for _, addr := range addrs {
		f, ok := transports[addr.Transport]
		if !ok {
			err = AddressError("unsupported transport '" + addr.Transport + "'")
			continue
		}
		var t transport
		t, err = f(addr)
		if err == nil {
			return t, nil
		}
	}
	if err == nil {
		err = AddressError("no addresses given")
	}
	return nil, err
}

// getTransport parses address and dials the first transport descriptor that
// succeeds.
func getTransport(address string) (transport, error) {
	addrs, err := ParseAddresses(address)
	if err != nil {
		return nil, err
	}
	return dialAddresses(addrs)
}
