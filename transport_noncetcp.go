package dbus

import (
	"errors"
	"os"
)

func init() {
	transports["nonce-tcp"] = newNonceTCPTransport
}

// nonceFileSize is the fixed size of the secret dbus-daemon writes to the
// noncefile for the "nonce-tcp" transport.
const nonceFileSize = 16

// newNonceTCPTransport dials "nonce-tcp:", a TCP transport hardened against
// off-host connection hijacking: the client must prove it can read a local
// file (the "noncefile") by transmitting its contents as the first 16 bytes
// on the wire, before the usual null byte/AUTH exchange begins.
func newNonceTCPTransport(addr Address) (transport, error) {
	noncefile, ok := addr.Param("noncefile")
	if !ok || noncefile == "" {
		return nil, AddressError("nonce-tcp: address is missing a noncefile key")
	}
	nonce, err := os.ReadFile(noncefile)
	if err != nil {
		return nil, err
	}
	if len(nonce) != nonceFileSize {
		return nil, errors.New("dbus: nonce-tcp: invalid nonce file (wrong size)")
	}
	conn, err := dialTCP(addr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(nonce); err != nil {
		conn.Close()
		return nil, err
	}
	return genericTransport{conn}, nil
}
