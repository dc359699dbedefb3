package dbus

import (
	"net"
	"strconv"
	"testing"
)

func TestDialAddressesRejectsUnsupportedTransport(t *testing.T) {
	_, err := dialAddresses([]Address{{Transport: "carrier-pigeon", Params: map[string]string{}}})
	if err == nil {
		t.Error("expected an error for an unsupported transport")
	}
}

func TestDialAddressesEmptyList(t *testing.T) {
	if _, err := dialAddresses(nil); err == nil {
		t.Error("expected an error when no addresses are given")
	}
}

func TestGetTransportRejectsMalformedAddress(t *testing.T) {
	if _, err := getTransport("not-an-address"); err == nil {
		t.Error("expected ParseAddresses to reject a malformed address")
	}
}

func TestDialTCPMissingHost(t *testing.T) {
	_, err := dialTCP(Address{Transport: "tcp", Params: map[string]string{"port": "1234"}})
	if err == nil {
		t.Error("expected an error for a tcp address missing host")
	}
}

func TestDialTCPMissingPort(t *testing.T) {
	_, err := dialTCP(Address{Transport: "tcp", Params: map[string]string{"host": "localhost"}})
	if err == nil {
		t.Error("expected an error for a tcp address missing port")
	}
}

func TestDialTCPInvalidFamily(t *testing.T) {
	_, err := dialTCP(Address{Transport: "tcp", Params: map[string]string{"host": "localhost", "port": "1234", "family": "appletalk"}})
	if err == nil {
		t.Error("expected an error for an invalid family")
	}
}

func TestDialTCPConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		accepted <- err
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}

	conn, err := dialTCP(Address{Transport: "tcp", Params: map[string]string{
		"host": "127.0.0.1", "port": strconv.Itoa(portNum), "family": "ipv4",
	}})
	if err != nil {
		t.Fatalf("dialTCP: %v", err)
	}
	conn.Close()

	if err := <-accepted; err != nil {
		t.Fatalf("Accept: %v", err)
	}
}
