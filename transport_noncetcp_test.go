package dbus

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestNewNonceTCPTransportRequiresNoncefile(t *testing.T) {
	_, err := newNonceTCPTransport(Address{Transport: "nonce-tcp", Params: map[string]string{"host": "localhost", "port": "1234"}})
	if err == nil {
		t.Error("expected an error when noncefile is missing")
	}
}

func TestNewNonceTCPTransportRejectsWrongSizeNonce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonce")
	if err := os.WriteFile(path, []byte("too-short"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := newNonceTCPTransport(Address{Transport: "nonce-tcp", Params: map[string]string{
		"host": "localhost", "port": "1234", "noncefile": path,
	}})
	if err == nil {
		t.Error("expected an error for a noncefile that isn't 16 bytes")
	}
}

func TestNewNonceTCPTransportSendsNonceFirst(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	nonce := []byte("0123456789abcdef")
	noncePath := filepath.Join(t.TempDir(), "nonce")
	if err := os.WriteFile(noncePath, nonce, 0600); err != nil {
		t.Fatal(err)
	}

	serverGotNonce := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			serverGotNonce <- nil
			return
		}
		defer c.Close()
		buf := make([]byte, len(nonce))
		if _, err := readFull(c, buf); err != nil {
			serverGotNonce <- nil
			return
		}
		serverGotNonce <- buf
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	tr, err := newNonceTCPTransport(Address{Transport: "nonce-tcp", Params: map[string]string{
		"host": "127.0.0.1", "port": port, "noncefile": noncePath,
	}})
	if err != nil {
		t.Fatalf("newNonceTCPTransport: %v", err)
	}
	defer tr.Close()

	got := <-serverGotNonce
	if got == nil || string(got) != string(nonce) {
		t.Errorf("server received %q, want %q", got, nonce)
	}
}
