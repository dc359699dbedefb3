package dbus

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// pipeConnPair builds two live, started Conns wired together by net.Pipe,
// standing in for a client and a peer that have already completed the SASL
// handshake (Accept's contract for server.go, and this package's own
// newUnauthenticatedConn contract for p2p use).
func pipeConnPair() (client, peer *Conn) {
	a, b := net.Pipe()
	client = newUnauthenticatedConn(genericTransport{a})
	peer = newUnauthenticatedConn(genericTransport{b})
	client.start()
	peer.start()
	return client, peer
}

func TestConnMethodCallRoundTrip(t *testing.T) {
	client, peer := pipeConnPair()
	defer client.Close()
	defer peer.Close()

	peer.Export(greeter{}, "/com/example", "com.example.Greeter")

	var reply string
	call := client.Object("", "/com/example").Call("com.example.Greeter.Hello", 0, "world")
	if err := call.Store(&reply); err != nil {
		t.Fatal(err)
	}
	if reply != "hello world" {
		t.Errorf("reply = %q, want %q", reply, "hello world")
	}
}

func TestConnMethodCallPropagatesDeclaredError(t *testing.T) {
	client, peer := pipeConnPair()
	defer client.Close()
	defer peer.Close()

	peer.Export(greeter{}, "/com/example", "com.example.Greeter")

	call := client.Object("", "/com/example").Call("com.example.Greeter.Fails", 0)
	if call.Err == nil {
		t.Fatal("expected an error reply")
	}
	derr, ok := call.Err.(*Error)
	if !ok {
		t.Fatalf("Err is %T, want *Error", call.Err)
	}
	if derr.Name != "com.example.Failed" {
		t.Errorf("error name = %q, want com.example.Failed", derr.Name)
	}
}

func TestConnSignalDelivery(t *testing.T) {
	client, peer := pipeConnPair()
	defer client.Close()
	defer peer.Close()

	ch := make(chan *Signal, 1)
	client.Signal(ch)

	msg := &Message{
		Order:  binary.LittleEndian,
		Type:   TypeSignal,
		Serial: peer.nextSerial(),
		Headers: map[HeaderField]Variant{
			FieldPath:      MakeVariant(ObjectPath("/com/example")),
			FieldInterface: MakeVariant("com.example.Watcher"),
			FieldMember:    MakeVariant("Changed"),
			FieldSignature: MakeVariant(SignatureOf("new-value")),
		},
		Body: []interface{}{"new-value"},
	}
	peer.enqueue(msg)

	select {
	case sig := <-ch:
		if sig.Name != "com.example.Watcher.Changed" {
			t.Errorf("signal name = %q", sig.Name)
		}
		if len(sig.Body) != 1 || sig.Body[0] != "new-value" {
			t.Errorf("signal body = %v", sig.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered within 2s")
	}
}

func TestConnEmit(t *testing.T) {
	client, peer := pipeConnPair()
	defer client.Close()
	defer peer.Close()

	ch := make(chan *Signal, 1)
	peer.Signal(ch)

	if err := client.Emit("/com/example", "com.example.Watcher.Changed", "new-value"); err != nil {
		t.Fatal(err)
	}

	select {
	case sig := <-ch:
		if sig.Name != "com.example.Watcher.Changed" {
			t.Errorf("signal name = %q", sig.Name)
		}
		if len(sig.Body) != 1 || sig.Body[0] != "new-value" {
			t.Errorf("signal body = %v", sig.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered within 2s")
	}
}

func TestEmitRejectsInvalidPath(t *testing.T) {
	conn := newTestConn()
	if err := conn.Emit("not-a-path", "com.example.Watcher.Changed"); err == nil {
		t.Fatal("expected an error for an invalid object path")
	}
}

func TestNextSerialNeverReturnsZero(t *testing.T) {
	conn := newTestConn()
	conn.lastSerial = ^uint32(0) // next AddUint32 wraps to 0
	if s := conn.nextSerial(); s == 0 {
		t.Error("nextSerial returned 0 on overflow, want it skipped")
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	client, peer := pipeConnPair()
	defer peer.Close()

	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConnCloseFailsPendingCalls(t *testing.T) {
	client, peer := pipeConnPair()
	defer peer.Close()

	// peer exports nothing at this path and would answer UnknownMethod;
	// Close is called as soon as the call is queued and must complete it
	// with ErrClosed.
	done := make(chan *Call, 1)
	client.Object("", "/com/example").Go("com.example.Greeter.Hello", 0, done, "world")

	client.Close()

	select {
	case call := <-done:
		if call.Err != ErrClosed {
			t.Errorf("call.Err = %v, want ErrClosed", call.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed by Close")
	}
}
