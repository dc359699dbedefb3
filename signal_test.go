package dbus

import "testing"

func TestErrorImplementsError(t *testing.T) {
	e := NewError("org.freedesktop.DBus.Error.Failed", []interface{}{"boom"})
	if e.Error() != "boom" {
		t.Errorf("Error() = %q, want %q", e.Error(), "boom")
	}

	bare := NewError("org.freedesktop.DBus.Error.Failed", nil)
	if bare.Error() != "org.freedesktop.DBus.Error.Failed" {
		t.Errorf("Error() with empty body = %q, want the error name", bare.Error())
	}
}

func TestSequentialSignalHandlerDeliversInOrder(t *testing.T) {
	h := NewSequentialSignalHandler()
	ch := make(chan *Signal, 10)
	h.AddSignal(ch)

	for i := 0; i < 5; i++ {
		h.DeliverSignal("com.example", "Changed", &Signal{Name: "com.example.Changed", Body: []interface{}{i}})
	}

	for i := 0; i < 5; i++ {
		sig := <-ch
		if sig.Body[0] != i {
			t.Fatalf("signal %d arrived out of order: got body %v", i, sig.Body)
		}
	}
}

func TestSequentialSignalHandlerRemoveSignal(t *testing.T) {
	h := NewSequentialSignalHandler()
	ch := make(chan *Signal, 1)
	h.AddSignal(ch)
	h.RemoveSignal(ch)

	h.DeliverSignal("com.example", "Changed", &Signal{Name: "com.example.Changed"})
	select {
	case <-ch:
		t.Error("expected no delivery after RemoveSignal")
	default:
	}
}

func TestSequentialSignalHandlerTerminateClosesChannels(t *testing.T) {
	h := NewSequentialSignalHandler()
	ch := make(chan *Signal, 1)
	h.AddSignal(ch)
	h.Terminate()

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after Terminate")
	}

	// A second Terminate must not panic (double-close guard).
	h.Terminate()
}
