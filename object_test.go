package dbus

import "testing"

func TestSplitMethodName(t *testing.T) {
	iface, member, err := splitMethodName("org.freedesktop.DBus.Peer.Ping")
	if err != nil {
		t.Fatal(err)
	}
	if iface != "org.freedesktop.DBus.Peer" || member != "Ping" {
		t.Errorf("got (%q, %q), want (\"org.freedesktop.DBus.Peer\", \"Ping\")", iface, member)
	}
}

func TestSplitMethodNameRejectsMissingInterface(t *testing.T) {
	if _, _, err := splitMethodName("NoInterfaceHere"); err == nil {
		t.Error("expected an error for a method name with no interface segment")
	}
}

func TestObjectGoRejectsInvalidMethodName(t *testing.T) {
	o := &Object{dest: "com.example.Dest", path: "/com/example"}
	call := o.Go("NoInterfaceHere", 0, nil)
	if call.Err == nil {
		t.Error("expected Go to fail a method name without an interface")
	}
	select {
	case got := <-call.Done:
		if got != call {
			t.Error("Done delivered a different Call")
		}
	default:
		t.Fatal("expected Go to complete Done immediately on a malformed method name")
	}
}

func TestObjectDestinationAndPath(t *testing.T) {
	o := &Object{dest: "com.example.Dest", path: "/com/example"}
	if o.Destination() != "com.example.Dest" {
		t.Errorf("Destination() = %q", o.Destination())
	}
	if o.Path() != "/com/example" {
		t.Errorf("Path() = %q", o.Path())
	}
}
