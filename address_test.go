package dbus

import "testing"

func TestParseAddresses(t *testing.T) {
	tcs := []struct {
		addr string
		want []Address
	}{
		{
			addr: "unix:path=/run/user/1000/bus",
			want: []Address{{Transport: "unix", Params: map[string]string{"path": "/run/user/1000/bus"}}},
		},
		{
			addr: "unix:abstract=/tmp/dbus-XYZ",
			want: []Address{{Transport: "unix", Params: map[string]string{"abstract": "/tmp/dbus-XYZ"}}},
		},
		{
			addr: "tcp:host=localhost,port=1234,family=ipv4",
			want: []Address{{Transport: "tcp", Params: map[string]string{"host": "localhost", "port": "1234", "family": "ipv4"}}},
		},
		{
			addr: "nonce-tcp:host=h,port=9,noncefile=/tmp/nonce",
			want: []Address{{Transport: "nonce-tcp", Params: map[string]string{"host": "h", "port": "9", "noncefile": "/tmp/nonce"}}},
		},
		{
			addr: "unix:path=/a;unix:path=/b",
			want: []Address{
				{Transport: "unix", Params: map[string]string{"path": "/a"}},
				{Transport: "unix", Params: map[string]string{"path": "/b"}},
			},
		},
		{
			addr: "unix:path=/run/user/1000/bus;",
			want: []Address{{Transport: "unix", Params: map[string]string{"path": "/run/user/1000/bus"}}},
		},
	}
	for _, tc := range tcs {
		got, err := ParseAddresses(tc.addr)
		if err != nil {
			t.Fatalf("ParseAddresses(%q): unexpected error: %v", tc.addr, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("ParseAddresses(%q): got %d addresses, want %d", tc.addr, len(got), len(tc.want))
		}
		for i := range got {
			if got[i].Transport != tc.want[i].Transport {
				t.Errorf("ParseAddresses(%q)[%d].Transport = %q, want %q", tc.addr, i, got[i].Transport, tc.want[i].Transport)
			}
			for k, v := range tc.want[i].Params {
				if got[i].Params[k] != v {
					t.Errorf("ParseAddresses(%q)[%d].Params[%q] = %q, want %q", tc.addr, i, k, got[i].Params[k], v)
				}
			}
		}
	}
}

func TestParseAddressesPercentDecoding(t *testing.T) {
	got, err := ParseAddresses("unix:path=/tmp/has%20space")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Params["path"] != "/tmp/has space" {
		t.Errorf("path = %q, want %q", got[0].Params["path"], "/tmp/has space")
	}
}

func TestParseAddressesRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"noColonHere",
		":path=/a",
		"unix:path",
		"unix:=value",
	}
	for _, s := range bad {
		if _, err := ParseAddresses(s); err == nil {
			t.Errorf("ParseAddresses(%q): expected error, got none", s)
		}
	}
}

func TestParseAddressesRejectsConflictingUnixKeys(t *testing.T) {
	if _, err := ParseAddresses("unix:path=/a,abstract=/b"); err == nil {
		t.Error("expected error: unix path and abstract are mutually exclusive")
	}
	if _, err := ParseAddresses("unix:"); err == nil {
		t.Error("expected error: unix address missing path/abstract/tmpdir")
	}
}

func TestParseAddressesRejectsIncompleteTCP(t *testing.T) {
	if _, err := ParseAddresses("tcp:host=h"); err == nil {
		t.Error("expected error: tcp address missing port")
	}
	if _, err := ParseAddresses("tcp:port=1"); err == nil {
		t.Error("expected error: tcp address missing host")
	}
	if _, err := ParseAddresses("tcp:host=h,port=1,family=bogus"); err == nil {
		t.Error("expected error: invalid family")
	}
}
