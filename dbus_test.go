package dbus

import (
	"reflect"
	"testing"
)

func TestObjectPathIsValid(t *testing.T) {
	tcs := []struct {
		p    ObjectPath
		want bool
	}{
		{"/", true},
		{"/org/freedesktop/DBus", true},
		{"/org/freedesktop/DBus_1", true},
		{"", false},
		{"no/leading/slash", false},
		{"/trailing/slash/", false},
		{"/double//slash", false},
		{"/bad-char", false},
	}
	for _, tc := range tcs {
		if got := tc.p.IsValid(); got != tc.want {
			t.Errorf("ObjectPath(%q).IsValid() = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestAlignment(t *testing.T) {
	tcs := []struct {
		t    reflect.Type
		want int
	}{
		{byteType, 1},
		{int16Type, 2},
		{uint16Type, 2},
		{int32Type, 4},
		{uint32Type, 4},
		{boolType, 4},
		{int64Type, 8},
		{uint64Type, 8},
		{float64Type, 8},
		{stringType, 4},
		{objectPathType, 4},
		{signatureType, 1},
		{variantType, 1},
	}
	for _, tc := range tcs {
		if got := alignment(tc.t); got != tc.want {
			t.Errorf("alignment(%v) = %d, want %d", tc.t, got, tc.want)
		}
	}
}

func TestIsValidInterface(t *testing.T) {
	tcs := []struct {
		s    string
		want bool
	}{
		{"org.freedesktop.DBus", true},
		{"a.b", true},
		{"onesegment", false},
		{"", false},
		{".leadingdot", false},
		{"org.freedesktop.1Bad", false},
	}
	for _, tc := range tcs {
		if got := isValidInterface(tc.s); got != tc.want {
			t.Errorf("isValidInterface(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestIsValidBusName(t *testing.T) {
	tcs := []struct {
		s    string
		want bool
	}{
		{"org.freedesktop.DBus", true},
		{":1.1", true},
		{":1.1.1", true},
		{":", false},
		{"has-dash.ok", true},
		{"onesegment", false},
		{"", false},
		{"trailing.dot.", false},
	}
	for _, tc := range tcs {
		if got := isValidBusName(tc.s); got != tc.want {
			t.Errorf("isValidBusName(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestIsValidMember(t *testing.T) {
	tcs := []struct {
		s    string
		want bool
	}{
		{"NameOwnerChanged", true},
		{"_leading_underscore", true},
		{"1leadingdigit", false},
		{"", false},
		{"has.dot", false},
	}
	for _, tc := range tcs {
		if got := isValidMember(tc.s); got != tc.want {
			t.Errorf("isValidMember(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestStoreSimple(t *testing.T) {
	src := []interface{}{"hello", int32(42)}
	var s string
	var i int32
	if err := Store(src, &s, &i); err != nil {
		t.Fatal(err)
	}
	if s != "hello" || i != 42 {
		t.Errorf("Store got (%q, %d), want (\"hello\", 42)", s, i)
	}
}

func TestStoreIntoStruct(t *testing.T) {
	type pair struct {
		A string
		B int32
	}
	src := []interface{}{[]interface{}{"hi", int32(7)}}
	var p pair
	if err := Store(src, &p); err != nil {
		t.Fatal(err)
	}
	if p.A != "hi" || p.B != 7 {
		t.Errorf("Store got %+v, want {hi 7}", p)
	}
}

func TestStoreLengthMismatch(t *testing.T) {
	var s string
	if err := Store([]interface{}{"a", "b"}, &s); err == nil {
		t.Error("expected error for src/dest length mismatch")
	}
}

func TestStoreTypeMismatch(t *testing.T) {
	var i int32
	if err := Store([]interface{}{"not an int"}, &i); err == nil {
		t.Error("expected error for type mismatch")
	}
}
