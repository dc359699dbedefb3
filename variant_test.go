package dbus

import "testing"

func TestVariantString(t *testing.T) {
	tcs := []struct {
		v    Variant
		want string
	}{
		{MakeVariant(int32(42)), "42"},
		{MakeVariant("hi"), `"hi"`},
		{MakeVariant(true), "true"},
		{MakeVariant(ObjectPath("/foo")), `@o "/foo"`},
	}
	for _, tc := range tcs {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("Variant{%v}.String() = %q, want %q", tc.v.Value(), got, tc.want)
		}
	}
}

func TestVariantSignatureAndValue(t *testing.T) {
	v := MakeVariant(uint16(7))
	if v.Signature().String() != "q" {
		t.Errorf("Signature() = %q, want %q", v.Signature().String(), "q")
	}
	if v.Value() != uint16(7) {
		t.Errorf("Value() = %v, want 7", v.Value())
	}
}

func TestVariantStore(t *testing.T) {
	v := MakeVariant("hello")
	var s string
	if err := v.Store(&s); err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("Store() = %q, want %q", s, "hello")
	}
}

func TestVariantStoreRejectsTypeMismatch(t *testing.T) {
	v := MakeVariant("hello")
	var n int32
	err := v.Store(&n)
	if err == nil {
		t.Fatal("expected an error storing a string variant into an int32")
	}
	if _, ok := err.(TypeMismatchError); !ok {
		t.Errorf("err = %T, want TypeMismatchError", err)
	}
}

func TestVariantStoreRejectsNonPointer(t *testing.T) {
	v := MakeVariant("hello")
	var s string
	if err := v.Store(s); err == nil {
		t.Fatal("expected an error storing into a non-pointer destination")
	}
}
